package security

import (
	"net/http"
	"time"
)

// CookiePolicy is the attribute set shared by every cookie the hub writes
// on the parent domain. Set and Clear emit the same Domain and Path so a
// clear always overwrites the cookie it targets.
type CookiePolicy struct {
	Domain   string // exact root domain, no leading dot
	Path     string
	HttpOnly bool
	Secure   bool
	SameSite http.SameSite
}

// NewCookiePolicy returns the default policy for domain: Path=/, Secure,
// SameSite=Lax and the given HttpOnly flag.
func NewCookiePolicy(domain string, httpOnly bool) CookiePolicy {
	return CookiePolicy{
		Domain:   domain,
		Path:     "/",
		HttpOnly: httpOnly,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	}
}

// Cookie builds a cookie that lives for maxAge
func (p CookiePolicy) Cookie(name, value string, maxAge time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Domain:   p.Domain,
		Path:     p.Path,
		MaxAge:   int(maxAge / time.Second),
		HttpOnly: p.HttpOnly,
		Secure:   p.Secure,
		SameSite: p.SameSite,
	}
}

// Expired builds the clearing counterpart of Cookie
func (p CookiePolicy) Expired(name string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    "",
		Domain:   p.Domain,
		Path:     p.Path,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: p.HttpOnly,
		Secure:   p.Secure,
		SameSite: p.SameSite,
	}
}

// Set writes a cookie for name=value
func (p CookiePolicy) Set(w http.ResponseWriter, name, value string, maxAge time.Duration) {
	http.SetCookie(w, p.Cookie(name, value, maxAge))
}

// Clear writes an expired cookie for name
func (p CookiePolicy) Clear(w http.ResponseWriter, name string) {
	http.SetCookie(w, p.Expired(name))
}
