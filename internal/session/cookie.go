package session

import (
	"net/http"
	"net/url"
	"time"

	"github.com/otiai10/gatekeeper/internal/config"
	"github.com/otiai10/gatekeeper/internal/principal"
	"github.com/otiai10/gatekeeper/internal/security"
)

// Cookies writes the primary session cookie and its client-readable mirror.
// The mirror carries only the role.
type Cookies struct {
	name       string
	mirrorName string
	duration   time.Duration
	primary    security.CookiePolicy
	mirror     security.CookiePolicy
}

// NewCookies creates Cookies scoped to the root domain
func NewCookies(cfg config.SessionConfig, rootDomain string) *Cookies {
	return &Cookies{
		name:       cfg.CookieName,
		mirrorName: cfg.MirrorCookieName,
		duration:   cfg.Duration,
		primary:    security.NewCookiePolicy(rootDomain, true),
		mirror:     security.NewCookiePolicy(rootDomain, false),
	}
}

// Set writes both cookies. The artifact is URL-encoded.
func (c *Cookies) Set(w http.ResponseWriter, artifact string, role principal.Role) {
	c.primary.Set(w, c.name, url.QueryEscape(artifact), c.duration)
	if c.mirrorName != "" {
		c.mirror.Set(w, c.mirrorName, string(role), c.duration)
	}
}

// Read returns the decoded artifact from r
func (c *Cookies) Read(r *http.Request) (string, error) {
	cookie, err := r.Cookie(c.name)
	if err != nil || cookie.Value == "" {
		return "", ErrMissing
	}
	artifact, err := url.QueryUnescape(cookie.Value)
	if err != nil {
		return "", ErrMalformed
	}
	return artifact, nil
}

// Clear expires both cookies with the attribute set used by Set
func (c *Cookies) Clear(w http.ResponseWriter) {
	c.primary.Clear(w, c.name)
	if c.mirrorName != "" {
		c.mirror.Clear(w, c.mirrorName)
	}
}
