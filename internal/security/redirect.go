// Package security provides redirect allow-listing and cookie attribute
// helpers shared by the hub and its satellites.
package security

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ErrRedirectNotAllowed is returned when a redirect target is outside the allow-list
var ErrRedirectNotAllowed = errors.New("redirect target not allowed")

// IsLocalhost checks if the given host is localhost.
// Accepts: "localhost", "127.0.0.1", "::1", "[::1]", "0.0.0.0"
func IsLocalhost(host string) bool {
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")

	switch host {
	case "localhost", "127.0.0.1", "::1", "0.0.0.0":
		return true
	}

	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// HostAllowed reports whether host equals an allowed domain or is a
// subdomain of one. Comparison is case-insensitive.
func HostAllowed(host string, allowed []string) bool {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if host == "" {
		return false
	}
	for _, domain := range allowed {
		domain = strings.ToLower(strings.TrimPrefix(domain, "."))
		if domain == "" {
			continue
		}
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}

// ValidateRedirectURL validates a post-login redirect target.
// It checks:
// - URL is absolute with an http/https scheme
// - HTTPS is required (unless allowLocal is true and host is localhost)
// - URL carries no userinfo
// - Host is in the allow-list (localhost passes only when allowLocal is true)
//
// Returns nil if the URL is safe to redirect to, or an error describing the issue.
func ValidateRedirectURL(urlStr string, allowed []string, allowLocal bool) error {
	if urlStr == "" {
		return fmt.Errorf("%w: URL is empty", ErrRedirectNotAllowed)
	}

	parsed, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("%w: invalid URL: %v", ErrRedirectNotAllowed, err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("%w: unsupported URL scheme %q", ErrRedirectNotAllowed, parsed.Scheme)
	}

	if parsed.User != nil {
		return fmt.Errorf("%w: userinfo is not allowed", ErrRedirectNotAllowed)
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("%w: missing host", ErrRedirectNotAllowed)
	}

	isLocal := IsLocalhost(host)
	if isLocal {
		if !allowLocal {
			return fmt.Errorf("%w: localhost URLs are not allowed", ErrRedirectNotAllowed)
		}
		return nil
	}

	if scheme == "http" {
		return fmt.Errorf("%w: HTTPS is required", ErrRedirectNotAllowed)
	}

	if !HostAllowed(host, allowed) {
		return fmt.Errorf("%w: host %q", ErrRedirectNotAllowed, host)
	}

	return nil
}

// RedirectValidator validates redirect targets against a fixed allow-list
type RedirectValidator struct {
	allowed        []string
	allowLocalhost bool
}

// NewRedirectValidator creates a new redirect validator.
// If allowLocalhost is true, http://localhost targets are permitted (development mode).
func NewRedirectValidator(allowed []string, allowLocalhost bool) *RedirectValidator {
	return &RedirectValidator{
		allowed:        append([]string(nil), allowed...),
		allowLocalhost: allowLocalhost,
	}
}

// Validate returns nil if urlStr is an allowed redirect target
func (v *RedirectValidator) Validate(urlStr string) error {
	return ValidateRedirectURL(urlStr, v.allowed, v.allowLocalhost)
}

// Sanitize returns urlStr if it is allowed, otherwise fallback
func (v *RedirectValidator) Sanitize(urlStr, fallback string) string {
	if v.Validate(urlStr) != nil {
		return fallback
	}
	return urlStr
}
