// Package auth adapts the identity provider: bearer token verification,
// custom token minting and provider-signed session cookies.
package auth

import (
	"context"
	"errors"
	"time"
)

// Provider error kinds. Adapters wrap the underlying provider error with one
// of these so callers can tell a silent re-auth from a hard failure.
var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenRevoked = errors.New("token revoked")
	ErrTokenInvalid = errors.New("token invalid")
	ErrUserDisabled = errors.New("user disabled")
	ErrUserNotFound = errors.New("user not found")
)

// Claims represents the decoded claims of an ID token or session cookie
type Claims struct {
	UID           string         `json:"uid"`
	Email         string         `json:"email"`
	EmailVerified bool           `json:"email_verified"`
	Name          string         `json:"name,omitempty"`
	Picture       string         `json:"picture,omitempty"`
	ProviderID    string         `json:"provider_id,omitempty"`
	Custom        map[string]any `json:"custom,omitempty"`
	IssuedAt      time.Time      `json:"iat"`
	ExpiresAt     time.Time      `json:"exp"`
}

// CustomString returns a string custom claim, or ""
func (c *Claims) CustomString(key string) string {
	return getStringClaim(c.Custom, key)
}

// TokenVerifier verifies ID tokens
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*Claims, error)
}

// Provider is the identity provider this service orchestrates.
// Verification always checks revocation.
type Provider interface {
	TokenVerifier

	// CustomToken mints a signed custom credential for uid embedding claims
	CustomToken(ctx context.Context, uid string, claims map[string]any) (string, error)

	// SessionCookie exchanges a fresh ID token for a provider-signed session cookie
	SessionCookie(ctx context.Context, idToken string, expiresIn time.Duration) (string, error)

	// VerifySessionCookie verifies a session cookie minted by SessionCookie
	VerifySessionCookie(ctx context.Context, cookie string) (*Claims, error)

	// RevokeSessions invalidates every token and session issued to uid so far
	RevokeSessions(ctx context.Context, uid string) error

	// LookupEmail returns the email the provider holds for uid
	LookupEmail(ctx context.Context, uid string) (string, error)
}

// reservedClaims are standard JWT/provider claims that never count as custom
var reservedClaims = map[string]struct{}{
	"iss": {}, "aud": {}, "auth_time": {}, "sub": {}, "iat": {}, "exp": {}, "jti": {},
	"user_id": {}, "uid": {}, "email": {}, "email_verified": {}, "name": {},
	"picture": {}, "firebase": {}, "typ": {}, "claims": {},
}

// customClaims copies every non-reserved claim
func customClaims(claims map[string]any) map[string]any {
	out := make(map[string]any)
	for k, v := range claims {
		if _, reserved := reservedClaims[k]; reserved {
			continue
		}
		out[k] = v
	}
	return out
}

// getStringClaim safely extracts a string claim from the claims map
func getStringClaim(claims map[string]any, key string) string {
	val, ok := claims[key]
	if !ok {
		return ""
	}
	str, ok := val.(string)
	if !ok {
		return ""
	}
	return str
}

// getBoolClaim safely extracts a boolean claim from the claims map
func getBoolClaim(claims map[string]any, key string) bool {
	val, ok := claims[key]
	if !ok {
		return false
	}
	b, ok := val.(bool)
	if !ok {
		return false
	}
	return b
}
