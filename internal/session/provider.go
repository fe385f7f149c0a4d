package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/otiai10/gatekeeper/internal/auth"
	"github.com/otiai10/gatekeeper/internal/principal"
)

// ProviderManager is the identity-provider variant: the artifact is a
// provider-signed session cookie, verified with revocation checks.
type ProviderManager struct {
	provider auth.Provider
	duration time.Duration
}

// Ensure ProviderManager implements Manager interface
var _ Manager = (*ProviderManager)(nil)

// NewProviderManager creates a ProviderManager
func NewProviderManager(provider auth.Provider, duration time.Duration) *ProviderManager {
	return &ProviderManager{provider: provider, duration: duration}
}

// Mint exchanges req.IDToken for a provider session cookie
func (m *ProviderManager) Mint(ctx context.Context, req MintRequest) (string, error) {
	if req.IDToken == "" {
		return "", fmt.Errorf("%w: ID token is required", ErrInvalid)
	}
	cookie, err := m.provider.SessionCookie(ctx, req.IDToken, m.duration)
	if err != nil {
		return "", mapProviderError(err)
	}
	return cookie, nil
}

// Validate verifies the cookie with the provider
func (m *ProviderManager) Validate(ctx context.Context, artifact string) (*Session, error) {
	claims, err := m.provider.VerifySessionCookie(ctx, artifact)
	if err != nil {
		return nil, mapProviderError(err)
	}

	s := &Session{
		PrincipalID: claims.UID,
		Email:       claims.Email,
		IssuedAt:    claims.IssuedAt,
		ExpiresAt:   claims.ExpiresAt,
	}
	if role, err := principal.ParseRole(claims.CustomString("role")); err == nil {
		s.Role = role
	}
	return s, nil
}

// Revoke revokes every provider session of the principal
func (m *ProviderManager) Revoke(ctx context.Context, s *Session) error {
	if s == nil || s.PrincipalID == "" {
		return nil
	}
	return m.provider.RevokeSessions(ctx, s.PrincipalID)
}

// Duration implements Manager
func (m *ProviderManager) Duration() time.Duration {
	return m.duration
}

// mapProviderError translates provider error kinds into session errors.
// Anything unclassified is passed through as an internal failure.
func mapProviderError(err error) error {
	switch {
	case errors.Is(err, auth.ErrTokenExpired):
		return fmt.Errorf("%w: %w", ErrExpired, err)
	case errors.Is(err, auth.ErrTokenRevoked):
		return fmt.Errorf("%w: %w", ErrRevoked, err)
	case errors.Is(err, auth.ErrUserDisabled):
		return fmt.Errorf("%w: %w", principal.ErrDisabled, err)
	case errors.Is(err, auth.ErrTokenInvalid):
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	default:
		return err
	}
}
