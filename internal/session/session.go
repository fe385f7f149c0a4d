// Package session mints and validates the artifact that keeps a principal
// signed in across the satellites of the shared parent domain.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/otiai10/gatekeeper/internal/auth"
	"github.com/otiai10/gatekeeper/internal/config"
	"github.com/otiai10/gatekeeper/internal/principal"
)

// Validation failures
var (
	ErrMissing   = errors.New("no session cookie")
	ErrMalformed = errors.New("malformed session")
	ErrSignature = errors.New("session signature mismatch")
	ErrExpired   = errors.New("session expired")
	ErrRevoked   = errors.New("session revoked")
	ErrInvalid   = errors.New("invalid session")
)

// Outward error codes
const (
	CodeNoSession = "NO_SESSION_COOKIE"
	CodeExpired   = "SESSION_EXPIRED"
	CodeRevoked   = "SESSION_REVOKED"
	CodeInvalid   = "INVALID_TOKEN"
	// CodeDenied covers both disabled and unknown principals
	CodeDenied = "PERMISSION_DENIED"
)

// ErrorCode maps a validation failure to its outward code, so callers can
// choose between a silent re-auth (expired) and a hard failure.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrMissing):
		return CodeNoSession
	case errors.Is(err, ErrExpired):
		return CodeExpired
	case errors.Is(err, ErrRevoked):
		return CodeRevoked
	case errors.Is(err, principal.ErrDisabled), errors.Is(err, principal.ErrNotFound):
		return CodeDenied
	default:
		return CodeInvalid
	}
}

// Session is a validated session artifact
type Session struct {
	PrincipalID string
	Role        principal.Role // empty when the artifact does not carry one
	Email       string
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

// MintRequest carries what either variant needs to mint an artifact
type MintRequest struct {
	IDToken     string // required by the provider variant
	PrincipalID string // required by the HMAC variant
	Role        principal.Role
}

// Manager mints and validates session artifacts
type Manager interface {
	Mint(ctx context.Context, req MintRequest) (string, error)
	Validate(ctx context.Context, artifact string) (*Session, error)
	// Revoke invalidates the artifact beyond clearing the cookie, where the
	// variant supports it
	Revoke(ctx context.Context, s *Session) error
	Duration() time.Duration
}

// NewManager builds the Manager selected by cfg.Mode
func NewManager(cfg config.SessionConfig, provider auth.Provider) (Manager, error) {
	switch cfg.Mode {
	case config.SessionModeHMAC:
		if cfg.Secret == "" {
			return nil, fmt.Errorf("session secret is required for %q mode", cfg.Mode)
		}
		return NewSigner([]byte(cfg.Secret), cfg.Duration), nil
	case config.SessionModeFirebase:
		if provider == nil {
			return nil, fmt.Errorf("identity provider is required for %q mode", cfg.Mode)
		}
		return NewProviderManager(provider, cfg.Duration), nil
	default:
		return nil, fmt.Errorf("unsupported session mode: %q", cfg.Mode)
	}
}
