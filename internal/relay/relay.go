// Package relay hands a freshly issued credential from one subdomain to
// another through a one-time bundle in the shared record store.
package relay

import (
	"context"
	"errors"
	"time"

	"github.com/otiai10/gatekeeper/internal/principal"
)

// Error definitions
var (
	// ErrNotFound is returned while a bundle has not been written yet.
	// Pollers retry on it.
	ErrNotFound = errors.New("bundle not found")

	// ErrAlreadyUsed is returned for every consume after the first
	ErrAlreadyUsed = errors.New("bundle already used")

	// ErrExpired is returned when a bundle is read past its expiry
	ErrExpired = errors.New("bundle expired")

	// ErrTimeout is returned when polling hits its ceiling
	ErrTimeout = errors.New("relay polling timed out")

	// ErrDuplicate is returned when a bundle ID is reused
	ErrDuplicate = errors.New("bundle already exists")
)

// Bundle is a one-time cross-domain handoff document.
// State machine: pending -> consumed, or pending -> expired (detected on read).
type Bundle struct {
	ID          string
	PrincipalID string
	Role        principal.Role
	Credential  string
	RedirectURL string
	CreatedAt   time.Time
	ExpiresAt   time.Time
	Used        bool
	UsedAt      time.Time
}

// Store persists bundles
type Store interface {
	// Create writes a new bundle; it fails with ErrDuplicate if b.ID exists
	Create(ctx context.Context, b Bundle) error

	// Consume atomically checks the bundle and marks it used before
	// returning it. It returns ErrNotFound, ErrAlreadyUsed or ErrExpired.
	Consume(ctx context.Context, id string, now time.Time) (*Bundle, error)

	// Delete removes a bundle; deleting a missing bundle is not an error
	Delete(ctx context.Context, id string) error
}
