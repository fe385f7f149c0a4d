// Package passport mints the short-lived custom credential a satellite
// exchanges for a local sign-in.
package passport

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/otiai10/gatekeeper/internal/apperr"
	"github.com/otiai10/gatekeeper/internal/principal"
)

// Caller-facing denial messages
const (
	msgLoginRequired = "Authentication required."
	msgInvalidTarget = "targetApp must be \"admin\" or \"user\"."
	msgAccessDenied  = "Access denied."
	msgDisabled      = "Account disabled."
	msgTimeout       = "Passport issuance timed out."
)

// TokenMinter mints signed custom credentials
type TokenMinter interface {
	CustomToken(ctx context.Context, uid string, claims map[string]any) (string, error)
}

// Caller is the verified identity asking for a passport
type Caller struct {
	UID   string
	Email string
}

// Passport is the minted credential plus the display-safe profile subset
type Passport struct {
	Credential string               `json:"token"`
	Role       principal.Role       `json:"role"`
	RecordID   string               `json:"firestoreDocId"`
	Collection principal.Collection `json:"collection"`
	Email      string               `json:"email"`
	Name       string               `json:"name"`
}

// Issuer is the single construction point for passports
type Issuer struct {
	resolver *principal.Resolver
	minter   TokenMinter
	deadline time.Duration
}

// NewIssuer creates an Issuer. A zero deadline disables the issuance timeout.
func NewIssuer(resolver *principal.Resolver, minter TokenMinter, deadline time.Duration) *Issuer {
	return &Issuer{resolver: resolver, minter: minter, deadline: deadline}
}

// Issue re-validates the caller against the record store for targetApp and
// mints a passport. Every failure is a status error from the apperr
// taxonomy; internal detail is only logged.
func (i *Issuer) Issue(ctx context.Context, caller Caller, targetApp string) (*Passport, error) {
	if caller.UID == "" {
		return nil, apperr.Unauthenticated(msgLoginRequired)
	}

	target, err := principal.ParseRole(targetApp)
	if err != nil {
		return nil, apperr.InvalidArgument(msgInvalidTarget)
	}

	return i.issue(ctx, caller, target)
}

// Exchange mints a passport for whatever role the caller resolves to
// without a target restriction.
func (i *Issuer) Exchange(ctx context.Context, caller Caller) (*Passport, error) {
	if caller.UID == "" {
		return nil, apperr.Unauthenticated(msgLoginRequired)
	}
	return i.issue(ctx, caller, "")
}

func (i *Issuer) issue(ctx context.Context, caller Caller, target principal.Role) (*Passport, error) {
	if i.deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.deadline)
		defer cancel()
	}

	logger := log.With().
		Str("uid", caller.UID).
		Str("target", string(target)).
		Logger()

	res, err := i.resolver.Resolve(ctx, caller.UID, caller.Email, target)
	switch {
	case errors.Is(err, principal.ErrNotFound):
		logger.Warn().Msg("passport denied: no matching record")
		return nil, apperr.PermissionDenied(msgAccessDenied)
	case errors.Is(err, principal.ErrDisabled):
		logger.Warn().Msg("passport denied: account disabled")
		return nil, apperr.PermissionDenied(msgDisabled)
	case err != nil:
		return nil, i.internal(ctx, logger.Error().Err(err), "role resolution failed")
	}

	p := res.Principal
	email := p.Email
	if email == "" {
		email = caller.Email
	}

	token, err := i.minter.CustomToken(ctx, caller.UID, map[string]any{
		"role":           string(res.Role),
		"email":          email,
		"firestoreDocId": p.ID,
		"collection":     string(res.Collection()),
	})
	if err != nil {
		return nil, i.internal(ctx, logger.Error().Err(err), "custom token mint failed")
	}

	logger.Info().
		Str("role", string(res.Role)).
		Str("collection", string(res.Collection())).
		Str("docId", p.ID).
		Msg("passport issued")

	return &Passport{
		Credential: token,
		Role:       res.Role,
		RecordID:   p.ID,
		Collection: res.Collection(),
		Email:      email,
		Name:       p.Name(),
	}, nil
}

// internal logs evt and returns the caller-safe error for a failure that is
// not the caller's fault.
func (i *Issuer) internal(ctx context.Context, evt *zerolog.Event, msg string) error {
	evt.Msg(msg)
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apperr.DeadlineExceeded(msgTimeout)
	}
	return apperr.Internal()
}
