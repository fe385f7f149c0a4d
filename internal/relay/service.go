package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/otiai10/gatekeeper/internal/config"
	"github.com/otiai10/gatekeeper/internal/principal"
)

// Deposit is what the source subdomain hands over
type Deposit struct {
	PrincipalID string
	Role        principal.Role
	Credential  string
	RedirectURL string
}

// Service deposits and consumes bundles
type Service struct {
	store        Store
	ttl          time.Duration
	pollInterval time.Duration
	pollTimeout  time.Duration
	now          func() time.Time
}

// NewService creates a Service
func NewService(store Store, cfg config.RelayConfig) *Service {
	return &Service{
		store:        store,
		ttl:          cfg.TTL,
		pollInterval: cfg.PollInterval,
		pollTimeout:  cfg.PollTimeout,
		now:          time.Now,
	}
}

// Deposit writes a new pending bundle under a fresh random ID. The bundle is
// durable when Deposit returns, so the redirect may follow.
func (s *Service) Deposit(ctx context.Context, d Deposit) (*Bundle, error) {
	if d.PrincipalID == "" || d.Credential == "" {
		return nil, fmt.Errorf("principal and credential are required")
	}
	if _, err := principal.ParseRole(string(d.Role)); err != nil {
		return nil, err
	}

	now := s.now()
	b := Bundle{
		ID:          uuid.NewString(),
		PrincipalID: d.PrincipalID,
		Role:        d.Role,
		Credential:  d.Credential,
		RedirectURL: d.RedirectURL,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.ttl),
	}

	if err := s.store.Create(ctx, b); err != nil {
		return nil, fmt.Errorf("failed to deposit bundle: %w", err)
	}

	log.Debug().Str("bundle", b.ID).Str("uid", b.PrincipalID).Time("expiresAt", b.ExpiresAt).Msg("bundle deposited")
	return &b, nil
}

// Consume makes a single attempt. Expired bundles are deleted best-effort.
func (s *Service) Consume(ctx context.Context, id string) (*Bundle, error) {
	if id == "" {
		return nil, ErrNotFound
	}

	b, err := s.store.Consume(ctx, id, s.now())
	if errors.Is(err, ErrExpired) {
		if derr := s.store.Delete(ctx, id); derr != nil {
			log.Warn().Err(derr).Str("bundle", id).Msg("failed to delete expired bundle")
		}
	}
	return b, err
}

// Await polls Consume at a fixed interval while the bundle is not yet
// written, up to the poll ceiling. Any outcome other than ErrNotFound
// ends polling immediately. Hitting the ceiling yields ErrTimeout.
func (s *Service) Await(ctx context.Context, id string) (*Bundle, error) {
	pollCtx, cancel := context.WithTimeout(ctx, s.pollTimeout)
	defer cancel()

	attempts := 0
	b, err := backoff.Retry(pollCtx, func() (*Bundle, error) {
		attempts++
		b, err := s.Consume(pollCtx, id)
		if err == nil {
			return b, nil
		}
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, backoff.Permanent(err)
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(s.pollInterval)),
		backoff.WithMaxElapsedTime(s.pollTimeout),
		backoff.WithMaxTries(s.maxAttempts()),
	)
	if err == nil {
		return b, nil
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if errors.Is(err, ErrNotFound) || pollCtx.Err() != nil {
		log.Info().Str("bundle", id).Int("attempts", attempts).Msg("relay polling timed out")
		return nil, ErrTimeout
	}
	return nil, err
}

func (s *Service) maxAttempts() uint {
	if s.pollInterval <= 0 {
		return 1
	}
	return uint(s.pollTimeout/s.pollInterval) + 1
}
