package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/otiai10/gatekeeper/internal/config"
	"github.com/otiai10/gatekeeper/internal/principal"
)

// PrincipalWriter stores principal records
type PrincipalWriter interface {
	Put(ctx context.Context, p principal.Principal) error
}

// Seed writes the configured principals into repo, stopping at the first
// failure. It returns the number of records written.
func Seed(ctx context.Context, repo PrincipalWriter, principals []config.PrincipalConfig) (int, error) {
	for i, pc := range principals {
		p := principal.FromConfig(pc)
		if err := repo.Put(ctx, p); err != nil {
			return i, fmt.Errorf("failed to seed principal %q: %w", pc.ID, err)
		}
		log.Info().
			Str("id", p.ID).
			Str("collection", string(p.Collection)).
			Bool("active", p.IsActive).
			Msg("principal seeded")
	}
	return len(principals), nil
}

// SeedFirestore seeds the configured Firestore project from cfg.Principals
func SeedFirestore(ctx context.Context, cfg *config.Config) (int, error) {
	if !cfg.Store.Enabled() {
		return 0, fmt.Errorf("store.projectId is required to seed")
	}

	a := &App{config: cfg}
	if err := a.initStores(ctx); err != nil {
		return 0, err
	}
	defer a.Close()

	return Seed(ctx, principal.NewFirestoreRepository(a.firestore.Client()), cfg.Principals)
}
