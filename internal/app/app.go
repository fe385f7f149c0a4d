// Package app wires the configured components together and runs the HTTP
// server until its context is cancelled.
package app

import (
	"context"
	"crypto/rand"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/otiai10/gatekeeper/internal/api"
	"github.com/otiai10/gatekeeper/internal/auth"
	"github.com/otiai10/gatekeeper/internal/config"
	"github.com/otiai10/gatekeeper/internal/intent"
	"github.com/otiai10/gatekeeper/internal/passport"
	"github.com/otiai10/gatekeeper/internal/principal"
	"github.com/otiai10/gatekeeper/internal/relay"
	"github.com/otiai10/gatekeeper/internal/security"
	"github.com/otiai10/gatekeeper/internal/session"
	"github.com/otiai10/gatekeeper/internal/store"
)

const (
	defaultShutdownTimeout = 10 * time.Second
	minWriteTimeout        = 15 * time.Second
)

// App is the main application orchestrator.
// Every component is constructed once here and injected downwards.
type App struct {
	config     *config.Config
	provider   auth.Provider
	local      *auth.LocalProvider // set in test mode only
	repo       principal.Repository
	relayStore relay.Store
	firestore  *store.FirestoreClient
	handler    http.Handler
	server     *api.Server

	shutdownTimeout time.Duration
}

// Option is a functional option for configuring the App.
type Option func(*App)

// WithProvider replaces the identity provider built from config
func WithProvider(p auth.Provider) Option {
	return func(a *App) {
		a.provider = p
	}
}

// WithRepository replaces the principal repository built from config
func WithRepository(r principal.Repository) Option {
	return func(a *App) {
		a.repo = r
	}
}

// WithRelayStore replaces the relay store built from config
func WithRelayStore(s relay.Store) Option {
	return func(a *App) {
		a.relayStore = s
	}
}

// WithShutdownTimeout sets how long Run waits for in-flight requests
func WithShutdownTimeout(d time.Duration) Option {
	return func(a *App) {
		a.shutdownTimeout = d
	}
}

// New creates a new application instance from a validated configuration.
//
// Parameters:
//   - ctx: Context for client creation
//   - cfg: Validated configuration; a missing HMAC secret is filled in outside production
//   - opts: Optional replacements for config-built components
//
// Returns:
//   - App ready to Run
//   - Error if any component cannot be built
//
// Example:
//
//	cfg, err := config.Load("config.yaml")
//	if err != nil {
//	    log.Fatal().Err(err).Msg("config")
//	}
//	a, err := app.New(ctx, cfg)
//	if err != nil {
//	    log.Fatal().Err(err).Msg("init")
//	}
//	defer a.Close()
//	err = a.Run(ctx)
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{
		config:          cfg,
		shutdownTimeout: defaultShutdownTimeout,
	}
	for _, opt := range opts {
		opt(a)
	}

	if err := a.initStores(ctx); err != nil {
		return nil, err
	}
	if err := a.initProvider(ctx); err != nil {
		a.Close()
		return nil, err
	}

	handler, err := a.buildRouter()
	if err != nil {
		a.Close()
		return nil, err
	}
	a.handler = handler
	a.server = api.NewServer(cfg.API.Addr, handler, writeTimeout(cfg.Relay))

	return a, nil
}

// initStores builds the principal repository and relay store.
// Without a Firestore project both live in memory.
func (a *App) initStores(ctx context.Context) error {
	if a.repo != nil && a.relayStore != nil {
		return nil
	}

	if !a.config.Store.Enabled() {
		if a.repo == nil {
			repo, err := principal.NewStaticRepository(a.config.Principals)
			if err != nil {
				return fmt.Errorf("failed to load static principals: %w", err)
			}
			a.repo = repo
			log.Info().Int("principals", len(a.config.Principals)).Msg("using static principals from config file")
		}
		if a.relayStore == nil {
			a.relayStore = relay.NewMemoryStore()
			log.Warn().Msg("using in-memory relay store; bundles are not shared between instances")
		}
		return nil
	}

	fc, err := store.NewFirestoreClient(ctx, a.config.Store)
	if err != nil {
		return err
	}
	a.firestore = fc

	if a.repo == nil {
		a.repo = principal.NewFirestoreRepository(fc.Client())
	}
	if a.relayStore == nil {
		a.relayStore = relay.NewFirestoreStore(fc.Client())
	}
	log.Info().Str("project", fc.ProjectID()).Str("database", fc.Database()).Msg("using Firestore for principals and relay")
	return nil
}

func (a *App) initProvider(ctx context.Context) error {
	if a.provider == nil {
		if a.config.Auth.TestMode {
			key := []byte(a.config.Auth.TestSigningKey)
			if len(key) == 0 {
				key = make([]byte, 32)
				if _, err := rand.Read(key); err != nil {
					return fmt.Errorf("failed to generate test signing key: %w", err)
				}
			}
			a.provider = auth.NewLocalProvider(key)
		} else {
			fp, err := auth.NewFirebaseProvider(ctx, auth.FirebaseConfig{
				ProjectID:       a.config.Auth.ProjectID,
				CredentialsPath: a.config.Auth.Credentials,
			})
			if err != nil {
				return err
			}
			a.provider = fp
			log.Info().Str("project", a.config.Auth.ProjectID).Msg("Firebase Auth enabled")
		}
	}

	if a.config.Auth.TestMode {
		if lp, ok := a.provider.(*auth.LocalProvider); ok {
			a.local = lp
			log.Warn().Msg("TEST MODE: local identity provider and dev sign-in routes are enabled")
		}
	}
	return nil
}

func (a *App) buildRouter() (http.Handler, error) {
	cfg := a.config

	if cfg.Session.Mode == config.SessionModeHMAC {
		generated, err := cfg.EnsureSessionSecret()
		if err != nil {
			return nil, err
		}
		if generated {
			log.Warn().Msg("session.secret not set; generated a random one, sessions will not survive a restart")
		}
	}

	sessions, err := session.NewManager(cfg.Session, a.provider)
	if err != nil {
		return nil, err
	}

	resolver := principal.NewResolver(a.repo)
	redirects := security.NewRedirectValidator(cfg.Domain.AllowedRedirectDomains, !cfg.IsProduction())

	h := api.NewHandler(api.HandlerConfig{
		Domain:    cfg.Domain,
		Provider:  a.provider,
		Resolver:  resolver,
		Issuer:    passport.NewIssuer(resolver, a.provider, cfg.Auth.PassportDeadline),
		Sessions:  sessions,
		Cookies:   session.NewCookies(cfg.Session, cfg.Domain.Root),
		Intents:   intent.NewManager(cfg.Intent, cfg.Domain, redirects),
		Relay:     relay.NewService(a.relayStore, cfg.Relay),
		Redirects: redirects,
	})

	var dev *api.DevHandler
	if a.local != nil {
		dev = api.NewDevHandler(a.local, resolver)
	}

	return api.NewRouter(api.RouterConfig{
		Handler:     h,
		Verifier:    a.provider,
		CORSOrigins: cfg.Domain.CORSOrigins,
		Dev:         dev,
		Debug:       cfg.LogLevel == "debug",
	}), nil
}

// Handler returns the fully wired HTTP handler
func (a *App) Handler() http.Handler {
	return a.handler
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", a.server.Addr()).Str("env", a.config.Environment).Msg("gatekeeper listening")
		return a.server.Start()
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("API server shutdown error: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// Close releases external clients
func (a *App) Close() {
	if a.firestore == nil {
		return
	}
	if err := a.firestore.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close Firestore client")
	}
}

// writeTimeout leaves room for the longest relay poll
func writeTimeout(cfg config.RelayConfig) time.Duration {
	if d := cfg.PollTimeout + minWriteTimeout; d > minWriteTimeout {
		return d
	}
	return minWriteTimeout
}
