package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/otiai10/gatekeeper/internal/app"
	"github.com/otiai10/gatekeeper/internal/config"
	"github.com/otiai10/gatekeeper/internal/version"
)

// ServeCmd runs the HTTP server
type ServeCmd struct {
	TestMode bool `help:"Use the local identity provider and enable dev sign-in routes. Never in production."`
}

// Run implements kong's command interface
func (c *ServeCmd) Run(ctx context.Context, globals *Globals) error {
	var overrides []config.Override
	if c.TestMode {
		overrides = append(overrides, config.WithTestMode())
	}

	cfg, err := loadConfig(globals, overrides...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	defer a.Close()

	log.Info().Str("hash", version.CommitHash).Str("root", cfg.Domain.Root).Msg("gatekeeper starting")
	if err := a.Run(ctx); err != nil {
		return err
	}
	log.Info().Msg("Goodbye!")
	return nil
}

// SeedCmd writes the configured principals into Firestore
type SeedCmd struct{}

// Run implements kong's command interface
func (c *SeedCmd) Run(ctx context.Context, globals *Globals) error {
	cfg, err := loadConfig(globals)
	if err != nil {
		return err
	}

	n, err := app.SeedFirestore(ctx, cfg)
	if err != nil {
		return err
	}
	log.Info().Int("count", n).Msg("seeded principals")
	return nil
}

func loadConfig(globals *Globals, overrides ...config.Override) (*config.Config, error) {
	cfg, err := config.Load(globals.Config, overrides...)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if globals.LogLevel != "" {
		cfg.LogLevel = globals.LogLevel
	}
	if err := setupLogger(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setupLogger configures the global zerolog logger: console output in
// development, JSON in production.
func setupLogger(cfg *config.Config) error {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	zerolog.SetGlobalLevel(level)

	if cfg.IsProduction() {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
		return nil
	}
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		With().Timestamp().Caller().Logger()
	return nil
}
