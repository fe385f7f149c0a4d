package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/otiai10/gatekeeper/internal/version"
)

var cli struct {
	Config   string           `help:"Path to the YAML config file. Empty loads from the environment only." type:"path" env:"GATEKEEPER_CONFIG"`
	LogLevel string           `help:"Override the configured log level (debug, info, warn, error)."`
	Version  kong.VersionFlag `help:"Print the build commit and exit."`

	Serve ServeCmd `cmd:"" default:"withargs" help:"Run the auth hub HTTP server."`
	Seed  SeedCmd  `cmd:"" help:"Write the configured principals into Firestore."`
}

// Globals are shared by every command
type Globals struct {
	Config   string
	LogLevel string
}

func main() {
	// Load .env.localdev file if it exists (for local development)
	// Silently ignore if file doesn't exist (production uses real env vars)
	_ = godotenv.Load(".env.localdev")

	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Name("gatekeeper"),
		kong.Description("Cross-subdomain authentication hub."),
		kong.Vars{"version": version.CommitHash},
		kong.BindTo(ctx, (*context.Context)(nil)),
	)
	err := cmd.Run(&Globals{Config: cli.Config, LogLevel: cli.LogLevel})
	cmd.FatalIfErrorf(err)
}
