package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment variable read by Load.
const EnvPrefix = "GATEKEEPER_"

// Environment names
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Session artifact modes
const (
	SessionModeHMAC     = "hmac"
	SessionModeFirebase = "firebase"
)

// Policy defaults
const (
	DefaultSessionDuration  = 24 * time.Hour
	DefaultIntentMaxAge     = 20 * time.Minute
	DefaultRelayTTL         = 60 * time.Second
	DefaultRelayPoll        = 500 * time.Millisecond
	DefaultRelayCeiling     = 30 * time.Second
	DefaultPassportDeadline = 90 * time.Second
)

// Config is resolved once at startup and injected everywhere else.
type Config struct {
	Environment string            `yaml:"environment"`
	LogLevel    string            `yaml:"logLevel"`
	Domain      DomainConfig      `yaml:"domain"`
	API         APIConfig         `yaml:"api"`
	Auth        AuthConfig        `yaml:"auth"`
	Store       StoreConfig       `yaml:"store"`
	Session     SessionConfig     `yaml:"session"`
	Intent      IntentConfig      `yaml:"intent"`
	Relay       RelayConfig       `yaml:"relay"`
	Principals  []PrincipalConfig `yaml:"principals,omitempty"`
}

// DomainConfig describes the hub, the satellites and the shared parent domain
type DomainConfig struct {
	Root                   string   `yaml:"root" env:"ROOT"`          // cookie domain, e.g. "example.com"
	HubURL                 string   `yaml:"hubUrl" env:"HUB_URL"`     // e.g. "https://auth.example.com"
	AdminURL               string   `yaml:"adminUrl" env:"ADMIN_URL"` // e.g. "https://cp.example.com"
	UserURL                string   `yaml:"userUrl" env:"USER_URL"`   // e.g. "https://example.com"
	LoginPath              string   `yaml:"loginPath" env:"LOGIN_PATH"`
	AllowedRedirectDomains []string `yaml:"allowedRedirectDomains" env:"ALLOWED_REDIRECT_DOMAINS"`
	CORSOrigins            []string `yaml:"corsOrigins" env:"CORS_ORIGINS"`
}

// APIConfig represents the HTTP listener configuration
type APIConfig struct {
	Addr string `yaml:"addr" env:"ADDR"`
}

// AuthConfig represents the identity provider configuration
type AuthConfig struct {
	ProjectID        string        `yaml:"projectId" env:"PROJECT_ID"`
	Credentials      string        `yaml:"credentials" env:"CREDENTIALS"`
	TestMode         bool          `yaml:"testMode" env:"TEST_MODE"`
	TestSigningKey   string        `yaml:"testSigningKey" env:"TEST_SIGNING_KEY"`
	PassportDeadline time.Duration `yaml:"passportDeadline" env:"PASSPORT_DEADLINE"`
}

// StoreConfig represents the Firestore configuration.
// An empty ProjectID selects the in-memory stores.
type StoreConfig struct {
	ProjectID   string `yaml:"projectId" env:"PROJECT_ID"`
	Database    string `yaml:"database" env:"DATABASE"`
	Credentials string `yaml:"credentials" env:"CREDENTIALS"`
}

// Enabled reports whether Firestore is configured
func (s StoreConfig) Enabled() bool {
	return s.ProjectID != ""
}

// SessionConfig represents the session artifact and cookie configuration
type SessionConfig struct {
	Mode             string        `yaml:"mode" env:"MODE"` // "hmac" | "firebase"
	Secret           string        `yaml:"secret" env:"SECRET"`
	CookieName       string        `yaml:"cookieName" env:"COOKIE_NAME"`
	MirrorCookieName string        `yaml:"mirrorCookieName" env:"MIRROR_COOKIE_NAME"`
	Duration         time.Duration `yaml:"duration" env:"DURATION"`
}

// IntentConfig represents the login intent cookie configuration
type IntentConfig struct {
	CookieName string        `yaml:"cookieName" env:"COOKIE_NAME"`
	MaxAge     time.Duration `yaml:"maxAge" env:"MAX_AGE"`
}

// RelayConfig represents the cross-domain relay configuration
type RelayConfig struct {
	TTL          time.Duration `yaml:"ttl" env:"TTL"`
	PollInterval time.Duration `yaml:"pollInterval" env:"POLL_INTERVAL"`
	PollTimeout  time.Duration `yaml:"pollTimeout" env:"POLL_TIMEOUT"`
}

// PrincipalConfig is a statically configured principal for local development
type PrincipalConfig struct {
	ID          string `yaml:"id"`
	Role        string `yaml:"role"` // "admin" | "user"
	Email       string `yaml:"email"`
	DisplayName string `yaml:"displayName"`
	Disabled    bool   `yaml:"disabled,omitempty"`
}

// Override adjusts a loaded configuration before defaults and validation,
// e.g. from command-line flags.
type Override func(*Config)

// WithTestMode forces auth.testMode on
func WithTestMode() Override {
	return func(c *Config) { c.Auth.TestMode = true }
}

// Load reads configuration from the specified YAML file, then applies
// GATEKEEPER_* environment overrides and the given overrides, in that
// order. An empty path loads from the environment only.
func Load(path string, overrides ...Override) (*Config, error) {
	if path == "" {
		return LoadFromEnv(overrides...)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	return finish(&cfg, overrides)
}

// LoadFromEnv builds the configuration from environment variables and defaults
func LoadFromEnv(overrides ...Override) (*Config, error) {
	return finish(&Config{}, overrides)
}

func finish(cfg *Config, overrides []Override) (*Config, error) {
	if err := applyEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	for _, o := range overrides {
		o(cfg)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// rootEnv carries the top-level scalars; parsing Config directly would
// recurse into every section under the bare prefix.
type rootEnv struct {
	Environment string `env:"ENV"`
	LogLevel    string `env:"LOG_LEVEL"`
}

// applyEnv parses each section under its own prefix so that only variables
// that are actually set override file values.
func applyEnv(cfg *Config) error {
	root := rootEnv{Environment: cfg.Environment, LogLevel: cfg.LogLevel}

	sections := []struct {
		prefix string
		target any
	}{
		{"", &root},
		{"DOMAIN_", &cfg.Domain},
		{"API_", &cfg.API},
		{"AUTH_", &cfg.Auth},
		{"STORE_", &cfg.Store},
		{"SESSION_", &cfg.Session},
		{"INTENT_", &cfg.Intent},
		{"RELAY_", &cfg.Relay},
	}

	for _, s := range sections {
		if err := env.ParseWithOptions(s.target, env.Options{Prefix: EnvPrefix + s.prefix}); err != nil {
			return err
		}
	}

	cfg.Environment = root.Environment
	cfg.LogLevel = root.LogLevel
	return nil
}

func (c *Config) applyDefaults() {
	if c.Environment == "" {
		c.Environment = EnvDevelopment
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.API.Addr == "" {
		c.API.Addr = ":8080"
	}
	if c.Domain.LoginPath == "" {
		c.Domain.LoginPath = "/auth/login"
	}
	if c.Store.Database == "" {
		c.Store.Database = "(default)"
	}
	if c.Auth.PassportDeadline == 0 {
		c.Auth.PassportDeadline = DefaultPassportDeadline
	}
	if c.Session.Mode == "" {
		c.Session.Mode = SessionModeHMAC
	}
	if c.Session.CookieName == "" {
		c.Session.CookieName = "auth_session"
	}
	if c.Session.MirrorCookieName == "" {
		c.Session.MirrorCookieName = "auth_state"
	}
	if c.Session.Duration == 0 {
		c.Session.Duration = DefaultSessionDuration
	}
	if c.Intent.CookieName == "" {
		c.Intent.CookieName = "authIntent"
	}
	if c.Intent.MaxAge == 0 {
		c.Intent.MaxAge = DefaultIntentMaxAge
	}
	if c.Relay.TTL == 0 {
		c.Relay.TTL = DefaultRelayTTL
	}
	if c.Relay.PollInterval == 0 {
		c.Relay.PollInterval = DefaultRelayPoll
	}
	if c.Relay.PollTimeout == 0 {
		c.Relay.PollTimeout = DefaultRelayCeiling
	}
	if len(c.Domain.AllowedRedirectDomains) == 0 {
		c.Domain.AllowedRedirectDomains = hostsOf(c.Domain.AdminURL, c.Domain.UserURL)
	}
	if len(c.Domain.CORSOrigins) == 0 {
		c.Domain.CORSOrigins = nonEmpty(c.Domain.HubURL, c.Domain.AdminURL, c.Domain.UserURL)
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Environment != EnvDevelopment && c.Environment != EnvProduction {
		return fmt.Errorf("unsupported environment: %q (supported: development, production)", c.Environment)
	}

	if err := c.Domain.Validate(); err != nil {
		return err
	}

	switch c.Session.Mode {
	case SessionModeHMAC:
		if c.Session.Secret == "" && c.IsProduction() {
			return fmt.Errorf("session.secret is required in production")
		}
	case SessionModeFirebase:
		if c.Auth.ProjectID == "" && !c.Auth.TestMode {
			return fmt.Errorf("auth.projectId is required for session.mode %q", SessionModeFirebase)
		}
	default:
		return fmt.Errorf("unsupported session.mode: %q (supported: hmac, firebase)", c.Session.Mode)
	}

	if c.Session.CookieName == c.Session.MirrorCookieName {
		return fmt.Errorf("session.cookieName and session.mirrorCookieName must differ")
	}
	if c.Session.Duration < 0 {
		return fmt.Errorf("session.duration must be positive")
	}
	if c.Intent.MaxAge < 0 {
		return fmt.Errorf("intent.maxAge must be positive")
	}
	if c.Relay.TTL < 0 || c.Relay.PollInterval < 0 || c.Relay.PollTimeout < 0 {
		return fmt.Errorf("relay durations must be positive")
	}
	if c.Relay.PollInterval >= c.Relay.PollTimeout && c.Relay.PollTimeout > 0 {
		return fmt.Errorf("relay.pollInterval must be shorter than relay.pollTimeout")
	}

	if c.Auth.TestMode && c.IsProduction() {
		return fmt.Errorf("auth.testMode cannot be enabled in production")
	}
	if !c.Auth.TestMode && c.Auth.ProjectID == "" {
		return fmt.Errorf("auth.projectId is required unless auth.testMode is enabled")
	}

	for i, p := range c.Principals {
		if p.ID == "" {
			return fmt.Errorf("principals[%d].id is required", i)
		}
		if p.Role != "admin" && p.Role != "user" {
			return fmt.Errorf("principals[%d].role %q is not supported (supported: admin, user)", i, p.Role)
		}
	}

	return nil
}

// Validate checks the domain section
func (d DomainConfig) Validate() error {
	if d.Root == "" {
		return fmt.Errorf("domain.root is required")
	}
	if strings.HasPrefix(d.Root, ".") {
		return fmt.Errorf("domain.root must not start with a dot: %q", d.Root)
	}

	urls := []struct {
		name  string
		value string
	}{
		{"domain.hubUrl", d.HubURL},
		{"domain.adminUrl", d.AdminURL},
		{"domain.userUrl", d.UserURL},
	}
	for _, u := range urls {
		if u.value == "" {
			return fmt.Errorf("%s is required", u.name)
		}
		parsed, err := url.Parse(u.value)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("%s is not an absolute URL: %q", u.name, u.value)
		}
	}

	return nil
}

// IsProduction reports whether the configuration targets production
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// EnsureSessionSecret fills in a random signing secret when none is configured.
// It reports whether a secret was generated. A generated secret invalidates
// every previously issued session on restart, so production refuses it.
func (c *Config) EnsureSessionSecret() (bool, error) {
	if c.Session.Secret != "" {
		return false, nil
	}
	if c.IsProduction() {
		return false, fmt.Errorf("session.secret is required in production")
	}

	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return false, fmt.Errorf("failed to generate session secret: %w", err)
	}
	c.Session.Secret = hex.EncodeToString(b)
	return true, nil
}

// BaseURL returns the landing URL for a satellite app ("admin" or "user")
func (d DomainConfig) BaseURL(app string) string {
	if app == "admin" {
		return d.AdminURL
	}
	return d.UserURL
}

// LoginURL returns the hub login page URL
func (d DomainConfig) LoginURL() string {
	return strings.TrimSuffix(d.HubURL, "/") + d.LoginPath
}

func hostsOf(rawURLs ...string) []string {
	hosts := make([]string, 0, len(rawURLs))
	for _, raw := range rawURLs {
		parsed, err := url.Parse(raw)
		if err != nil || parsed.Hostname() == "" {
			continue
		}
		hosts = append(hosts, parsed.Hostname())
	}
	return hosts
}

func nonEmpty(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			out = append(out, strings.TrimSuffix(v, "/"))
		}
	}
	return out
}
