package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `domain:
  root: example.com
  hubUrl: https://auth.example.com
  adminUrl: https://cp.example.com
  userUrl: https://example.com
auth:
  testMode: true
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_ValidYAML(t *testing.T) {
	path := writeConfig(t, minimalYAML+`session:
  secret: s3cret
principals:
  - id: emp-1
    role: admin
    email: ops@example.com
    displayName: Ops
  - id: usr-1
    role: user
    email: user@example.com
    disabled: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "example.com", cfg.Domain.Root)
	assert.Equal(t, "https://auth.example.com", cfg.Domain.HubURL)
	assert.Equal(t, "s3cret", cfg.Session.Secret)
	require.Len(t, cfg.Principals, 2)
	assert.Equal(t, "emp-1", cfg.Principals[0].ID)
	assert.Equal(t, "admin", cfg.Principals[0].Role)
	assert.True(t, cfg.Principals[1].Disabled)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.Environment)
	assert.Equal(t, ":8080", cfg.API.Addr)
	assert.Equal(t, SessionModeHMAC, cfg.Session.Mode)
	assert.Equal(t, "auth_session", cfg.Session.CookieName)
	assert.Equal(t, "auth_state", cfg.Session.MirrorCookieName)
	assert.Equal(t, 24*time.Hour, cfg.Session.Duration)
	assert.Equal(t, "authIntent", cfg.Intent.CookieName)
	assert.Equal(t, 20*time.Minute, cfg.Intent.MaxAge)
	assert.Equal(t, 60*time.Second, cfg.Relay.TTL)
	assert.Equal(t, 500*time.Millisecond, cfg.Relay.PollInterval)
	assert.Equal(t, 30*time.Second, cfg.Relay.PollTimeout)
	assert.Equal(t, 90*time.Second, cfg.Auth.PassportDeadline)
	assert.Equal(t, []string{"cp.example.com", "example.com"}, cfg.Domain.AllowedRedirectDomains)
	assert.Equal(t, []string{"https://auth.example.com", "https://cp.example.com", "https://example.com"}, cfg.Domain.CORSOrigins)
	assert.Equal(t, "https://auth.example.com/auth/login", cfg.Domain.LoginURL())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("GATEKEEPER_DOMAIN_ROOT", "example.org")
	t.Setenv("GATEKEEPER_SESSION_DURATION", "2h")
	t.Setenv("GATEKEEPER_RELAY_TTL", "5s")
	t.Setenv("GATEKEEPER_LOG_LEVEL", "debug")
	t.Setenv("GATEKEEPER_DOMAIN_ALLOWED_REDIRECT_DOMAINS", "a.example.org,b.example.org")

	cfg, err := Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, "example.org", cfg.Domain.Root)
	assert.Equal(t, 2*time.Hour, cfg.Session.Duration)
	assert.Equal(t, 5*time.Second, cfg.Relay.TTL)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, []string{"a.example.org", "b.example.org"}, cfg.Domain.AllowedRedirectDomains)
	// Unset variables leave file values alone.
	assert.Equal(t, "https://auth.example.com", cfg.Domain.HubURL)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("GATEKEEPER_DOMAIN_ROOT", "example.com")
	t.Setenv("GATEKEEPER_DOMAIN_HUB_URL", "https://auth.example.com")
	t.Setenv("GATEKEEPER_DOMAIN_ADMIN_URL", "https://cp.example.com")
	t.Setenv("GATEKEEPER_DOMAIN_USER_URL", "https://example.com")
	t.Setenv("GATEKEEPER_AUTH_PROJECT_ID", "proj")
	t.Setenv("GATEKEEPER_STORE_PROJECT_ID", "proj-store")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "proj", cfg.Auth.ProjectID)
	assert.Equal(t, "proj-store", cfg.Store.ProjectID)
	assert.True(t, cfg.Store.Enabled())
	assert.Equal(t, "(default)", cfg.Store.Database)
}

func TestLoad_TestModeOverride(t *testing.T) {
	path := writeConfig(t, `domain:
  root: example.com
  hubUrl: https://auth.example.com
  adminUrl: https://cp.example.com
  userUrl: https://example.com
`)

	_, err := Load(path)
	require.Error(t, err, "a real provider needs auth.projectId")

	cfg, err := Load(path, WithTestMode())
	require.NoError(t, err)
	assert.True(t, cfg.Auth.TestMode)
	_, set := os.LookupEnv("GATEKEEPER_AUTH_TEST_MODE")
	assert.False(t, set, "the override does not leak into the environment")

	_, err = Load(writeConfig(t, minimalYAML+"environment: production\n"), WithTestMode())
	require.Error(t, err, "test mode is still refused in production")
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "domain: [unterminated"))
	require.Error(t, err)
}

func validConfig() *Config {
	cfg := &Config{
		Domain: DomainConfig{
			Root:     "example.com",
			HubURL:   "https://auth.example.com",
			AdminURL: "https://cp.example.com",
			UserURL:  "https://example.com",
		},
		Auth: AuthConfig{TestMode: true},
	}
	cfg.applyDefaults()
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(*Config) {},
		},
		{
			name:    "missing root domain",
			mutate:  func(c *Config) { c.Domain.Root = "" },
			wantErr: "domain.root is required",
		},
		{
			name:    "leading dot root domain",
			mutate:  func(c *Config) { c.Domain.Root = ".example.com" },
			wantErr: "must not start with a dot",
		},
		{
			name:    "relative hub url",
			mutate:  func(c *Config) { c.Domain.HubURL = "/login" },
			wantErr: "domain.hubUrl is not an absolute URL",
		},
		{
			name:    "unknown environment",
			mutate:  func(c *Config) { c.Environment = "staging" },
			wantErr: "unsupported environment",
		},
		{
			name: "production without secret",
			mutate: func(c *Config) {
				c.Environment = EnvProduction
				c.Auth.TestMode = false
				c.Auth.ProjectID = "proj"
			},
			wantErr: "session.secret is required in production",
		},
		{
			name: "test mode in production",
			mutate: func(c *Config) {
				c.Environment = EnvProduction
				c.Session.Secret = "x"
			},
			wantErr: "auth.testMode cannot be enabled in production",
		},
		{
			name:    "missing project without test mode",
			mutate:  func(c *Config) { c.Auth.TestMode = false },
			wantErr: "auth.projectId is required",
		},
		{
			name:    "unknown session mode",
			mutate:  func(c *Config) { c.Session.Mode = "jwt" },
			wantErr: "unsupported session.mode",
		},
		{
			name:    "cookie name collision",
			mutate:  func(c *Config) { c.Session.MirrorCookieName = c.Session.CookieName },
			wantErr: "must differ",
		},
		{
			name:    "poll interval longer than ceiling",
			mutate:  func(c *Config) { c.Relay.PollInterval = time.Minute },
			wantErr: "relay.pollInterval must be shorter",
		},
		{
			name:    "principal without id",
			mutate:  func(c *Config) { c.Principals = []PrincipalConfig{{Role: "admin"}} },
			wantErr: "principals[0].id is required",
		},
		{
			name:    "principal with bad role",
			mutate:  func(c *Config) { c.Principals = []PrincipalConfig{{ID: "x", Role: "root"}} },
			wantErr: `principals[0].role "root" is not supported`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestEnsureSessionSecret(t *testing.T) {
	cfg := validConfig()

	generated, err := cfg.EnsureSessionSecret()
	require.NoError(t, err)
	assert.True(t, generated)
	assert.Len(t, cfg.Session.Secret, 64)

	generated, err = cfg.EnsureSessionSecret()
	require.NoError(t, err)
	assert.False(t, generated, "existing secret must be kept")

	prod := validConfig()
	prod.Environment = EnvProduction
	_, err = prod.EnsureSessionSecret()
	assert.Error(t, err)
}

func TestDomainConfig_BaseURL(t *testing.T) {
	d := validConfig().Domain
	assert.Equal(t, "https://cp.example.com", d.BaseURL("admin"))
	assert.Equal(t, "https://example.com", d.BaseURL("user"))
}
