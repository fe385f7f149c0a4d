package intent

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/otiai10/gatekeeper/internal/config"
	"github.com/otiai10/gatekeeper/internal/principal"
	"github.com/otiai10/gatekeeper/internal/security"
)

// Read failures, in the order they are checked. Any of them means the
// intent is treated as absent.
var (
	ErrMissing       = errors.New("no auth intent cookie found")
	ErrMalformed     = errors.New("corrupted authentication data")
	ErrMissingFields = errors.New("missing required fields in cookie")
	ErrInvalidRole   = errors.New("invalid user role")
	ErrExpired       = errors.New("login attempt expired")
	ErrInvalidToken  = errors.New("invalid or corrupted authentication token")
)

// Intent is a validated login intent
type Intent struct {
	Role        principal.Role `json:"role"`
	RedirectURL string         `json:"redirectUrl"`
	CreatedAt   time.Time      `json:"createdAt"`
}

// payload is the cookie wire format
type payload struct {
	UserRole         string `json:"userRole"`
	RedirectURL      string `json:"redirectUrl"`
	LoginTimeRequest int64  `json:"loginTimeRequest"` // epoch ms
	ValidationToken  string `json:"validationToken"`
}

// Manager reads and writes the intent cookie on the shared parent domain
type Manager struct {
	name      string
	maxAge    time.Duration
	policy    security.CookiePolicy
	redirects *security.RedirectValidator
	domain    config.DomainConfig
	now       func() time.Time
}

// NewManager creates a Manager
func NewManager(cfg config.IntentConfig, domain config.DomainConfig, redirects *security.RedirectValidator) *Manager {
	return &Manager{
		name:      cfg.CookieName,
		maxAge:    cfg.MaxAge,
		policy:    security.NewCookiePolicy(domain.Root, true),
		redirects: redirects,
		domain:    domain,
		now:       time.Now,
	}
}

// Set writes a fresh intent cookie, replacing any existing one.
// redirectURL falls back to the role's landing page when it is empty or
// outside the allow-list.
func (m *Manager) Set(w http.ResponseWriter, role principal.Role, redirectURL string) (*Intent, error) {
	if _, err := principal.ParseRole(string(role)); err != nil {
		return nil, ErrInvalidRole
	}

	now := m.now()
	redirectURL = m.redirects.Sanitize(redirectURL, m.domain.BaseURL(string(role)))

	value, err := encode(payload{
		UserRole:         string(role),
		RedirectURL:      redirectURL,
		LoginTimeRequest: now.UnixMilli(),
		ValidationToken:  NewToken(now),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode intent: %w", err)
	}

	m.policy.Set(w, m.name, value, m.maxAge)

	return &Intent{Role: role, RedirectURL: redirectURL, CreatedAt: time.UnixMilli(now.UnixMilli())}, nil
}

// Read validates the intent cookie on r. An expired cookie is cleared on w.
func (m *Manager) Read(w http.ResponseWriter, r *http.Request) (*Intent, error) {
	c, err := r.Cookie(m.name)
	if err != nil || c.Value == "" {
		return nil, ErrMissing
	}

	p, err := decode(c.Value)
	if err != nil {
		return nil, ErrMalformed
	}

	if p.UserRole == "" || p.LoginTimeRequest == 0 || p.ValidationToken == "" {
		return nil, ErrMissingFields
	}

	role, err := principal.ParseRole(p.UserRole)
	if err != nil {
		return nil, ErrInvalidRole
	}

	now := m.now()
	createdAt := time.UnixMilli(p.LoginTimeRequest)
	if now.Sub(createdAt) > m.maxAge {
		m.Clear(w)
		return nil, ErrExpired
	}

	if !ValidToken(p.ValidationToken, now, m.maxAge) {
		return nil, ErrInvalidToken
	}

	return &Intent{Role: role, RedirectURL: p.RedirectURL, CreatedAt: createdAt}, nil
}

// Consume reads the intent and clears it whether or not it was valid
func (m *Manager) Consume(w http.ResponseWriter, r *http.Request) (*Intent, error) {
	in, err := m.Read(w, r)
	if !errors.Is(err, ErrExpired) {
		m.Clear(w)
	}
	return in, err
}

// Clear expires the intent cookie. It is idempotent.
func (m *Manager) Clear(w http.ResponseWriter) {
	m.policy.Clear(w, m.name)
}

func encode(p payload) (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// decode accepts URL-safe and standard base64, padded or not, so that
// intents written by browser btoa() are readable too.
func decode(value string) (*payload, error) {
	trimmed := strings.TrimRight(value, "=")

	b, err := base64.RawURLEncoding.DecodeString(trimmed)
	if err != nil {
		b, err = base64.RawStdEncoding.DecodeString(trimmed)
		if err != nil {
			return nil, err
		}
	}

	var p payload
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, err
	}
	return &p, nil
}
