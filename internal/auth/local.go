package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token types minted by LocalProvider
const (
	localTypeID      = "id"
	localTypeCustom  = "custom"
	localTypeSession = "session"
)

const (
	localIssuer         = "gatekeeper-local"
	localIDTokenTTL     = time.Hour
	localCustomTokenTTL = time.Hour
	minSessionDuration  = 5 * time.Minute
	maxSessionDuration  = 14 * 24 * time.Hour
)

// localClaims is the JWT body of every LocalProvider token
type localClaims struct {
	jwt.RegisteredClaims
	Type   string         `json:"typ"`
	Email  string         `json:"email,omitempty"`
	Name   string         `json:"name,omitempty"`
	Claims map[string]any `json:"claims,omitempty"`
}

// LocalProvider is an HS256 identity provider for test mode and tests.
// It mirrors the provider contract: revocation-checked verification,
// custom tokens, session cookies bounded to 5 minutes..2 weeks.
type LocalProvider struct {
	key []byte
	now func() time.Time

	mu        sync.RWMutex
	revokedAt map[string]time.Time
	disabled  map[string]bool
	emails    map[string]string
}

// Ensure LocalProvider implements Provider interface
var _ Provider = (*LocalProvider)(nil)

// NewLocalProvider creates a LocalProvider signing with key
func NewLocalProvider(key []byte) *LocalProvider {
	return &LocalProvider{
		key:       key,
		now:       time.Now,
		revokedAt: make(map[string]time.Time),
		disabled:  make(map[string]bool),
		emails:    make(map[string]string),
	}
}

// WithClock replaces the provider clock
func (p *LocalProvider) WithClock(now func() time.Time) *LocalProvider {
	p.now = now
	return p
}

// IssueIDToken signs an ID token for uid, standing in for a client sign-in
func (p *LocalProvider) IssueIDToken(uid, email, name string, custom map[string]any) (string, error) {
	if email != "" {
		p.mu.Lock()
		p.emails[uid] = email
		p.mu.Unlock()
	}
	return p.sign(localClaims{
		RegisteredClaims: p.registered(uid, localIDTokenTTL),
		Type:             localTypeID,
		Email:            email,
		Name:             name,
		Claims:           custom,
	})
}

// SignInWithCustomToken exchanges a custom token for an ID token,
// the way a client SDK does after receiving a passport.
func (p *LocalProvider) SignInWithCustomToken(ctx context.Context, customToken string) (string, error) {
	lc, err := p.parse(customToken, localTypeCustom)
	if err != nil {
		return "", err
	}
	return p.IssueIDToken(lc.Subject, getStringClaim(lc.Claims, "email"), "", lc.Claims)
}

// VerifyIDToken verifies an ID token, checking revocation
func (p *LocalProvider) VerifyIDToken(ctx context.Context, idToken string) (*Claims, error) {
	lc, err := p.parse(idToken, localTypeID)
	if err != nil {
		return nil, err
	}
	return lc.toClaims(), nil
}

// CustomToken mints a custom token carrying claims
func (p *LocalProvider) CustomToken(ctx context.Context, uid string, claims map[string]any) (string, error) {
	if uid == "" {
		return "", fmt.Errorf("uid must be a non-empty string")
	}
	return p.sign(localClaims{
		RegisteredClaims: p.registered(uid, localCustomTokenTTL),
		Type:             localTypeCustom,
		Claims:           claims,
	})
}

// SessionCookie exchanges an ID token for a session cookie
func (p *LocalProvider) SessionCookie(ctx context.Context, idToken string, expiresIn time.Duration) (string, error) {
	if expiresIn < minSessionDuration || expiresIn > maxSessionDuration {
		return "", fmt.Errorf("session duration %s out of range", expiresIn)
	}

	lc, err := p.parse(idToken, localTypeID)
	if err != nil {
		return "", err
	}

	return p.sign(localClaims{
		RegisteredClaims: p.registered(lc.Subject, expiresIn),
		Type:             localTypeSession,
		Email:            lc.Email,
		Name:             lc.Name,
		Claims:           lc.Claims,
	})
}

// VerifySessionCookie verifies a session cookie, checking revocation
func (p *LocalProvider) VerifySessionCookie(ctx context.Context, cookie string) (*Claims, error) {
	lc, err := p.parse(cookie, localTypeSession)
	if err != nil {
		return nil, err
	}
	return lc.toClaims(), nil
}

// RevokeSessions rejects every token of uid issued before now
func (p *LocalProvider) RevokeSessions(ctx context.Context, uid string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.revokedAt[uid] = p.now()
	return nil
}

// LookupEmail returns the last email an ID token was issued with for uid
func (p *LocalProvider) LookupEmail(ctx context.Context, uid string) (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	email, ok := p.emails[uid]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUserNotFound, uid)
	}
	return email, nil
}

// SetDisabled marks uid as disabled at the provider
func (p *LocalProvider) SetDisabled(uid string, disabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disabled[uid] = disabled
}

func (p *LocalProvider) registered(uid string, ttl time.Duration) jwt.RegisteredClaims {
	now := p.now()
	return jwt.RegisteredClaims{
		Issuer:    localIssuer,
		Subject:   uid,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
}

func (p *LocalProvider) sign(lc localClaims) (string, error) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, lc).SignedString(p.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return token, nil
}

func (p *LocalProvider) parse(raw, wantType string) (*localClaims, error) {
	var lc localClaims
	_, err := jwt.ParseWithClaims(raw, &lc, func(*jwt.Token) (any, error) {
		return p.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(localIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %w", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	if lc.Type != wantType || lc.Subject == "" {
		return nil, fmt.Errorf("%w: unexpected token type %q", ErrTokenInvalid, lc.Type)
	}

	p.mu.RLock()
	revokedAt, revoked := p.revokedAt[lc.Subject]
	disabled := p.disabled[lc.Subject]
	p.mu.RUnlock()

	if disabled {
		return nil, ErrUserDisabled
	}
	if revoked && lc.IssuedAt != nil && lc.IssuedAt.Before(revokedAt.Truncate(time.Second)) {
		return nil, ErrTokenRevoked
	}

	return &lc, nil
}

func (lc *localClaims) toClaims() *Claims {
	c := &Claims{
		UID:        lc.Subject,
		Email:      lc.Email,
		Name:       lc.Name,
		ProviderID: "custom",
		Custom:     customClaims(lc.Claims),
	}
	if c.Email == "" {
		c.Email = getStringClaim(lc.Claims, "email")
	}
	if lc.IssuedAt != nil {
		c.IssuedAt = lc.IssuedAt.Time
	}
	if lc.ExpiresAt != nil {
		c.ExpiresAt = lc.ExpiresAt.Time
	}
	return c
}
