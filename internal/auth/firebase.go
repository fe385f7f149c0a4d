package auth

import (
	"context"
	"fmt"
	"time"

	firebase "firebase.google.com/go/v4"
	firebaseAuth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"
)

// firebaseClient is the subset of *firebaseAuth.Client used here
type firebaseClient interface {
	VerifyIDTokenAndCheckRevoked(ctx context.Context, idToken string) (*firebaseAuth.Token, error)
	CustomTokenWithClaims(ctx context.Context, uid string, devClaims map[string]interface{}) (string, error)
	SessionCookie(ctx context.Context, idToken string, expiresIn time.Duration) (string, error)
	VerifySessionCookieAndCheckRevoked(ctx context.Context, sessionCookie string) (*firebaseAuth.Token, error)
	RevokeRefreshTokens(ctx context.Context, uid string) error
	GetUser(ctx context.Context, uid string) (*firebaseAuth.UserRecord, error)
}

// Ensure the SDK client satisfies firebaseClient
var _ firebaseClient = (*firebaseAuth.Client)(nil)

// FirebaseProvider implements Provider using Firebase Admin SDK
type FirebaseProvider struct {
	client firebaseClient
}

// Ensure FirebaseProvider implements Provider interface
var _ Provider = (*FirebaseProvider)(nil)

// FirebaseConfig holds configuration for FirebaseProvider
type FirebaseConfig struct {
	ProjectID       string
	CredentialsPath string
}

// NewFirebaseProvider creates a new Firebase identity provider.
// Session cookies are a project-level feature, so no tenant client is used.
func NewFirebaseProvider(ctx context.Context, cfg FirebaseConfig) (*FirebaseProvider, error) {
	var opts []option.ClientOption
	if cfg.CredentialsPath != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsPath))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{
		ProjectID: cfg.ProjectID,
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create firebase app: %w", err)
	}

	authClient, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get auth client: %w", err)
	}

	return &FirebaseProvider{client: authClient}, nil
}

// VerifyIDToken verifies a Firebase ID token, checking revocation
func (p *FirebaseProvider) VerifyIDToken(ctx context.Context, idToken string) (*Claims, error) {
	token, err := p.client.VerifyIDTokenAndCheckRevoked(ctx, idToken)
	if err != nil {
		return nil, classifyIDTokenError(err)
	}
	return tokenToClaims(token), nil
}

// CustomToken mints a custom token carrying claims
func (p *FirebaseProvider) CustomToken(ctx context.Context, uid string, claims map[string]any) (string, error) {
	token, err := p.client.CustomTokenWithClaims(ctx, uid, claims)
	if err != nil {
		return "", fmt.Errorf("failed to mint custom token: %w", err)
	}
	return token, nil
}

// SessionCookie exchanges an ID token for a session cookie.
// Firebase only accepts durations between 5 minutes and 2 weeks.
func (p *FirebaseProvider) SessionCookie(ctx context.Context, idToken string, expiresIn time.Duration) (string, error) {
	cookie, err := p.client.SessionCookie(ctx, idToken, expiresIn)
	if err != nil {
		return "", classifyIDTokenError(err)
	}
	return cookie, nil
}

// VerifySessionCookie verifies a session cookie, checking revocation
func (p *FirebaseProvider) VerifySessionCookie(ctx context.Context, cookie string) (*Claims, error) {
	token, err := p.client.VerifySessionCookieAndCheckRevoked(ctx, cookie)
	if err != nil {
		return nil, classifySessionCookieError(err)
	}
	return tokenToClaims(token), nil
}

// RevokeSessions revokes refresh tokens of uid
func (p *FirebaseProvider) RevokeSessions(ctx context.Context, uid string) error {
	if err := p.client.RevokeRefreshTokens(ctx, uid); err != nil {
		return fmt.Errorf("failed to revoke sessions: %w", err)
	}
	return nil
}

// LookupEmail reads the email of the provider account uid
func (p *FirebaseProvider) LookupEmail(ctx context.Context, uid string) (string, error) {
	u, err := p.client.GetUser(ctx, uid)
	if err != nil {
		if firebaseAuth.IsUserNotFound(err) {
			return "", fmt.Errorf("%w: %w", ErrUserNotFound, err)
		}
		return "", fmt.Errorf("failed to get user: %w", err)
	}
	if u.UserInfo == nil {
		return "", nil
	}
	return u.Email, nil
}

func classifyIDTokenError(err error) error {
	switch {
	case firebaseAuth.IsIDTokenExpired(err):
		return fmt.Errorf("%w: %w", ErrTokenExpired, err)
	case firebaseAuth.IsIDTokenRevoked(err):
		return fmt.Errorf("%w: %w", ErrTokenRevoked, err)
	case firebaseAuth.IsUserDisabled(err):
		return fmt.Errorf("%w: %w", ErrUserDisabled, err)
	case firebaseAuth.IsIDTokenInvalid(err):
		return fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	default:
		return fmt.Errorf("failed to verify ID token: %w", err)
	}
}

func classifySessionCookieError(err error) error {
	switch {
	case firebaseAuth.IsSessionCookieExpired(err):
		return fmt.Errorf("%w: %w", ErrTokenExpired, err)
	case firebaseAuth.IsSessionCookieRevoked(err):
		return fmt.Errorf("%w: %w", ErrTokenRevoked, err)
	case firebaseAuth.IsUserDisabled(err):
		return fmt.Errorf("%w: %w", ErrUserDisabled, err)
	case firebaseAuth.IsSessionCookieInvalid(err):
		return fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	default:
		return fmt.Errorf("failed to verify session cookie: %w", err)
	}
}

func tokenToClaims(token *firebaseAuth.Token) *Claims {
	claims := &Claims{
		UID:           token.UID,
		Email:         getStringClaim(token.Claims, "email"),
		EmailVerified: getBoolClaim(token.Claims, "email_verified"),
		Name:          getStringClaim(token.Claims, "name"),
		Picture:       getStringClaim(token.Claims, "picture"),
		ProviderID:    token.Firebase.SignInProvider,
		Custom:        customClaims(token.Claims),
		IssuedAt:      time.Unix(token.IssuedAt, 0),
		ExpiresAt:     time.Unix(token.Expires, 0),
	}
	return claims
}
