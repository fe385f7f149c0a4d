package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/otiai10/gatekeeper/internal/apperr"
	"github.com/otiai10/gatekeeper/internal/auth"
	"github.com/otiai10/gatekeeper/internal/config"
	"github.com/otiai10/gatekeeper/internal/intent"
	"github.com/otiai10/gatekeeper/internal/passport"
	"github.com/otiai10/gatekeeper/internal/principal"
	"github.com/otiai10/gatekeeper/internal/relay"
	"github.com/otiai10/gatekeeper/internal/security"
	"github.com/otiai10/gatekeeper/internal/session"
)

var testDomain = config.DomainConfig{
	Root:                   "example.com",
	HubURL:                 "https://auth.example.com",
	AdminURL:               "https://cp.example.com",
	UserURL:                "https://example.com",
	LoginPath:              "/auth/login",
	AllowedRedirectDomains: []string{"cp.example.com", "example.com"},
	CORSOrigins:            []string{"https://auth.example.com", "https://cp.example.com", "https://example.com"},
}

const loginURL = "https://auth.example.com/auth/login"

var testPrincipals = []config.PrincipalConfig{
	{ID: "usr-1", Role: "user", Email: "user@example.com", DisplayName: "User One"},
	{ID: "emp-1", Role: "admin", Email: "admin@example.com", DisplayName: "Admin One"},
	{ID: "usr-off", Role: "user", Email: "off@example.com", Disabled: true},
}

// testEnv wires every component the way the server does in test mode
type testEnv struct {
	t        *testing.T
	provider *auth.LocalProvider
	repo     *principal.MemoryRepository
	store    *relay.MemoryStore
	router   http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	repo, err := principal.NewStaticRepository(testPrincipals)
	require.NoError(t, err)
	env := newTestEnvWithRepo(t, repo)
	env.repo = repo
	return env
}

// newTestEnvWithRepo wires the handlers over an arbitrary record store
func newTestEnvWithRepo(t *testing.T, repo principal.Repository) *testEnv {
	t.Helper()

	provider := auth.NewLocalProvider([]byte("test-signing-key"))
	resolver := principal.NewResolver(repo)
	redirects := security.NewRedirectValidator(testDomain.AllowedRedirectDomains, false)
	store := relay.NewMemoryStore()

	sessCfg := config.SessionConfig{
		Mode:             config.SessionModeHMAC,
		Secret:           "test-session-secret",
		CookieName:       "auth_session",
		MirrorCookieName: "auth_state",
		Duration:         24 * time.Hour,
	}
	sessions, err := session.NewManager(sessCfg, provider)
	require.NoError(t, err)

	h := NewHandler(HandlerConfig{
		Domain:    testDomain,
		Provider:  provider,
		Resolver:  resolver,
		Issuer:    passport.NewIssuer(resolver, provider, 5*time.Second),
		Sessions:  sessions,
		Cookies:   session.NewCookies(sessCfg, testDomain.Root),
		Intents:   intent.NewManager(config.IntentConfig{CookieName: "authIntent", MaxAge: 20 * time.Minute}, testDomain, redirects),
		Relay:     relay.NewService(store, config.RelayConfig{TTL: time.Minute, PollInterval: 10 * time.Millisecond, PollTimeout: 100 * time.Millisecond}),
		Redirects: redirects,
	})

	return &testEnv{
		t:        t,
		provider: provider,
		store:    store,
		router: NewRouter(RouterConfig{
			Handler:     h,
			Verifier:    provider,
			CORSOrigins: testDomain.CORSOrigins,
			Dev:         NewDevHandler(provider, resolver),
		}),
	}
}

func (e *testEnv) do(req *http.Request, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) idToken(uid, email string) string {
	e.t.Helper()
	token, err := e.provider.IssueIDToken(uid, email, "", nil)
	require.NoError(e.t, err)
	return token
}

// idTokenWithRole issues an ID token carrying a provider-signed role claim
func (e *testEnv) idTokenWithRole(uid, email string, role principal.Role) string {
	e.t.Helper()
	token, err := e.provider.IssueIDToken(uid, email, "", map[string]any{"role": string(role)})
	require.NoError(e.t, err)
	return token
}

// unavailableRepository fails every lookup, like a record store that is down
type unavailableRepository struct{}

var errStoreDown = errors.New("firestore: unavailable")

func (unavailableRepository) Get(ctx context.Context, collection principal.Collection, id string) (*principal.Principal, error) {
	return nil, errStoreDown
}

func (unavailableRepository) FindByEmail(ctx context.Context, collection principal.Collection, email string) (*principal.Principal, error) {
	return nil, errStoreDown
}

func (unavailableRepository) RecordLogin(ctx context.Context, collection principal.Collection, id string, at time.Time) error {
	return errStoreDown
}

func (e *testEnv) postJSON(path, bearer string, body interface{}) *httptest.ResponseRecorder {
	e.t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(e.t, err)
		r = strings.NewReader(string(b))
	}
	req := httptest.NewRequest(http.MethodPost, path, r)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	return e.do(req)
}

func (e *testEnv) postForm(path string, values url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return e.do(req, cookies...)
}

// signIn returns the session cookies for uid, going through /api/session
func (e *testEnv) signIn(uid, email string) []*http.Cookie {
	e.t.Helper()
	rec := e.postForm("/api/session", url.Values{"token": {e.idToken(uid, email)}})
	require.Equal(e.t, http.StatusFound, rec.Code, rec.Header().Get("Location"))
	return rec.Result().Cookies()
}

func (e *testEnv) disable(id string) {
	e.t.Helper()
	p, err := e.repo.Get(context.Background(), principal.CollectionUsers, id)
	require.NoError(e.t, err)
	require.NotNil(e.t, p)
	p.IsActive = false
	require.NoError(e.t, e.repo.Put(context.Background(), *p))
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v), rec.Body.String())
	return v
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) apperr.Detail {
	return decodeBody[apperr.Body](t, rec).Error
}

func findCookie(cookies []*http.Cookie, name string) *http.Cookie {
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func redirectError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	require.Equal(t, http.StatusFound, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, loginURL, loc.Scheme+"://"+loc.Host+loc.Path)
	return loc.Query().Get("error")
}
