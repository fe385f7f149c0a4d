package api

import (
	"net/http"

	"github.com/otiai10/gatekeeper/internal/auth"
)

// RouterConfig holds dependencies for the router
type RouterConfig struct {
	Handler     *Handler
	Verifier    auth.TokenVerifier
	CORSOrigins []string
	Dev         *DevHandler // nil outside test mode
	Debug       bool
}

// NewRouter creates the HTTP router with all routes and the middleware chain
func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()
	h := cfg.Handler

	// Public routes
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /login", h.StartLogin)
	mux.HandleFunc("GET /api/intent", h.GetIntent)
	mux.HandleFunc("DELETE /api/intent", h.ClearIntent)

	// Session routes. The browser arrives here by top-level navigation or
	// form POST from the hub, so they carry the token as a parameter.
	for _, path := range []string{"/api/session", "/setSessionCookie"} {
		mux.HandleFunc("GET "+path, h.SetSession)
		mux.HandleFunc("POST "+path, h.SetSession)
	}
	mux.HandleFunc("GET /api/session/verify", h.VerifySession)
	mux.HandleFunc("POST /api/session/clear", h.ClearSession)

	// The bundle ID is the capability
	mux.HandleFunc("POST /api/relay/{id}/consume", h.ConsumeRelay)

	// Bearer routes
	bearer := auth.AuthMiddleware(cfg.Verifier)
	mux.Handle("POST /api/passport", bearer(http.HandlerFunc(h.IssuePassport)))
	mux.Handle("POST /api/token/exchange", bearer(http.HandlerFunc(h.ExchangeToken)))
	mux.Handle("POST /api/relay", bearer(http.HandlerFunc(h.DepositRelay)))

	if cfg.Dev != nil {
		mux.HandleFunc("POST /api/dev/signin", cfg.Dev.SignIn)
		mux.HandleFunc("POST /api/dev/custom-token", cfg.Dev.SignInWithCustomToken)
	}

	return Chain(
		RecoveryMiddleware,
		LoggingMiddleware,
		NewCORSMiddleware(CORSConfig{AllowedOrigins: cfg.CORSOrigins, Debug: cfg.Debug}),
	)(mux)
}
