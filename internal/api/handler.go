package api

import (
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/rs/zerolog/log"

	"github.com/otiai10/gatekeeper/internal/apperr"
	"github.com/otiai10/gatekeeper/internal/auth"
	"github.com/otiai10/gatekeeper/internal/config"
	"github.com/otiai10/gatekeeper/internal/intent"
	"github.com/otiai10/gatekeeper/internal/passport"
	"github.com/otiai10/gatekeeper/internal/principal"
	"github.com/otiai10/gatekeeper/internal/relay"
	"github.com/otiai10/gatekeeper/internal/security"
	"github.com/otiai10/gatekeeper/internal/session"
	"github.com/otiai10/gatekeeper/internal/version"
)

// HandlerConfig holds the components the handlers orchestrate
type HandlerConfig struct {
	Domain    config.DomainConfig
	Provider  auth.Provider
	Resolver  *principal.Resolver
	Issuer    *passport.Issuer
	Sessions  session.Manager
	Cookies   *session.Cookies
	Intents   *intent.Manager
	Relay     *relay.Service
	Redirects *security.RedirectValidator
}

// Handler contains the HTTP handlers for the API
type Handler struct {
	domain    config.DomainConfig
	provider  auth.Provider
	resolver  *principal.Resolver
	issuer    *passport.Issuer
	sessions  session.Manager
	cookies   *session.Cookies
	intents   *intent.Manager
	relay     *relay.Service
	redirects *security.RedirectValidator
}

// NewHandler creates a new Handler instance
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{
		domain:    cfg.Domain,
		provider:  cfg.Provider,
		resolver:  cfg.Resolver,
		issuer:    cfg.Issuer,
		sessions:  cfg.Sessions,
		cookies:   cfg.Cookies,
		intents:   cfg.Intents,
		relay:     cfg.Relay,
		redirects: cfg.Redirects,
	}
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok", "hash": version.CommitHash}, http.StatusOK)
}

// callerFromContext builds the passport caller from verified bearer claims
func callerFromContext(r *http.Request) (passport.Caller, bool) {
	claims, ok := auth.GetClaims(r.Context())
	if !ok {
		return passport.Caller{}, false
	}
	return passport.Caller{UID: claims.UID, Email: claims.Email}, true
}

// decodeJSON reads an optional JSON body into v. An empty body is not an error.
func decodeJSON(r *http.Request, v interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.InvalidArgument("invalid request body")
	}
	return nil
}

// redirectToLogin sends the browser back to the hub login page with a
// machine-readable error code
func (h *Handler) redirectToLogin(w http.ResponseWriter, r *http.Request, code string) {
	target := h.domain.LoginURL()
	if code != "" {
		target += "?" + url.Values{"error": {code}}.Encode()
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func writeJSON(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Already wrote headers, can only log
		log.Debug().Err(err).Msg("failed to encode response")
	}
}
