package api

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/otiai10/gatekeeper/internal/apperr"
	"github.com/otiai10/gatekeeper/internal/auth"
	"github.com/otiai10/gatekeeper/internal/principal"
)

// DevHandler stands in for the client-side identity SDK in test mode
type DevHandler struct {
	provider *auth.LocalProvider
	resolver *principal.Resolver
}

// NewDevHandler creates a DevHandler
func NewDevHandler(provider *auth.LocalProvider, resolver *principal.Resolver) *DevHandler {
	return &DevHandler{provider: provider, resolver: resolver}
}

// SignInRequest is the body of POST /api/dev/signin
type SignInRequest struct {
	UID   string `json:"uid"`
	Email string `json:"email"`
}

// CustomTokenRequest is the body of POST /api/dev/custom-token
type CustomTokenRequest struct {
	Token string `json:"token"`
}

// IDTokenResponse carries a freshly issued ID token
type IDTokenResponse struct {
	IDToken string `json:"idToken"`
}

// SignIn handles POST /api/dev/signin.
// It signs in a configured principal by uid or email.
func (h *DevHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req SignInRequest
	if err := decodeJSON(r, &req); err != nil {
		apperr.Write(w, err)
		return
	}
	if req.UID == "" && req.Email == "" {
		apperr.Write(w, apperr.InvalidArgument("uid or email is required"))
		return
	}

	res, err := h.resolver.Resolve(r.Context(), req.UID, req.Email, "")
	if errors.Is(err, principal.ErrNotFound) || errors.Is(err, principal.ErrDisabled) {
		apperr.Write(w, apperr.PermissionDenied("Access denied."))
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("dev sign-in lookup failed")
		apperr.Write(w, apperr.Internal())
		return
	}

	p := res.Principal
	uid := p.UID
	if uid == "" {
		uid = p.ID
	}

	token, err := h.provider.IssueIDToken(uid, p.Email, p.Name(), nil)
	if err != nil {
		log.Error().Err(err).Msg("dev sign-in failed")
		apperr.Write(w, apperr.Internal())
		return
	}

	log.Debug().Str("uid", uid).Msg("dev sign-in")
	writeJSON(w, IDTokenResponse{IDToken: token}, http.StatusOK)
}

// SignInWithCustomToken handles POST /api/dev/custom-token.
// It exchanges a passport credential for an ID token.
func (h *DevHandler) SignInWithCustomToken(w http.ResponseWriter, r *http.Request) {
	var req CustomTokenRequest
	if err := decodeJSON(r, &req); err != nil {
		apperr.Write(w, err)
		return
	}

	token, err := h.provider.SignInWithCustomToken(r.Context(), req.Token)
	if err != nil {
		log.Info().Err(err).Msg("dev custom token sign-in rejected")
		apperr.Write(w, apperr.Unauthenticated("Invalid token"))
		return
	}
	writeJSON(w, IDTokenResponse{IDToken: token}, http.StatusOK)
}
