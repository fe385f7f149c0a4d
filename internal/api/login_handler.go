package api

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/otiai10/gatekeeper/internal/apperr"
	"github.com/otiai10/gatekeeper/internal/intent"
	"github.com/otiai10/gatekeeper/internal/principal"
)

// IntentResponse is the discriminated result of reading the intent cookie
type IntentResponse struct {
	Valid   bool           `json:"valid"`
	Data    *intent.Intent `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`
	Expired bool           `json:"expired,omitempty"`
}

// StartLogin handles GET /login?type=admin|user&redirect=...
// It records the login intent and sends the browser to the hub.
func (h *Handler) StartLogin(w http.ResponseWriter, r *http.Request) {
	role, err := principal.ParseRole(r.URL.Query().Get("type"))
	if err != nil {
		apperr.Write(w, apperr.InvalidArgument(`type must be "admin" or "user"`))
		return
	}

	in, err := h.intents.Set(w, role, r.URL.Query().Get("redirect"))
	if err != nil {
		log.Error().Err(err).Msg("failed to set login intent")
		apperr.Write(w, apperr.Internal())
		return
	}

	log.Debug().Str("role", string(in.Role)).Str("redirect", in.RedirectURL).Msg("login intent set")
	http.Redirect(w, r, h.domain.LoginURL(), http.StatusFound)
}

// GetIntent handles GET /api/intent
func (h *Handler) GetIntent(w http.ResponseWriter, r *http.Request) {
	in, err := h.intents.Read(w, r)
	if err != nil {
		writeJSON(w, IntentResponse{
			Error:   err.Error(),
			Expired: errors.Is(err, intent.ErrExpired),
		}, http.StatusOK)
		return
	}
	writeJSON(w, IntentResponse{Valid: true, Data: in}, http.StatusOK)
}

// ClearIntent handles DELETE /api/intent
func (h *Handler) ClearIntent(w http.ResponseWriter, r *http.Request) {
	h.intents.Clear(w)
	w.WriteHeader(http.StatusNoContent)
}
