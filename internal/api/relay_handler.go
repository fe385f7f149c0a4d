package api

import (
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/otiai10/gatekeeper/internal/apperr"
	"github.com/otiai10/gatekeeper/internal/principal"
	"github.com/otiai10/gatekeeper/internal/relay"
)

// relayQueryParam carries the bundle ID to the destination
const relayQueryParam = "authRequestId"

// RelayRequest is the body of POST /api/relay
type RelayRequest struct {
	TargetApp   string `json:"targetApp"`
	RedirectURL string `json:"redirectUrl"`
}

// RelayResponse tells the hub where to send the browser
type RelayResponse struct {
	RequestID   string    `json:"requestId"`
	RedirectURL string    `json:"redirectUrl"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// RelayPayload is handed to the destination exactly once
type RelayPayload struct {
	Token       string         `json:"token"`
	PrincipalID string         `json:"principalId"`
	Role        principal.Role `json:"role"`
	RedirectURL string         `json:"redirectUrl"`
}

// DepositRelay handles POST /api/relay.
// The bundle is durable before the response is written, so the caller may
// redirect as soon as it has the response.
func (h *Handler) DepositRelay(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromContext(r)
	if !ok {
		apperr.Write(w, apperr.Unauthenticated("Authentication required."))
		return
	}

	var req RelayRequest
	if err := decodeJSON(r, &req); err != nil {
		apperr.Write(w, err)
		return
	}

	p, err := h.issuer.Issue(r.Context(), caller, req.TargetApp)
	if err != nil {
		apperr.Write(w, err)
		return
	}

	dest := h.redirects.Sanitize(req.RedirectURL, h.domain.BaseURL(string(p.Role)))
	b, err := h.relay.Deposit(r.Context(), relay.Deposit{
		PrincipalID: caller.UID,
		Role:        p.Role,
		Credential:  p.Credential,
		RedirectURL: dest,
	})
	if err != nil {
		log.Error().Err(err).Str("uid", caller.UID).Msg("relay deposit failed")
		apperr.Write(w, apperr.Internal())
		return
	}

	writeJSON(w, RelayResponse{
		RequestID:   b.ID,
		RedirectURL: withQuery(dest, relayQueryParam, b.ID),
		ExpiresAt:   b.ExpiresAt,
	}, http.StatusOK)
}

// ConsumeRelay handles POST /api/relay/{id}/consume.
// It waits for the bundle up to the poll ceiling.
func (h *Handler) ConsumeRelay(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		apperr.Write(w, apperr.InvalidArgument("request id is required"))
		return
	}

	b, err := h.relay.Await(r.Context(), id)
	if err != nil {
		apperr.Write(w, relayError(id, err))
		return
	}

	writeJSON(w, RelayPayload{
		Token:       b.Credential,
		PrincipalID: b.PrincipalID,
		Role:        b.Role,
		RedirectURL: b.RedirectURL,
	}, http.StatusOK)
}

func relayError(id string, err error) error {
	logger := log.With().Str("bundle", id).Err(err).Logger()
	switch {
	case errors.Is(err, relay.ErrAlreadyUsed):
		logger.Warn().Msg("relay replay rejected")
		return apperr.PermissionDenied("Request already used.")
	case errors.Is(err, relay.ErrExpired):
		logger.Info().Msg("relay bundle expired")
		return apperr.PermissionDenied("Request expired.")
	case errors.Is(err, relay.ErrTimeout):
		return apperr.DeadlineExceeded("Timed out waiting for sign-in.")
	default:
		logger.Error().Msg("relay consume failed")
		return apperr.Internal()
	}
}

// withQuery appends key=value to rawURL, keeping any existing query
func withQuery(rawURL, key, value string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}
