package api

import (
	"net/http"

	"github.com/otiai10/gatekeeper/internal/apperr"
)

// PassportRequest is the body of POST /api/passport
type PassportRequest struct {
	TargetApp string `json:"targetApp"`
}

// IssuePassport handles POST /api/passport
func (h *Handler) IssuePassport(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromContext(r)
	if !ok {
		apperr.Write(w, apperr.Unauthenticated("Authentication required."))
		return
	}

	var req PassportRequest
	if err := decodeJSON(r, &req); err != nil {
		apperr.Write(w, err)
		return
	}

	p, err := h.issuer.Issue(r.Context(), caller, req.TargetApp)
	if err != nil {
		apperr.Write(w, err)
		return
	}
	writeJSON(w, p, http.StatusOK)
}

// ExchangeToken handles POST /api/token/exchange.
// The caller's role is resolved without a target restriction.
func (h *Handler) ExchangeToken(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromContext(r)
	if !ok {
		apperr.Write(w, apperr.Unauthenticated("Authentication required."))
		return
	}

	p, err := h.issuer.Exchange(r.Context(), caller)
	if err != nil {
		apperr.Write(w, err)
		return
	}
	writeJSON(w, p, http.StatusOK)
}
