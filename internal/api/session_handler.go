package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc/codes"

	"github.com/otiai10/gatekeeper/internal/apperr"
	"github.com/otiai10/gatekeeper/internal/auth"
	"github.com/otiai10/gatekeeper/internal/passport"
	"github.com/otiai10/gatekeeper/internal/principal"
	"github.com/otiai10/gatekeeper/internal/session"
)

// Redirect error codes for browser-facing failures
const (
	errNoToken       = "no_token"
	errTokenExpired  = "token_expired"
	errTokenRevoked  = "token_revoked"
	errInvalidToken  = "invalid_token"
	errInvalidRole   = "invalid_role"
	errSessionFailed = "session_failed"
)

// VerifyResponse is the body of GET /api/session/verify
type VerifyResponse struct {
	Authenticated bool                 `json:"authenticated"`
	UID           string               `json:"uid,omitempty"`
	Email         string               `json:"email,omitempty"`
	Name          string               `json:"name,omitempty"`
	Role          principal.Role       `json:"role,omitempty"`
	CustomToken   string               `json:"customToken,omitempty"`
	RecordID      string               `json:"firestoreDocId,omitempty"`
	Collection    principal.Collection `json:"collection,omitempty"`
	Error         string               `json:"error,omitempty"`
}

// SetSession handles GET/POST /api/session (and /setSessionCookie).
//
// Parameters (query or form):
//   - token: ID token of the freshly signed-in principal
//   - redirectUrl: where to land afterwards; sanitized against the allow-list
//   - role: optional resolution target; defaults to the token's role claim
//
// On success the session cookies are set and the browser is redirected.
// Every failure redirects to the hub login page with an error code.
func (h *Handler) SetSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	token := r.FormValue("token")
	if token == "" {
		h.redirectToLogin(w, r, errNoToken)
		return
	}

	claims, err := h.provider.VerifyIDToken(ctx, token)
	if err != nil {
		log.Warn().Err(err).Msg("session mint rejected: token verification failed")
		h.redirectToLogin(w, r, tokenErrorCode(err))
		return
	}

	requested := r.FormValue("role")
	if requested == "" {
		requested = claims.CustomString("role")
	}
	var target principal.Role
	if requested != "" {
		if target, err = principal.ParseRole(requested); err != nil {
			h.redirectToLogin(w, r, errInvalidRole)
			return
		}
	}

	role, res, code := h.resolveForSession(ctx, claims, target)
	if code != "" {
		h.cookies.Clear(w)
		h.redirectToLogin(w, r, code)
		return
	}

	artifact, err := h.sessions.Mint(ctx, session.MintRequest{
		IDToken:     token,
		PrincipalID: claims.UID,
		Role:        role,
	})
	if err != nil {
		log.Error().Err(err).Str("uid", claims.UID).Msg("session mint failed")
		h.cookies.Clear(w)
		h.redirectToLogin(w, r, mintErrorCode(err))
		return
	}

	h.cookies.Set(w, artifact, role)
	h.intents.Clear(w)
	h.resolver.RecordLogin(ctx, res)

	dest := h.redirects.Sanitize(r.FormValue("redirectUrl"), h.domain.BaseURL(string(role)))
	log.Info().Str("uid", claims.UID).Str("role", string(role)).Str("redirect", dest).Msg("session established")
	http.Redirect(w, r, dest, http.StatusFound)
}

// resolveForSession re-checks the principal before a session is minted.
// Disabled and unknown principals share one redirect code. A store failure
// falls back to the provider-signed role claim, bounded by target.
// It returns a non-empty redirect error code when the mint must not proceed.
func (h *Handler) resolveForSession(ctx context.Context, claims *auth.Claims, target principal.Role) (principal.Role, *principal.Resolution, string) {
	res, err := h.resolver.Resolve(ctx, claims.UID, claims.Email, target)
	switch {
	case err == nil:
		return res.Role, res, ""
	case errors.Is(err, principal.ErrDisabled):
		log.Warn().Str("uid", claims.UID).Msg("session mint denied: account disabled")
		return "", nil, errInvalidRole
	case errors.Is(err, principal.ErrNotFound):
		log.Warn().Str("uid", claims.UID).Str("target", string(target)).Msg("session mint denied: no matching record")
		return "", nil, errInvalidRole
	}

	claimed, _ := principal.ParseRole(claims.CustomString("role"))
	role, ok := degradedRole(claimed, target)
	if !ok {
		log.Error().Err(err).Str("uid", claims.UID).Str("target", string(target)).Msg("role lookup failed")
		return "", nil, errSessionFailed
	}
	log.Warn().Err(err).Bool("degraded", true).
		Str("uid", claims.UID).
		Str("role", string(role)).
		Msg("role lookup failed, using role claim")
	return role, nil, ""
}

// degradedRole picks the session role while the record store is unreachable.
// Only the provider-signed claim counts, and it is never raised above target:
// an admin claim may land on the user site, a user claim never on the admin one.
func degradedRole(claimed, target principal.Role) (principal.Role, bool) {
	switch {
	case claimed == "":
		return "", false
	case target == "" || target == claimed:
		return claimed, true
	case target == principal.RoleUser && claimed == principal.RoleAdmin:
		return principal.RoleUser, true
	default:
		return "", false
	}
}

// VerifySession handles GET /api/session/verify.
// A valid session is re-resolved against the record store and answered
// with a fresh custom token for client-side sign-in.
func (h *Handler) VerifySession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	artifact, err := h.cookies.Read(r)
	if err != nil {
		if !errors.Is(err, session.ErrMissing) {
			h.cookies.Clear(w)
		}
		writeJSON(w, VerifyResponse{Error: session.ErrorCode(err)}, http.StatusUnauthorized)
		return
	}

	sess, err := h.sessions.Validate(ctx, artifact)
	if err != nil {
		if !isSessionRejection(err) {
			log.Error().Err(err).Msg("session validation failed")
			apperr.Write(w, apperr.Internal())
			return
		}
		log.Info().Err(err).Msg("session rejected")
		h.cookies.Clear(w)
		status := http.StatusUnauthorized
		if errors.Is(err, principal.ErrDisabled) {
			status = http.StatusForbidden
		}
		writeJSON(w, VerifyResponse{Error: session.ErrorCode(err)}, status)
		return
	}

	caller := passport.Caller{UID: sess.PrincipalID, Email: h.sessionEmail(ctx, sess)}
	var p *passport.Passport
	if sess.Role != "" {
		p, err = h.issuer.Issue(ctx, caller, string(sess.Role))
	} else {
		p, err = h.issuer.Exchange(ctx, caller)
	}
	if err != nil {
		if apperr.Code(err) == codes.PermissionDenied {
			h.cookies.Clear(w)
			writeJSON(w, VerifyResponse{Error: session.CodeDenied}, http.StatusForbidden)
			return
		}
		apperr.Write(w, err)
		return
	}

	writeJSON(w, VerifyResponse{
		Authenticated: true,
		UID:           sess.PrincipalID,
		Email:         p.Email,
		Name:          p.Name,
		Role:          p.Role,
		CustomToken:   p.Credential,
		RecordID:      p.RecordID,
		Collection:    p.Collection,
	}, http.StatusOK)
}

// sessionEmail returns the email to re-resolve sess with. HMAC artifacts
// carry none, so the provider account is asked for it; a principal that
// was matched by email at login must still be found by email here.
func (h *Handler) sessionEmail(ctx context.Context, sess *session.Session) string {
	if sess.Email != "" {
		return sess.Email
	}
	email, err := h.provider.LookupEmail(ctx, sess.PrincipalID)
	if err != nil {
		log.Debug().Err(err).Str("uid", sess.PrincipalID).Msg("no provider email for session")
		return ""
	}
	return email
}

// ClearSession handles POST /api/session/clear.
// With revoke=true a valid session is also revoked at the provider.
func (h *Handler) ClearSession(w http.ResponseWriter, r *http.Request) {
	if r.FormValue("revoke") == "true" {
		h.revokePresented(r)
	}

	h.cookies.Clear(w)
	h.intents.Clear(w)
	writeJSON(w, map[string]bool{"success": true}, http.StatusOK)
}

func (h *Handler) revokePresented(r *http.Request) {
	artifact, err := h.cookies.Read(r)
	if err != nil {
		return
	}
	sess, err := h.sessions.Validate(r.Context(), artifact)
	if err != nil {
		return
	}
	if err := h.sessions.Revoke(r.Context(), sess); err != nil {
		log.Warn().Err(err).Str("uid", sess.PrincipalID).Msg("failed to revoke session")
	}
}

func tokenErrorCode(err error) string {
	switch {
	case errors.Is(err, auth.ErrTokenExpired):
		return errTokenExpired
	case errors.Is(err, auth.ErrTokenRevoked):
		return errTokenRevoked
	case errors.Is(err, auth.ErrUserDisabled):
		return errInvalidRole
	default:
		return errInvalidToken
	}
}

func mintErrorCode(err error) string {
	switch {
	case errors.Is(err, session.ErrExpired):
		return errTokenExpired
	case errors.Is(err, session.ErrRevoked):
		return errTokenRevoked
	case errors.Is(err, principal.ErrDisabled), errors.Is(err, auth.ErrUserDisabled):
		return errInvalidRole
	default:
		return errSessionFailed
	}
}

func isSessionRejection(err error) bool {
	for _, target := range []error{
		session.ErrMissing,
		session.ErrMalformed,
		session.ErrSignature,
		session.ErrExpired,
		session.ErrRevoked,
		session.ErrInvalid,
		principal.ErrDisabled,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
