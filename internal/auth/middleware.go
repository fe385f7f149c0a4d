package auth

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/otiai10/gatekeeper/internal/apperr"
)

// AuthMiddleware returns middleware that validates bearer ID tokens.
// Requires Authorization header: Bearer <token>
// Responds 401 if the token is missing or invalid.
// On success, adds Claims to context.
func AuthMiddleware(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r)
			if !ok {
				if r.Header.Get("Authorization") == "" {
					apperr.Write(w, apperr.Unauthenticated("Authorization header required"))
				} else {
					apperr.Write(w, apperr.Unauthenticated("Invalid authorization header format"))
				}
				return
			}

			claims, err := verifier.VerifyIDToken(r.Context(), token)
			if err != nil {
				log.Info().Err(err).Str("path", r.URL.Path).Msg("bearer token rejected")
				apperr.Write(w, apperr.Unauthenticated("Invalid token"))
				return
			}

			ctx := WithClaims(r.Context(), claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BearerToken extracts the token from "Authorization: Bearer <token>".
// The scheme is case-sensitive.
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}
