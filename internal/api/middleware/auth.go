package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/jwtauth/v5"

	"noteflow/internal/common"
	"noteflow/internal/common/security"
)

type contextKey string

const identityCtxKey contextKey = "identity"

// Authenticator rejects requests without a verified bearer token (see
// jwtauth.Verifier) and puts the caller's Identity on the context.
func Authenticator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, claims, err := jwtauth.FromContext(r.Context())
		switch {
		case errors.Is(err, jwtauth.ErrNoTokenFound) || (err == nil && token == nil):
			common.RespondWithError(w, http.StatusUnauthorized, "Authorization token required")
			return
		case err != nil:
			common.RespondWithError(w, http.StatusUnauthorized, "Invalid token: "+err.Error())
			return
		}

		id, err := security.IdentityFromClaims(claims)
		if err != nil {
			common.RespondWithError(w, http.StatusUnauthorized, "Invalid token claims: "+err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

func WithIdentity(ctx context.Context, id security.Identity) context.Context {
	return context.WithValue(ctx, identityCtxKey, id)
}

func IdentityFromContext(ctx context.Context) (security.Identity, bool) {
	id, ok := ctx.Value(identityCtxKey).(security.Identity)
	return id, ok && id.UserID != ""
}

// GetUserIDFromContext returns the id every owner-scoped query filters on.
func GetUserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := IdentityFromContext(ctx)
	return id.UserID, ok
}
