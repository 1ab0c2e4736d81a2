package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/hongminglow/channel-be/internal/apperr"
	"github.com/hongminglow/channel-be/internal/http/respond"
)

// AccessTokenCookie is the cookie carrying the access token.
const AccessTokenCookie = "accessToken"

type userIDKey struct{}

// TokenValidator resolves an access token to a user id.
type TokenValidator interface {
	Validate(accessToken string) (int64, error)
}

// WithUserID stores the authenticated user id in ctx.
func WithUserID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, userIDKey{}, id)
}

// UserIDFromContext returns the authenticated user id, if any.
func UserIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(userIDKey{}).(int64)
	return id, ok && id > 0
}

// AccessToken reads the token from the accessToken cookie or a Bearer Authorization header.
func AccessToken(r *http.Request) string {
	if c, err := r.Cookie(AccessTokenCookie); err == nil && c.Value != "" {
		return c.Value
	}
	header := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

// RequireAuth rejects requests without a valid access token.
func RequireAuth(v TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := v.Validate(AccessToken(r))
			if err != nil {
				status, msg := apperr.Resolve(err)
				respond.Error(w, status, msg)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), id)))
		})
	}
}

// OptionalAuth attaches the user id when a valid access token is present and
// otherwise lets the request through anonymously.
func OptionalAuth(v TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token := AccessToken(r); token != "" {
				if id, err := v.Validate(token); err == nil {
					r = r.WithContext(WithUserID(r.Context(), id))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
