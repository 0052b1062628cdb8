// Package middleware provides HTTP middleware for the protestpro API.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/d9705996/protestpro/internal/api/jsonapi"
	"github.com/d9705996/protestpro/internal/auth"
)

type contextKey string

const (
	claimsKey contextKey = "auth_claims"
	tokenKey  contextKey = "auth_token"
)

// RequireAuth validates the Bearer JWT in the Authorization header.
// On success it injects *auth.Claims into the request context.
// On failure it writes a 401 JSON:API error response.
func RequireAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearerToken(r)
			if token == "" {
				jsonapi.RenderError(w, http.StatusUnauthorized,
					"missing_token", "Unauthorized", "Authorization header is required")
				return
			}

			claims, err := auth.ParseAccessToken(token, secret)
			if err != nil {
				jsonapi.RenderError(w, http.StatusUnauthorized,
					"invalid_token", "Unauthorized", "access token is invalid or expired")
				return
			}

			next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims, token)))
		})
	}
}

// OptionalAuth injects claims when a valid Bearer JWT is present and passes
// the request through unchanged otherwise.
func OptionalAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token := extractBearerToken(r); token != "" {
				if claims, err := auth.ParseAccessToken(token, secret); err == nil {
					r = r.WithContext(withClaims(r.Context(), claims, token))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func withClaims(ctx context.Context, claims *auth.Claims, token string) context.Context {
	ctx = context.WithValue(ctx, claimsKey, claims)
	return context.WithValue(ctx, tokenKey, token)
}

// ClaimsFromContext extracts Claims from the request context.
// Returns nil if not present.
func ClaimsFromContext(ctx context.Context) *auth.Claims {
	v := ctx.Value(claimsKey)
	if v == nil {
		return nil
	}
	c, _ := v.(*auth.Claims)
	return c
}

// TokenFromContext returns the raw bearer token that produced the claims.
func TokenFromContext(ctx context.Context) string {
	s, _ := ctx.Value(tokenKey).(string)
	return s
}

// Authorizer evaluates the permission policy. authz.Checker satisfies it.
type Authorizer interface {
	Allowed(ctx context.Context, userID, obj, act string) (bool, error)
}

// RequirePermission checks that the authenticated identity may perform act
// on obj. Permissions are read on every request, never from the token.
// Must be chained after RequireAuth.
func RequirePermission(az Authorizer, obj, act string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())
			if claims == nil {
				jsonapi.RenderError(w, http.StatusUnauthorized,
					"missing_token", "Unauthorized", "authentication required")
				return
			}
			ok, err := az.Allowed(r.Context(), claims.UserID(), obj, act)
			if err != nil || !ok {
				// A missing profile also lands here.
				jsonapi.RenderError(w, http.StatusForbidden,
					"forbidden", "Forbidden", "administrator standing required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func extractBearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}
