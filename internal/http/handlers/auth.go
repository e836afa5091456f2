package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/palmbay/experience-bookings/internal/http/response"
	"github.com/palmbay/experience-bookings/pkg/auth"
	"github.com/palmbay/experience-bookings/pkg/logger"
)

type claimsKey struct{}

// RequireJWT authenticates the bearer token and stores the claims on the
// request context. An empty role matches any authenticated user.
func RequireJWT(secret, role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				response.Unauthorized(w, "missing bearer token")
				return
			}
			claims, err := auth.Parse(token, secret)
			if err != nil {
				response.Unauthorized(w, "invalid token")
				return
			}
			if role != "" && claims.Role != role {
				response.Forbidden(w, "insufficient role")
				return
			}
			ctx := context.WithValue(r.Context(), claimsKey{}, claims)
			ctx = context.WithValue(ctx, logger.UserIDKey, claims.Sub)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func claimsFrom(r *http.Request) *auth.Claims {
	claims, _ := r.Context().Value(claimsKey{}).(*auth.Claims)
	return claims
}
