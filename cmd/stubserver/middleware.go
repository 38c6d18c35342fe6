package main

import (
	"context"
	"net/http"
	"strings"

	"daymoon-client/internal/auth"
)

// contextKey is a private type for request context values so keys never
// collide with other packages.
type contextKey string

const (
	userIDKey   contextKey = "userID"
	userNameKey contextKey = "userName"
	tokenJTIKey contextKey = "tokenJTI"
	tokenExpKey contextKey = "tokenExp"
)

// authMiddleware validates the bearer token and stores the caller's
// identity in the request context.
func authMiddleware(next http.Handler, secretKey string, blacklist auth.TokenBlacklist) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeJSONError(w, "authorization token required", http.StatusUnauthorized)
			return
		}

		headerParts := strings.Split(authHeader, " ")
		if len(headerParts) != 2 || strings.ToLower(headerParts[0]) != "bearer" {
			writeJSONError(w, "authorization header must be Bearer {token}", http.StatusUnauthorized)
			return
		}

		claims, err := auth.ValidateToken(r.Context(), headerParts[1], secretKey, blacklist)
		if err != nil {
			writeJSONError(w, "invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, claims.UserID)
		ctx = context.WithValue(ctx, userNameKey, claims.Name)
		ctx = context.WithValue(ctx, tokenJTIKey, claims.ID)
		if claims.ExpiresAt != nil {
			ctx = context.WithValue(ctx, tokenExpKey, claims.ExpiresAt.Time)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// userIDFromContext returns the authenticated user's ID, if any.
func userIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userIDKey).(string)
	return userID, ok
}
