package auth

import (
	"context"
	"net/http"
	"strings"
)

// ContextKey is a type for context keys
type ContextKey string

const (
	// ObserverIDKey is the context key for the observer id
	ObserverIDKey ContextKey = "observer_id"
	// ClaimsKey is the context key for JWT claims
	ClaimsKey ContextKey = "claims"
)

// TokenFromRequest extracts a bearer token from the Authorization header,
// falling back to the token query parameter used by browser websockets
func TokenFromRequest(r *http.Request) (string, bool) {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return "", false
		}
		return parts[1], true
	}
	if token := r.URL.Query().Get("token"); token != "" {
		return token, true
	}
	return "", false
}

// AuthMiddleware validates JWT tokens and adds observer info to request context
func (h *AuthHandlers) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString, ok := TokenFromRequest(r)
		if !ok {
			h.sendError(w, http.StatusUnauthorized, "MissingToken", "Bearer token required")
			return
		}

		claims, err := h.jwtService.ValidateAccessToken(tokenString)
		if err != nil {
			h.sendError(w, http.StatusUnauthorized, "InvalidToken", "Invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), ObserverIDKey, claims.ObserverID)
		ctx = context.WithValue(ctx, ClaimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetObserverID extracts the observer id from request context
func GetObserverID(r *http.Request) (string, bool) {
	id, ok := r.Context().Value(ObserverIDKey).(string)
	return id, ok
}

// GetClaims extracts JWT claims from request context
func GetClaims(r *http.Request) (*Claims, bool) {
	claims, ok := r.Context().Value(ClaimsKey).(*Claims)
	return claims, ok
}
