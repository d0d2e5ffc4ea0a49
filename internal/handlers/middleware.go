package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"expense-api/internal/apperrors"
	"expense-api/internal/models"
	"expense-api/internal/service"
)

// Context key type to avoid collisions.
type contextKey string

const (
	// UserContextKey is the context key for the authenticated user.
	UserContextKey contextKey = "user"
	// TokenContextKey is the context key for the bearer token of the request.
	TokenContextKey contextKey = "token"
)

// GetUserFromContext retrieves the authenticated user from request context.
func GetUserFromContext(r *http.Request) *models.User {
	if user, ok := r.Context().Value(UserContextKey).(*models.User); ok {
		return user
	}
	return nil
}

// GetTokenFromContext retrieves the bearer token the request authenticated
// with.
func GetTokenFromContext(r *http.Request) string {
	if token, ok := r.Context().Value(TokenContextKey).(string); ok {
		return token
	}
	return ""
}

// AuthMiddleware wraps handlers to require a valid bearer token. The user
// and the exact token are attached to the request context.
func (h *Handlers) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			h.metrics.AuthFailuresTotal.WithLabelValues("missing_token").Inc()
			writeErrorMessage(w, http.StatusUnauthorized, service.MsgAuthenticate)
			return
		}

		user, err := h.accounts.Authenticate(r.Context(), token)
		if err != nil {
			if errors.Is(err, apperrors.ErrAuthentication) {
				h.metrics.AuthFailuresTotal.WithLabelValues("invalid_token").Inc()
			}
			h.writeError(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), UserContextKey, user)
		ctx = context.WithValue(ctx, TokenContextKey, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	token = strings.TrimSpace(token)
	if !found || token == "" {
		return "", false
	}
	return token, true
}
