package httpserver

import (
	"context"
	"log"
	"net/http"
	"strings"

	"huddle/internal/api"
	"huddle/internal/domain"
	"huddle/internal/service"
)

type contextKey string

const userContextKey contextKey = "currentUser"

// WithUser returns a new context carrying the current user.
func WithUser(ctx context.Context, user *domain.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// CurrentUser extracts the current user from context, if any.
func CurrentUser(r *http.Request) *domain.User {
	if v := r.Context().Value(userContextKey); v != nil {
		if u, ok := v.(*domain.User); ok {
			return u
		}
	}
	return nil
}

// requireUser returns the current user or writes a 401.
func requireUser(w http.ResponseWriter, r *http.Request) (*domain.User, bool) {
	user := CurrentUser(r)
	if user == nil {
		writeJSON(w, http.StatusUnauthorized, api.ErrorResponse{Error: "unauthorized", Code: api.CodeUnauthorized})
		return nil, false
	}
	return user, true
}

func bearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		return ""
	}
	return strings.TrimSpace(authHeader[len("Bearer "):])
}

// AuthMiddleware validates the Bearer token and attaches the user to the context.
func AuthMiddleware(authSvc *service.AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr := bearerToken(r)
			if tokenStr == "" {
				writeJSON(w, http.StatusUnauthorized, api.ErrorResponse{Error: "missing or invalid Authorization header", Code: api.CodeUnauthorized})
				return
			}

			user, err := authSvc.Authenticate(r.Context(), tokenStr)
			if err != nil {
				log.Printf("AuthMiddleware: %v", err)
				writeError(w, err)
				return
			}

			ctx := WithUser(r.Context(), user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
