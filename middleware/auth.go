package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"cvreview/internal/review/repository"
	"cvreview/pkg/logger"
)

type contextKey string

const UserIDKey contextKey = "userID"

// UserID returns the authenticated user id stored by the auth middlewares.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(UserIDKey).(string)
	return id
}

type TokenVerifier interface {
	Verify(token string) (userID string, err error)
}

// AuthMiddleware admits requests carrying a valid gateway token.
func AuthMiddleware(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Browsers cannot set headers on websocket upgrades, so the
			// token may come in the query string.
			tokenString := r.URL.Query().Get("token")
			if tokenString == "" {
				tokenString = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			}
			if tokenString == "" {
				http.Error(w, "Unauthorized: No token provided", http.StatusUnauthorized)
				return
			}

			userID, err := verifier.Verify(tokenString)
			if err != nil {
				logger.Sugar.Warnf("Invalid token: %v", err)
				http.Error(w, "Unauthorized: Invalid or expired token", http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), UserIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type SessionLookup interface {
	Get(ctx context.Context, userID string) (repository.Session, error)
}

// SessionMiddleware admits requests whose user_id query parameter names an
// active session.
func SessionMiddleware(sessions SessionLookup, now func() time.Time) func(http.Handler) http.Handler {
	if now == nil {
		now = time.Now
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := r.URL.Query().Get("user_id")
			if userID == "" {
				http.Error(w, "Missing user_id parameter", http.StatusBadRequest)
				return
			}

			s, err := sessions.Get(r.Context(), userID)
			switch {
			case errors.Is(err, repository.ErrSessionNotFound):
				http.Error(w, "User not authenticated", http.StatusUnauthorized)
				return
			case err != nil:
				http.Error(w, "Failed to check session", http.StatusInternalServerError)
				return
			case !s.Active(now()):
				http.Error(w, "Session expired", http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), UserIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
