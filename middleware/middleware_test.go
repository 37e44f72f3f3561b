package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cvreview/internal/auth"
	"cvreview/internal/review/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var echoUser = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte(UserID(r.Context())))
})

func TestAuthMiddleware(t *testing.T) {
	issuer := auth.NewTokenIssuer("secret", time.Hour)
	token, _, err := issuer.Issue("user-1")
	require.NoError(t, err)
	h := AuthMiddleware(issuer)(echoUser)

	tests := []struct {
		name   string
		target string
		header string
		code   int
		body   string
	}{
		{"query token", "/ws?token=" + token, "", http.StatusOK, "user-1"},
		{"bearer header", "/ws", "Bearer " + token, http.StatusOK, "user-1"},
		{"missing", "/ws", "", http.StatusUnauthorized, "Unauthorized: No token provided\n"},
		{"garbage", "/ws?token=abc", "", http.StatusUnauthorized, "Unauthorized: Invalid or expired token\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			assert.Equal(t, tt.code, rr.Code)
			assert.Equal(t, tt.body, rr.Body.String())
		})
	}
}

type fakeSessions map[string]repository.Session

func (f fakeSessions) Get(ctx context.Context, userID string) (repository.Session, error) {
	if userID == "broken" {
		return repository.Session{}, errors.New("db down")
	}
	s, ok := f[userID]
	if !ok {
		return repository.Session{}, repository.ErrSessionNotFound
	}
	return s, nil
}

func TestSessionMiddleware(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	sessions := fakeSessions{
		"alive": {UserID: "alive", ExpiresAt: now.Add(time.Hour)},
		"stale": {UserID: "stale", ExpiresAt: now.Add(-time.Hour)},
	}
	h := SessionMiddleware(sessions, func() time.Time { return now })(echoUser)

	cases := map[string]int{
		"/scores/ws?user_id=alive":  http.StatusOK,
		"/scores/ws?user_id=stale":  http.StatusUnauthorized,
		"/scores/ws?user_id=ghost":  http.StatusUnauthorized,
		"/scores/ws?user_id=broken": http.StatusInternalServerError,
		"/scores/ws":                http.StatusBadRequest,
	}
	for target, code := range cases {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, code, rr.Code, target)
	}
}

func TestCORSMiddleware(t *testing.T) {
	h := CORSMiddleware("http://localhost:3000")(echoUser)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodOptions, "/scores/ws", nil))
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "http://localhost:3000", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rr.Header().Get("Access-Control-Allow-Credentials"))

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}
