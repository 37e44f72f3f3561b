package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"cvreview/internal/review/model"
	"cvreview/internal/review/repository"
	"cvreview/middleware"
	"cvreview/pkg/logger"

	"github.com/google/uuid"
)

// AuthStatus never fails: anything but an active session is reported as
// unauthenticated.
func (h *Handler) AuthStatus(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeJSON(w, http.StatusOK, model.AuthStatus{})
		return
	}
	s, err := h.Sessions.Get(r.Context(), userID)
	if err != nil || !s.Active(h.now()) {
		writeJSON(w, http.StatusOK, model.AuthStatus{})
		return
	}
	writeJSON(w, http.StatusOK, model.AuthStatus{Authenticated: true, UserID: userID})
}

func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	s, err := h.Sessions.Get(r.Context(), userID)
	if errors.Is(err, repository.ErrSessionNotFound) {
		http.Error(w, "User not authenticated", http.StatusUnauthorized)
		return
	}
	if err != nil {
		http.Error(w, "Failed to get user profile", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, model.UserProfile{Name: s.Name, Email: s.Email, Picture: s.Picture})
}

func (h *Handler) AuthURL(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, model.AuthURLResponse{AuthURL: h.OAuth.AuthURL(uuid.NewString())})
}

// AuthCallback finishes the Google sign-in, stores the session and sends
// the browser back to the frontend with the user id.
func (h *Handler) AuthCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "Authorization code not found", http.StatusBadRequest)
		return
	}

	token, info, err := h.OAuth.Exchange(r.Context(), code)
	if err != nil {
		logger.Sugar.Errorf("OAuth callback failed: %v", err)
		http.Error(w, "Authentication failed", http.StatusBadRequest)
		return
	}
	creds, err := json.Marshal(token)
	if err != nil {
		http.Error(w, "Authentication failed", http.StatusInternalServerError)
		return
	}

	session := repository.Session{
		UserID:          info.ID,
		Name:            info.Name,
		Email:           info.Email,
		Picture:         info.Picture,
		CredentialsJSON: string(creds),
		ExpiresAt:       h.now().Add(h.SessionTTL),
	}
	if err := h.Sessions.Upsert(r.Context(), session); err != nil {
		http.Error(w, "Failed to store session", http.StatusInternalServerError)
		return
	}
	logger.Sugar.Infof("User %s (%s) signed in", info.ID, info.Email)

	q := url.Values{"auth": {"success"}, "user_id": {info.ID}}
	http.Redirect(w, r, h.BaseDomain+"?"+q.Encode(), http.StatusFound)
}

// Token issues a gateway token for the session's user.
func (h *Handler) Token(w http.ResponseWriter, r *http.Request) {
	token, expires, err := h.Tokens.Issue(middleware.UserID(r.Context()))
	if err != nil {
		logger.Sugar.Errorf("Failed to issue token: %v", err)
		http.Error(w, "Failed to issue token", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, model.TokenResponse{Token: token, ExpiresAt: expires})
}
