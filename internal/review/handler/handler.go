// Package handler serves the review API: sessions, workspace documents, the
// scores and queue resources, and the assistant endpoints.
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"cvreview/internal/auth"
	"cvreview/internal/review/model"
	"cvreview/internal/review/repository"
	"cvreview/pkg/logger"

	"golang.org/x/oauth2"
)

type ScoreStore interface {
	Load(ctx context.Context, workspaceID string) (model.Scores, error)
	Save(ctx context.Context, workspaceID string, scores model.Scores) error
	Rows(ctx context.Context, workspaceID string) ([]repository.ScoreRow, error)
}

type QueueStore interface {
	Load(ctx context.Context, workspaceID string) ([]model.QueueEntry, error)
	Save(ctx context.Context, workspaceID string, entries []model.QueueEntry) error
}

type DocumentStore interface {
	List(ctx context.Context, workspaceID string) ([]model.Document, error)
	Upsert(ctx context.Context, workspaceID string, doc model.Document, content string) error
	ContentByID(ctx context.Context, docID string) (string, error)
}

type SessionStore interface {
	Get(ctx context.Context, userID string) (repository.Session, error)
	Upsert(ctx context.Context, s repository.Session) error
}

type OAuthProvider interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, auth.UserInfo, error)
}

type TokenIssuer interface {
	Issue(userID string) (string, time.Time, error)
}

type Assistant interface {
	Letter(ctx context.Context, kind model.LetterKind, req model.LetterRequest) (model.LetterResponse, error)
	Grade(ctx context.Context, req model.GradeRequest, cvText string) (model.GradeResponse, error)
}

type Handler struct {
	Scores    ScoreStore
	Queues    QueueStore
	Documents DocumentStore
	Sessions  SessionStore
	OAuth     OAuthProvider
	Tokens    TokenIssuer
	Assistant Assistant

	SessionTTL time.Duration
	// BaseDomain is the frontend the OAuth callback redirects to.
	BaseDomain string
	Now        func() time.Time
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Sugar.Errorf("Failed to encode response: %v", err)
	}
}

func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, model.MessageResponse{Message: "CV Voting API is running"})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "healthy", "timestamp": h.now().UTC()})
}
