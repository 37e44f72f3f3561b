package router

import (
	"net/http"
	"time"

	"cvreview/internal/review/handler"
	"cvreview/middleware"
	"cvreview/socket"
)

type Deps struct {
	Handler    *handler.Handler
	Hub        *socket.Hub
	Sessions   middleware.SessionLookup
	Tokens     middleware.TokenVerifier
	CORSOrigin string
	Now        func() time.Time
}

func Setup(d Deps) http.Handler {
	mux := http.NewServeMux()
	h := d.Handler
	session := middleware.SessionMiddleware(d.Sessions, d.Now)

	// WebSocket
	wsHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		socket.ServeWs(d.Hub, w, r, middleware.UserID(r.Context()))
	})
	mux.Handle("GET /ws", middleware.AuthMiddleware(d.Tokens)(wsHandler))

	mux.HandleFunc("GET /{$}", h.Root)
	mux.HandleFunc("GET /health", h.Health)

	// Auth
	mux.HandleFunc("GET /auth/url", h.AuthURL)
	mux.HandleFunc("GET /auth/callback", h.AuthCallback)
	mux.HandleFunc("GET /auth/status", h.AuthStatus)
	mux.Handle("GET /auth/profile", session(http.HandlerFunc(h.Profile)))
	mux.Handle("GET /auth/token", session(http.HandlerFunc(h.Token)))

	// Workspace resources
	mux.Handle("GET /documents/{workspaceId}", session(http.HandlerFunc(h.ListDocuments)))
	mux.Handle("POST /documents/{workspaceId}", session(http.HandlerFunc(h.PutDocument)))
	mux.Handle("GET /scores/{workspaceId}", session(http.HandlerFunc(h.GetScores)))
	mux.Handle("POST /scores/{workspaceId}", session(http.HandlerFunc(h.SaveScores)))
	mux.Handle("GET /scores/{workspaceId}/export", session(http.HandlerFunc(h.ExportScores)))
	mux.Handle("GET /queue/{workspaceId}", session(http.HandlerFunc(h.GetQueue)))
	mux.Handle("POST /queue/{workspaceId}", session(http.HandlerFunc(h.SaveQueue)))
	mux.HandleFunc("POST /vote", h.Vote)

	// Assistant
	mux.HandleFunc("POST /generate-rejection", h.GenerateRejection)
	mux.HandleFunc("POST /generate-acceptance", h.GenerateAcceptance)
	mux.Handle("POST /grade-cv", session(http.HandlerFunc(h.GradeCV)))

	return middleware.CORSMiddleware(d.CORSOrigin)(mux)
}
