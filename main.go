package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cvreview/config"
	"cvreview/config/database"
	"cvreview/internal/assistant"
	"cvreview/internal/auth"
	"cvreview/internal/review/controller"
	"cvreview/internal/review/handler"
	"cvreview/internal/review/remote"
	"cvreview/internal/review/repository"
	"cvreview/internal/review/scheduler"
	"cvreview/pkg/logger"
	"cvreview/router"
	"cvreview/socket"
)

const sessionCleanupPeriod = time.Hour

func main() {
	logger.Init()
	defer logger.Sync()

	cfg := config.Load()

	db := database.Connect(cfg.Database)
	defer db.Close()
	if err := database.Migrate(db); err != nil {
		logger.Sugar.Fatalf("Failed to migrate database: %v", err)
	}

	sessions := repository.NewSessionRepository(db)
	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.SessionTTL)

	var llm assistant.Completer
	if cfg.OpenAIKey != "" {
		llm = assistant.NewOpenAIClient(cfg.OpenAIKey, cfg.OpenAIModel)
	} else {
		logger.Sugar.Warn("OPENAI_API_KEY not set, letter generation and grading are disabled")
	}

	h := &handler.Handler{
		Scores:     repository.NewScoreRepository(db),
		Queues:     repository.NewQueueRepository(db),
		Documents:  repository.NewDocumentRepository(db),
		Sessions:   sessions,
		OAuth:      auth.NewGoogle(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.RedirectURI),
		Tokens:     tokens,
		Assistant:  assistant.New(llm),
		SessionTTL: cfg.SessionTTL,
		BaseDomain: cfg.BaseDomain,
	}

	// Gateway sessions reach the resources through the public API, like any
	// other client.
	api := remote.New(cfg.ReviewAPIURL, nil)
	hub := socket.NewHub(func(onEvent func(scheduler.Event)) *controller.Controller {
		return controller.New(api, controller.Options{AutosaveDelay: cfg.AutosaveDelay, OnEvent: onEvent})
	})

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go hub.Run(ctx)
	go hub.SaveWorker(ctx, 0)
	go cleanupSessions(ctx, sessions, sessionCleanupPeriod)

	server := &http.Server{
		Addr: cfg.Addr,
		Handler: router.Setup(router.Deps{
			Handler:    h,
			Hub:        hub,
			Sessions:   sessions,
			Tokens:     tokens,
			CORSOrigin: cfg.CORSOrigin,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Sugar.Infof("Review API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Sugar.Fatalf("Server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Sugar.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	// Sessions flush through the API, so close them before the server.
	if err := hub.Shutdown(shutdownCtx); err != nil {
		logger.Sugar.Errorf("Sessions did not finish saving: %v", err)
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Sugar.Errorf("Server shutdown failed: %v", err)
	}
	logger.Sugar.Info("Server stopped")
}

type sessionPurger interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

func cleanupSessions(ctx context.Context, sessions sessionPurger, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := sessions.DeleteExpired(ctx, now)
			if err != nil {
				logger.Sugar.Warnf("Session cleanup failed: %v", err)
				continue
			}
			if n > 0 {
				logger.Sugar.Infof("Removed %d expired sessions", n)
			}
		}
	}
}
