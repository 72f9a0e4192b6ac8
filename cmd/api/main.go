package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/neuralchat/ragserver/internal/api"
	"github.com/neuralchat/ragserver/internal/app"
	"github.com/neuralchat/ragserver/internal/auth"
	"github.com/neuralchat/ragserver/internal/config"
	"github.com/neuralchat/ragserver/internal/logging"
	"github.com/neuralchat/ragserver/internal/queue"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	services, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("failed to start services", "error", err)
		os.Exit(1)
	}
	defer services.Close()

	deps := api.Deps{
		Orchestrator: services.Orchestrator,
		Retriever:    services.Retriever,
		Ingester:     services.Ingester,
		Documents:    services.Documents,
		Gateway:      services.Gateway,
		Checks:       services.Checks(),
	}

	// Async ingestion needs a worker to hand off to, which needs redis and
	// document and vector stores the worker shares with this process.
	if services.Redis != nil && cfg.Storage.Shared() {
		qc := queue.NewClient(cfg.Redis)
		defer qc.Close()
		deps.Queue = qc
	} else {
		slog.Info("async ingestion disabled",
			"redis", services.Redis != nil,
			"docstore", cfg.Storage.DocStoreDriver,
			"vector_index", cfg.Storage.VectorIndexDriver,
		)
	}

	if cfg.Auth.JWTSecret != "" {
		issuer, err := auth.NewIssuer(cfg.Auth)
		if err != nil {
			slog.Error("failed to configure auth", "error", err)
			os.Exit(1)
		}
		deps.Auth = issuer
	} else {
		slog.Warn("AUTH_JWT_SECRET not set, /api routes are unauthenticated")
	}

	router := api.NewRouter(cfg, deps)
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router.Setup(),
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      cfg.Server.RequestTimeout + 15*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("starting API server", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced shutdown", "error", err)
	}
	slog.Info("server stopped")
}
