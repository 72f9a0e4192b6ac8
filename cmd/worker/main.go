package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/neuralchat/ragserver/internal/app"
	"github.com/neuralchat/ragserver/internal/config"
	"github.com/neuralchat/ragserver/internal/logging"
	"github.com/neuralchat/ragserver/internal/queue"
	"github.com/neuralchat/ragserver/internal/queue/workers"
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
	if !cfg.Storage.Shared() {
		slog.Error("worker needs stores shared with the API; set DOCSTORE_DRIVER to postgres or sqlite and VECTOR_INDEX_DRIVER to pgvector",
			"docstore", cfg.Storage.DocStoreDriver,
			"vector_index", cfg.Storage.VectorIndexDriver,
		)
		os.Exit(1)
	}

	services, err := app.New(context.Background(), cfg)
	if err != nil {
		slog.Error("failed to start services", "error", err)
		os.Exit(1)
	}
	defer services.Close()

	concurrency := max(cfg.Embedding.Concurrency, 1) * 2
	srv := queue.NewServer(cfg.Redis, concurrency)

	registry := queue.NewHandlersRegistry()
	ingestWorker := workers.NewIngestWorker(services.Ingester)
	registry.Register(queue.TypeDocumentIngest, asynq.HandlerFunc(ingestWorker.ProcessTask))

	slog.Info("starting worker", "concurrency", concurrency, "docstore", cfg.Storage.DocStoreDriver, "vector_index", cfg.Storage.VectorIndexDriver)
	if err := srv.Run(registry.Mux()); err != nil {
		slog.Error("worker error", "error", err)
		os.Exit(1)
	}
}
