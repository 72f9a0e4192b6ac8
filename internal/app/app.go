// Package app wires configuration into the services shared by the API
// server and the ingestion worker.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/neuralchat/ragserver/internal/api/handlers"
	"github.com/neuralchat/ragserver/internal/cache"
	"github.com/neuralchat/ragserver/internal/config"
	"github.com/neuralchat/ragserver/internal/database"
	"github.com/neuralchat/ragserver/internal/document"
	"github.com/neuralchat/ragserver/internal/embedding"
	"github.com/neuralchat/ragserver/internal/llm"
	"github.com/neuralchat/ragserver/internal/rag"
	"github.com/neuralchat/ragserver/internal/retry"
	"github.com/neuralchat/ragserver/internal/vectorstore"
	"github.com/neuralchat/ragserver/pkg/chunker"
)

const cachePrefix = "ragserver:"

type App struct {
	Config       *config.Config
	Pool         *pgxpool.Pool
	Redis        *redis.Client
	Gateway      llm.Gateway
	Documents    document.Store
	Index        vectorstore.VectorStore
	Embedder     *embedding.Service
	Retriever    *rag.Retriever
	Orchestrator *rag.Orchestrator
	Ingester     *rag.Ingester

	closers []func()
}

// New validates cfg and connects the configured drivers. Postgres is
// required only when a driver uses it; redis is optional and only disables
// the embedding cache when unreachable.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &App{Config: cfg}
	if err := a.connect(ctx); err != nil {
		a.Close()
		return nil, err
	}

	a.Gateway = llm.NewGateway(cfg.LLM, cfg.Embedding)

	embOpts := embedding.Options{
		Provider:    cfg.Embedding.Provider,
		Model:       cfg.Embedding.Model,
		Dimension:   cfg.Embedding.Dimension,
		BatchSize:   cfg.Embedding.BatchSize,
		Concurrency: cfg.Embedding.Concurrency,
		Retry:       policy("embedding", cfg.Timeouts, cfg.Timeouts.Embedding),
		CacheTTL:    cfg.Redis.EmbeddingTTL,
	}
	if a.Redis != nil {
		embOpts.Cache = cache.NewCache(a.Redis, cachePrefix)
	}
	a.Embedder = embedding.NewService(a.Gateway, embOpts)

	a.Retriever = rag.NewRetriever(a.Index, a.Embedder, rag.RetrieverOptions{
		DefaultK:        cfg.Retrieval.DefaultK,
		MaxK:            cfg.Retrieval.MaxK,
		DefaultMinScore: cfg.Retrieval.MinScore,
		Search:          policy("vector search", cfg.Timeouts, cfg.Timeouts.Search),
	})
	a.Orchestrator = rag.NewOrchestrator(a.Retriever, a.Gateway, rag.OrchestratorOptions{
		Model:             cfg.LLM.Model,
		MaxTokens:         cfg.LLM.MaxTokens,
		BudgetChars:       cfg.Retrieval.BudgetChars,
		GenerationTimeout: cfg.Timeouts.Generation,
	})
	a.Ingester = rag.NewIngester(document.NewTextExtractor(), a.Documents, a.Index, a.Embedder, chunker.ChunkOptions{
		MaxChunkChars: cfg.Chunking.MaxChars,
		OverlapChars:  cfg.Chunking.OverlapChars,
	})

	slog.Info("services ready",
		"docstore", cfg.Storage.DocStoreDriver,
		"vector_index", cfg.Storage.VectorIndexDriver,
		"llm_provider", cfg.LLM.Provider,
		"embedding_model", cfg.Embedding.Model,
		"embedding_cache", a.Redis != nil,
	)
	return a, nil
}

func (a *App) connect(ctx context.Context) error {
	cfg := a.Config

	if cfg.Storage.DocStoreDriver == "postgres" || cfg.Storage.VectorIndexDriver == "pgvector" {
		pool, err := database.NewPool(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		a.Pool = pool
		a.closers = append(a.closers, pool.Close)
	}

	rdb := cache.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	err := rdb.Ping(pingCtx).Err()
	cancel()
	if err != nil {
		slog.Warn("redis unavailable, running without embedding cache", "addr", cfg.Redis.Addr, "error", err)
		rdb.Close()
	} else {
		a.Redis = rdb
		a.closers = append(a.closers, func() { rdb.Close() })
	}

	switch cfg.Storage.DocStoreDriver {
	case "postgres":
		a.Documents = document.NewPostgresStore(a.Pool)
	case "sqlite":
		store, err := document.NewSQLiteStore(cfg.Storage.SQLitePath)
		if err != nil {
			return fmt.Errorf("open sqlite document store: %w", err)
		}
		a.Documents = store
		a.closers = append(a.closers, func() { store.Close() })
	case "memory", "":
		a.Documents = document.NewMemoryStore()
	default:
		return fmt.Errorf("unknown document store driver %q", cfg.Storage.DocStoreDriver)
	}

	switch cfg.Storage.VectorIndexDriver {
	case "pgvector":
		a.Index = vectorstore.NewPgVectorStore(a.Pool, cfg.Embedding.Dimension)
	case "memory", "":
		a.Index = vectorstore.NewMemoryStore(cfg.Embedding.Dimension)
	default:
		return fmt.Errorf("unknown vector index driver %q", cfg.Storage.VectorIndexDriver)
	}
	return nil
}

// Checks returns the readiness probes for the connected dependencies.
func (a *App) Checks() map[string]handlers.Check {
	checks := map[string]handlers.Check{}
	if a.Pool != nil {
		checks["database"] = a.Pool.Ping
	}
	if a.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return a.Redis.Ping(ctx).Err() }
	}
	if s, ok := a.Documents.(interface{ Ping(context.Context) error }); ok {
		checks["docstore"] = s.Ping
	}
	return checks
}

// Close releases connections in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func policy(name string, t config.TimeoutConfig, perCall time.Duration) retry.Policy {
	return retry.Policy{
		Name:           name,
		Retries:        max(t.RetryAttempts, 0),
		BaseDelay:      t.RetryBaseDelay,
		PerCallTimeout: perCall,
	}
}
