package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/neuralchat/ragserver/internal/config"
	"github.com/neuralchat/ragserver/internal/document"
	"github.com/neuralchat/ragserver/internal/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func localConfig(t *testing.T) *config.Config {
	t.Setenv("REDIS_ADDR", "127.0.0.1:1")
	cfg, err := config.Load()
	require.NoError(t, err)
	cfg.Embedding.Dimension = 8
	return cfg
}

func TestNew_MemoryDrivers(t *testing.T) {
	cfg := localConfig(t)

	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.Pool)
	assert.Nil(t, a.Redis, "unreachable redis disables the cache")
	assert.IsType(t, &document.MemoryStore{}, a.Documents)
	assert.IsType(t, &vectorstore.MemoryStore{}, a.Index)
	assert.Equal(t, 8, a.Index.Dimension())
	assert.Equal(t, 8, a.Embedder.Dimension())
	assert.NotNil(t, a.Orchestrator)
	assert.NotNil(t, a.Ingester)
	assert.Empty(t, a.Checks())
}

func TestNew_RejectsDocumentsWithoutDurableVectors(t *testing.T) {
	cfg := localConfig(t)
	cfg.Storage.DocStoreDriver = "sqlite"
	cfg.Storage.SQLitePath = filepath.Join(t.TempDir(), "docs.db")

	_, err := New(context.Background(), cfg)
	assert.ErrorContains(t, err, "VECTOR_INDEX_DRIVER=memory")
}

func TestChecks_SQLiteDocStore(t *testing.T) {
	store, err := document.NewSQLiteStore(filepath.Join(t.TempDir(), "data", "docs.db"))
	require.NoError(t, err)
	defer store.Close()

	a := &App{Documents: store}
	checks := a.Checks()
	require.Contains(t, checks, "docstore")
	assert.NotContains(t, checks, "database")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, checks["docstore"](ctx))
}

func TestNew_UnknownDriver(t *testing.T) {
	cfg := localConfig(t)
	cfg.Storage.VectorIndexDriver = "faiss"

	_, err := New(context.Background(), cfg)
	assert.ErrorContains(t, err, "faiss")
}

func TestPolicy(t *testing.T) {
	p := policy("embedding", config.TimeoutConfig{RetryAttempts: -1, RetryBaseDelay: time.Second}, 3*time.Second)
	assert.Equal(t, 0, p.Retries)
	assert.Equal(t, 3*time.Second, p.PerCallTimeout)
	assert.Equal(t, "embedding", p.Name)
}
