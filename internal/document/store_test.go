package document

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/neuralchat/ragserver/internal/apperr"
	"github.com/neuralchat/ragserver/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDoc(name string, at time.Time) *models.Document {
	return &models.Document{
		ID:          uuid.New(),
		Filename:    name,
		ContentHash: "abc123",
		SizeBytes:   42,
		Status:      models.DocStatusPending,
		IngestedAt:  at,
	}
}

func storeImplementations(t *testing.T) map[string]Store {
	t.Helper()
	sqlite, err := NewSQLiteStore(filepath.Join(t.TempDir(), "data", "documents.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
	}
}

func TestStore_CreateGetUpdate(t *testing.T) {
	ctx := context.Background()
	for name, store := range storeImplementations(t) {
		t.Run(name, func(t *testing.T) {
			at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
			doc := newDoc("france.txt", at)
			require.NoError(t, store.Create(ctx, doc))

			got, err := store.Get(ctx, doc.ID)
			require.NoError(t, err)
			assert.Equal(t, "france.txt", got.Filename)
			assert.Equal(t, models.DocStatusPending, got.Status)
			assert.True(t, got.IngestedAt.Equal(at))

			require.NoError(t, store.UpdateStatus(ctx, doc.ID, models.DocStatusReady, 1, 3))
			got, err = store.Get(ctx, doc.ID)
			require.NoError(t, err)
			assert.Equal(t, models.DocStatusReady, got.Status)
			assert.Equal(t, 1, got.PageCount)
			assert.Equal(t, 3, got.ChunkCount)
		})
	}
}

func TestStore_NotFound(t *testing.T) {
	ctx := context.Background()
	for name, store := range storeImplementations(t) {
		t.Run(name, func(t *testing.T) {
			id := uuid.New()

			_, err := store.Get(ctx, id)
			assert.ErrorIs(t, err, apperr.ErrNotFound)
			assert.ErrorIs(t, store.Delete(ctx, id), apperr.ErrNotFound)
			assert.ErrorIs(t, store.UpdateStatus(ctx, id, models.DocStatusReady, 0, 0), apperr.ErrNotFound)
		})
	}
}

func TestStore_RejectsUnknownStatus(t *testing.T) {
	ctx := context.Background()
	for name, store := range storeImplementations(t) {
		t.Run(name, func(t *testing.T) {
			doc := newDoc("a.txt", time.Now())
			require.NoError(t, store.Create(ctx, doc))
			assert.Error(t, store.UpdateStatus(ctx, doc.ID, "processing", 0, 0))
		})
	}
}

func TestStore_DeleteThenGet(t *testing.T) {
	ctx := context.Background()
	for name, store := range storeImplementations(t) {
		t.Run(name, func(t *testing.T) {
			doc := newDoc("a.txt", time.Now())
			require.NoError(t, store.Create(ctx, doc))
			require.NoError(t, store.Delete(ctx, doc.ID))

			_, err := store.Get(ctx, doc.ID)
			assert.ErrorIs(t, err, apperr.ErrNotFound)
		})
	}
}

func TestStore_ListNewestFirstWithPaging(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for name, store := range storeImplementations(t) {
		t.Run(name, func(t *testing.T) {
			for i, n := range []string{"first.txt", "second.txt", "third.txt"} {
				require.NoError(t, store.Create(ctx, newDoc(n, base.Add(time.Duration(i)*time.Minute))))
			}

			all, err := store.List(ctx, 0, 0)
			require.NoError(t, err)
			require.Len(t, all, 3)
			assert.Equal(t, "third.txt", all[0].Filename)
			assert.Equal(t, "first.txt", all[2].Filename)

			page, err := store.List(ctx, 1, 1)
			require.NoError(t, err)
			require.Len(t, page, 1)
			assert.Equal(t, "second.txt", page[0].Filename)

			empty, err := store.List(ctx, 10, 10)
			require.NoError(t, err)
			assert.Empty(t, empty)
		})
	}
}

func TestNormalizePage(t *testing.T) {
	tests := []struct {
		limit, offset         int
		wantLimit, wantOffset int
	}{
		{0, 0, DefaultListLimit, 0},
		{-5, -1, DefaultListLimit, 0},
		{10, 20, 10, 20},
		{MaxListLimit + 1, 0, MaxListLimit, 0},
	}
	for _, tt := range tests {
		l, o := NormalizePage(tt.limit, tt.offset)
		assert.Equal(t, tt.wantLimit, l)
		assert.Equal(t, tt.wantOffset, o)
	}
}
