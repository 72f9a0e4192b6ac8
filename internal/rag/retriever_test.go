package rag

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/neuralchat/ragserver/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetriever_ClampK(t *testing.T) {
	r := NewRetriever(newCountingIndex(), &bagEmbedder{dim: testDim}, RetrieverOptions{DefaultK: 4, MaxK: 20})

	assert.Equal(t, 4, r.ClampK(0))
	assert.Equal(t, 4, r.ClampK(-3))
	assert.Equal(t, 7, r.ClampK(7))
	assert.Equal(t, 20, r.ClampK(100))
}

func TestRetriever_Defaults(t *testing.T) {
	r := NewRetriever(newCountingIndex(), &bagEmbedder{dim: testDim}, RetrieverOptions{})
	assert.Equal(t, 4, r.ClampK(0))
	assert.Equal(t, 20, r.ClampK(1000))
	assert.Equal(t, "vector search", r.opts.Search.Name)
}

func TestRetriever_MinScoreOverride(t *testing.T) {
	h := newHarness()
	ingestFrance(t, h)
	r := NewRetriever(h.index, h.embedder, RetrieverOptions{DefaultMinScore: 0.99})
	ctx := context.Background()

	res, err := r.Retrieve(ctx, "capital of France", RetrieveOptions{})
	require.NoError(t, err)
	assert.Empty(t, res)

	zero := 0.0
	res, err = r.Retrieve(ctx, "capital of France", RetrieveOptions{MinScore: &zero})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "The capital of France is Paris.", res[0].Content)
}

func TestRetriever_DimensionMismatchNotRetried(t *testing.T) {
	idx := newCountingIndex()
	r := NewRetriever(idx, &bagEmbedder{dim: testDim}, RetrieverOptions{})
	r.opts.Search.Retries = 3
	r.opts.Search.BaseDelay = time.Millisecond

	_, err := r.Search(context.Background(), make([]float32, testDim+1), RetrieveOptions{})
	assert.ErrorIs(t, err, apperr.ErrDimensionMismatch)
	assert.Equal(t, 1, idx.SearchCalls())
}

func TestRetriever_CancelledContext(t *testing.T) {
	idx := newCountingIndex()
	r := NewRetriever(idx, &bagEmbedder{dim: testDim}, RetrieverOptions{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Search(ctx, make([]float32, testDim), RetrieveOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetriever_DeadlineDuringSearchRetries(t *testing.T) {
	idx := newCountingIndex()
	idx.searchErr = errors.New("connection reset")
	r := NewRetriever(idx, &bagEmbedder{dim: testDim}, RetrieverOptions{})
	r.opts.Search.Retries = 5
	r.opts.Search.BaseDelay = 20 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := r.Search(ctx, make([]float32, testDim), RetrieveOptions{})
	assert.ErrorIs(t, err, apperr.ErrProvider)
	assert.Equal(t, "vector search did not respond in time", apperr.Detail(err))
	assert.Less(t, idx.SearchCalls(), 6)
}
