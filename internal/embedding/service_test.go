package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/neuralchat/ragserver/internal/apperr"
	"github.com/neuralchat/ragserver/internal/llm"
	"github.com/neuralchat/ragserver/internal/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGateway embeds text as [len(text), 1, 0] and can fail the first N calls.
type fakeGateway struct {
	mu       sync.Mutex
	calls    int
	batches  [][]string
	failures int
	err      error
	dim      int
	// holes answers that many calls with the last vector missing.
	holes    int
}

func (f *fakeGateway) Embed(ctx context.Context, req llm.EmbeddingRequest) (*llm.EmbeddingResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.batches = append(f.batches, req.Input)
	if f.failures > 0 {
		f.failures--
		return nil, f.err
	}
	dim := f.dim
	if dim == 0 {
		dim = 3
	}
	out := make([][]float32, len(req.Input))
	for i, t := range req.Input {
		v := make([]float32, dim)
		v[0] = float32(len(t))
		if dim > 1 {
			v[1] = 1
		}
		out[i] = v
	}
	if f.holes > 0 {
		f.holes--
		out[len(out)-1] = nil
	}
	return &llm.EmbeddingResponse{Embeddings: out}, nil
}

func (f *fakeGateway) Chat(context.Context, llm.ChatRequest) (*llm.ChatResponse, error) {
	return nil, errors.New("not used")
}
func (f *fakeGateway) Provider(string) (llm.Provider, error) { return nil, errors.New("not used") }
func (f *fakeGateway) ListModels() []llm.ModelInfo           { return nil }

type memCache struct {
	mu      sync.Mutex
	data    map[string][]byte
	readErr error
}

func (m *memCache) GetMany(ctx context.Context, keys []string) ([][]byte, error) {
	if m.readErr != nil {
		return nil, m.readErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(keys))
	for i, k := range keys {
		out[i] = m.data[k]
	}
	return out, nil
}

func (m *memCache) SetMany(ctx context.Context, items map[string]any, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range items {
		b, _ := json.Marshal(v)
		m.data[k] = b
	}
	return nil
}

func fastRetry() retry.Policy {
	return retry.Policy{Retries: 2, BaseDelay: time.Millisecond}
}

func TestService_BatchesPreserveOrder(t *testing.T) {
	gw := &fakeGateway{}
	svc := NewService(gw, Options{Dimension: 3, BatchSize: 2, Concurrency: 3, Retry: fastRetry()})

	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	vecs, err := svc.Embed(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vecs, 5)
	for i, text := range texts {
		assert.Equal(t, float32(len(text)), vecs[i][0])
	}
	assert.Equal(t, 3, gw.calls)
	for _, b := range gw.batches {
		assert.LessOrEqual(t, len(b), 2)
	}
}

func TestService_EmptyInput(t *testing.T) {
	gw := &fakeGateway{}
	vecs, err := NewService(gw, Options{Dimension: 3}).Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vecs)
	assert.Zero(t, gw.calls)
}

func TestService_RetriesTransientFailures(t *testing.T) {
	gw := &fakeGateway{failures: 2, err: errors.New("connection reset")}
	svc := NewService(gw, Options{Dimension: 3, Retry: fastRetry()})

	v, err := svc.EmbedSingle(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, float32(5), v[0])
	assert.Equal(t, 3, gw.calls)
}

func TestService_UnavailableAfterRetries(t *testing.T) {
	gw := &fakeGateway{failures: 10, err: errors.New("503")}
	svc := NewService(gw, Options{Dimension: 3, Retry: fastRetry()})

	_, err := svc.EmbedSingle(context.Background(), "hello")
	assert.ErrorIs(t, err, apperr.ErrEmbeddingUnavailable)
	assert.Equal(t, 3, gw.calls)
}

func TestService_DimensionMismatchNotRetried(t *testing.T) {
	gw := &fakeGateway{dim: 2}
	svc := NewService(gw, Options{Dimension: 3, Retry: fastRetry()})

	_, err := svc.Embed(context.Background(), []string{"x"})
	assert.ErrorIs(t, err, apperr.ErrDimensionMismatch)
	assert.Equal(t, 1, gw.calls)
}

func TestService_MissingVectorIsRetried(t *testing.T) {
	gw := &fakeGateway{holes: 1}
	svc := NewService(gw, Options{Dimension: 3, Retry: fastRetry()})

	vecs, err := svc.Embed(context.Background(), []string{"a", "bb"})
	require.NoError(t, err)
	assert.Equal(t, float32(2), vecs[1][0])
	assert.Equal(t, 2, gw.calls)
}

func TestService_MissingVectorIsUnavailable(t *testing.T) {
	gw := &fakeGateway{holes: 10}
	svc := NewService(gw, Options{Dimension: 3, Retry: fastRetry()})

	_, err := svc.Embed(context.Background(), []string{"a", "bb"})
	assert.ErrorIs(t, err, apperr.ErrEmbeddingUnavailable)
	assert.NotErrorIs(t, err, apperr.ErrDimensionMismatch)
	assert.Equal(t, 3, gw.calls)
}

func TestService_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	gw := &fakeGateway{failures: 1, err: context.Canceled}

	_, err := NewService(gw, Options{Dimension: 3, Retry: fastRetry()}).Embed(ctx, []string{"x"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestService_CacheHitsSkipProvider(t *testing.T) {
	gw := &fakeGateway{}
	cache := &memCache{data: map[string][]byte{}}
	svc := NewService(gw, Options{Model: "m", Dimension: 3, Retry: fastRetry(), Cache: cache, CacheTTL: time.Hour})

	_, err := svc.Embed(context.Background(), []string{"one", "two"})
	require.NoError(t, err)
	assert.Equal(t, 1, gw.calls)
	assert.Len(t, cache.data, 2)

	vecs, err := svc.Embed(context.Background(), []string{"two", "three"})
	require.NoError(t, err)
	assert.Equal(t, 2, gw.calls)
	assert.Equal(t, []string{"three"}, gw.batches[1])
	assert.Equal(t, float32(3), vecs[0][0])
	assert.Equal(t, float32(5), vecs[1][0])
}

func TestService_CacheFailureIsIgnored(t *testing.T) {
	gw := &fakeGateway{}
	cache := &memCache{data: map[string][]byte{}, readErr: errors.New("redis down")}
	svc := NewService(gw, Options{Dimension: 3, Retry: fastRetry(), Cache: cache})

	vecs, err := svc.Embed(context.Background(), []string{"abc"})
	require.NoError(t, err)
	assert.Equal(t, float32(3), vecs[0][0])
}

func TestCacheKey(t *testing.T) {
	a := CacheKey("m1", "text")
	assert.True(t, strings.HasPrefix(a, "emb:"))
	assert.Equal(t, a, CacheKey("m1", "text"))
	assert.NotEqual(t, a, CacheKey("m2", "text"))
	assert.NotEqual(t, CacheKey("m", "1text"), CacheKey("m1", "text"))
}
