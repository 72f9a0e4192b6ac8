package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/neuralchat/ragserver/internal/apperr"
	"github.com/neuralchat/ragserver/internal/llm"
	"github.com/neuralchat/ragserver/internal/retry"
)

// Embedder maps texts to vectors of a fixed dimension, one per input, in
// input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedSingle(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// Cache is the subset of the redis cache used for embedding reuse.
type Cache interface {
	GetMany(ctx context.Context, keys []string) ([][]byte, error)
	SetMany(ctx context.Context, items map[string]any, ttl time.Duration) error
}

type Options struct {
	Provider    string
	Model       string
	Dimension   int
	BatchSize   int
	Concurrency int
	Retry       retry.Policy
	Cache       Cache
	CacheTTL    time.Duration
}

type Service struct {
	gateway llm.Gateway
	opts    Options
}

func NewService(gw llm.Gateway, opts Options) *Service {
	if opts.Model == "" {
		opts.Model = "text-embedding-3-small"
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 64
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.Retry.Name == "" {
		opts.Retry.Name = "embedding"
	}
	if opts.Retry.Retryable == nil {
		opts.Retry.Retryable = isTransient
	}
	return &Service{gateway: gw, opts: opts}
}

func (s *Service) Dimension() int { return s.opts.Dimension }

// Embed returns one vector per text. Batches run concurrently up to the
// configured limit, each under the retry policy. Failures that survive the
// retries are reported as EmbeddingUnavailable; a vector of the wrong size
// is reported as DimensionMismatch.
func (s *Service) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, len(texts))
	keys := s.lookup(ctx, texts, out)

	var missing []int
	for i, v := range out {
		if v == nil {
			missing = append(missing, i)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)

	for start := 0; start < len(missing); start += s.opts.BatchSize {
		idx := missing[start:min(start+s.opts.BatchSize, len(missing))]
		g.Go(func() error {
			batch := make([]string, len(idx))
			for j, i := range idx {
				batch[j] = texts[i]
			}
			vecs, err := s.embedBatch(gctx, batch)
			if err != nil {
				return err
			}
			for j, i := range idx {
				out[i] = vecs[j]
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, apperr.ErrDimensionMismatch) {
			return nil, err
		}
		return nil, apperr.EmbeddingUnavailable(err)
	}

	s.store(ctx, keys, missing, out)
	return out, nil
}

func (s *Service) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := s.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, apperr.EmbeddingUnavailable(errors.New("no embedding returned"))
	}
	return embeddings[0], nil
}

func (s *Service) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	var vecs [][]float32
	err := retry.Do(ctx, s.opts.Retry, func(ctx context.Context) error {
		resp, err := s.gateway.Embed(ctx, llm.EmbeddingRequest{
			Provider: s.opts.Provider,
			Model:    s.opts.Model,
			Input:    batch,
		})
		if err != nil {
			return err
		}
		if len(resp.Embeddings) != len(batch) {
			return fmt.Errorf("provider returned %d embeddings for %d inputs", len(resp.Embeddings), len(batch))
		}
		for i, v := range resp.Embeddings {
			if len(v) == 0 {
				return fmt.Errorf("provider returned no vector for input %d", i)
			}
			if s.opts.Dimension > 0 && len(v) != s.opts.Dimension {
				return apperr.DimensionMismatch(s.opts.Dimension, len(v))
			}
		}
		vecs = resp.Embeddings
		return nil
	})
	return vecs, err
}

func isTransient(err error) bool {
	return !errors.Is(err, apperr.ErrDimensionMismatch) && !errors.Is(err, llm.ErrEmbeddingsUnsupported)
}

// CacheKey identifies an embedding by model and exact input text.
func CacheKey(model, text string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + text))
	return "emb:" + hex.EncodeToString(sum[:])
}

// lookup fills out with cached vectors and returns the cache keys, or nil
// when caching is off. Cache failures only cost a provider call.
func (s *Service) lookup(ctx context.Context, texts []string, out [][]float32) []string {
	if s.opts.Cache == nil {
		return nil
	}
	keys := make([]string, len(texts))
	for i, t := range texts {
		keys[i] = CacheKey(s.opts.Model, t)
	}

	raw, err := s.opts.Cache.GetMany(ctx, keys)
	if err != nil {
		slog.Warn("embedding cache read failed", "error", err)
		return keys
	}
	for i, b := range raw {
		if b == nil {
			continue
		}
		var v []float32
		if err := json.Unmarshal(b, &v); err != nil || (s.opts.Dimension > 0 && len(v) != s.opts.Dimension) {
			continue
		}
		out[i] = v
	}
	return keys
}

func (s *Service) store(ctx context.Context, keys []string, fresh []int, out [][]float32) {
	if keys == nil || len(fresh) == 0 {
		return
	}
	items := make(map[string]any, len(fresh))
	for _, i := range fresh {
		items[keys[i]] = out[i]
	}
	if err := s.opts.Cache.SetMany(ctx, items, s.opts.CacheTTL); err != nil {
		slog.Warn("embedding cache write failed", "error", err)
	}
}
