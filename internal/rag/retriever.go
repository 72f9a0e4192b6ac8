package rag

import (
	"context"
	"errors"

	"github.com/neuralchat/ragserver/internal/apperr"
	"github.com/neuralchat/ragserver/internal/embedding"
	"github.com/neuralchat/ragserver/internal/retry"
	"github.com/neuralchat/ragserver/internal/vectorstore"
)

type RetrieverOptions struct {
	DefaultK        int
	MaxK            int
	DefaultMinScore float64
	// Search governs vector index calls. Embedding retries are handled by
	// the embedder itself.
	Search retry.Policy
}

type Retriever struct {
	store    vectorstore.VectorStore
	embedder embedding.Embedder
	opts     RetrieverOptions
}

func NewRetriever(store vectorstore.VectorStore, embedder embedding.Embedder, opts RetrieverOptions) *Retriever {
	if opts.DefaultK <= 0 {
		opts.DefaultK = 4
	}
	if opts.MaxK < opts.DefaultK {
		opts.MaxK = max(20, opts.DefaultK)
	}
	if opts.Search.Name == "" {
		opts.Search.Name = "vector search"
	}
	if opts.Search.Retryable == nil {
		opts.Search.Retryable = func(err error) bool { return !errors.Is(err, apperr.ErrDimensionMismatch) }
	}
	return &Retriever{store: store, embedder: embedder, opts: opts}
}

// RetrieveOptions carries caller overrides. Zero TopK and nil MinScore use
// the configured defaults.
type RetrieveOptions struct {
	TopK     int
	MinScore *float64
}

// ClampK applies the default and the hard upper bound to a requested K.
func (r *Retriever) ClampK(k int) int {
	if k <= 0 {
		return r.opts.DefaultK
	}
	return min(k, r.opts.MaxK)
}

func (r *Retriever) minScore(override *float64) float64 {
	if override != nil {
		return *override
	}
	return r.opts.DefaultMinScore
}

func (r *Retriever) Retrieve(ctx context.Context, query string, opts RetrieveOptions) ([]vectorstore.SearchResult, error) {
	vec, err := r.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	return r.Search(ctx, vec, opts)
}

// EmbedQuery returns the query vector. Embedder errors arrive classified
// (EmbeddingUnavailable, DimensionMismatch); an expired deadline becomes
// EmbeddingUnavailable. A cancelled context is returned as is.
func (r *Retriever) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	vec, err := r.embedder.EmbedSingle(ctx, query)
	if err != nil && apperr.KindOf(err) == apperr.KindUnknown && deadlineExpired(ctx, err) {
		return nil, apperr.EmbeddingTimeout(err)
	}
	return vec, err
}

func deadlineExpired(ctx context.Context, err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded)
}

// Search queries the index under the search retry policy. Failures that
// outlive the retries become Provider errors.
func (r *Retriever) Search(ctx context.Context, vec []float32, opts RetrieveOptions) ([]vectorstore.SearchResult, error) {
	searchOpts := vectorstore.SearchOptions{
		TopK:     r.ClampK(opts.TopK),
		MinScore: r.minScore(opts.MinScore),
	}

	var results []vectorstore.SearchResult
	err := retry.Do(ctx, r.opts.Search, func(ctx context.Context) error {
		var err error
		results, err = r.store.SimilaritySearch(ctx, vec, searchOpts)
		return err
	})
	switch {
	case err == nil:
		return results, nil
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return nil, apperr.Provider(err, "vector search did not respond in time")
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case errors.Is(err, apperr.ErrDimensionMismatch):
		return nil, err
	default:
		return nil, apperr.Provider(err, "vector search failed")
	}
}
