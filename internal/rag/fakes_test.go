package rag

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"sync"
	"unicode"

	"github.com/google/uuid"
	"github.com/neuralchat/ragserver/internal/apperr"
	"github.com/neuralchat/ragserver/internal/document"
	"github.com/neuralchat/ragserver/internal/llm"
	"github.com/neuralchat/ragserver/internal/models"
	"github.com/neuralchat/ragserver/internal/vectorstore"
	"github.com/neuralchat/ragserver/pkg/chunker"
)

const testDim = 64

// bagEmbedder hashes lowercase words into testDim buckets, so texts that
// share words have high cosine similarity. With block set every call waits
// for its context to end.
type bagEmbedder struct {
	mu    sync.Mutex
	calls int
	dim   int
	err   error
	block bool
}

func (b *bagEmbedder) Dimension() int { return b.dim }

func (b *bagEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	b.mu.Lock()
	b.calls++
	err, block := b.err, b.block
	b.mu.Unlock()
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}

	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, b.dim)
		for _, w := range strings.FieldsFunc(strings.ToLower(t), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		}) {
			h := fnv.New32a()
			h.Write([]byte(w))
			v[h.Sum32()%uint32(b.dim)]++
		}
		out[i] = v
	}
	return out, nil
}

func (b *bagEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	vecs, err := b.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (b *bagEmbedder) Calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

// countingIndex wraps the in-memory index with call counters and injected
// failures.
type countingIndex struct {
	*vectorstore.MemoryStore

	mu          sync.Mutex
	searchCalls int
	upsertCalls int
	deleteCalls int
	searchErr   error
	upsertErr   error
	stall       bool
}

func newCountingIndex() *countingIndex {
	return &countingIndex{MemoryStore: vectorstore.NewMemoryStore(testDim)}
}

func (c *countingIndex) SimilaritySearch(ctx context.Context, q []float32, opts vectorstore.SearchOptions) ([]vectorstore.SearchResult, error) {
	c.mu.Lock()
	c.searchCalls++
	err, stall := c.searchErr, c.stall
	c.mu.Unlock()
	if stall {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	return c.MemoryStore.SimilaritySearch(ctx, q, opts)
}

func (c *countingIndex) Upsert(ctx context.Context, chunks []models.Chunk) error {
	c.mu.Lock()
	c.upsertCalls++
	err := c.upsertErr
	c.mu.Unlock()
	if err != nil {
		return err
	}
	return c.MemoryStore.Upsert(ctx, chunks)
}

func (c *countingIndex) Delete(ctx context.Context, id uuid.UUID) error {
	c.mu.Lock()
	c.deleteCalls++
	c.mu.Unlock()
	return c.MemoryStore.Delete(ctx, id)
}

func (c *countingIndex) SearchCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.searchCalls
}

// chatGateway answers every chat with reply, or blocks until the context
// ends when block is set.
type chatGateway struct {
	mu       sync.Mutex
	calls    int
	requests []llm.ChatRequest
	reply    string
	err      error
	block    bool
}

func (g *chatGateway) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	g.mu.Lock()
	g.calls++
	g.requests = append(g.requests, req)
	g.mu.Unlock()

	if g.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if g.err != nil {
		return nil, g.err
	}
	return &llm.ChatResponse{Content: g.reply, Model: "test-model"}, nil
}

func (g *chatGateway) Embed(context.Context, llm.EmbeddingRequest) (*llm.EmbeddingResponse, error) {
	return nil, errors.New("not used")
}
func (g *chatGateway) Provider(string) (llm.Provider, error) { return nil, errors.New("not used") }
func (g *chatGateway) ListModels() []llm.ModelInfo           { return nil }

func (g *chatGateway) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func (g *chatGateway) LastPrompt() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	msgs := g.requests[len(g.requests)-1].Messages
	return msgs[len(msgs)-1].Content
}

type harness struct {
	embedder *bagEmbedder
	index    *countingIndex
	docs     *document.MemoryStore
	gateway  *chatGateway
	ingester *Ingester
	orch     *Orchestrator
}

func newHarness() *harness {
	h := &harness{
		embedder: &bagEmbedder{dim: testDim},
		index:    newCountingIndex(),
		docs:     document.NewMemoryStore(),
		gateway:  &chatGateway{reply: "Paris"},
	}
	retriever := NewRetriever(h.index, h.embedder, RetrieverOptions{DefaultK: 4, MaxK: 20, DefaultMinScore: 0.2})
	h.orch = NewOrchestrator(retriever, h.gateway, OrchestratorOptions{Model: "test-model", BudgetChars: 8000})
	h.ingester = NewIngester(document.NewTextExtractor(), h.docs, h.index, h.embedder, chunker.DefaultOptions())
	return h
}

var errUnavailable = apperr.EmbeddingUnavailable(errors.New("connection refused"))
