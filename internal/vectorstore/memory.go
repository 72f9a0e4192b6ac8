package vectorstore

import (
	"bytes"
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/neuralchat/ragserver/internal/apperr"
	"github.com/neuralchat/ragserver/internal/models"
)

type entry struct {
	chunk models.Chunk
	norm  float64
}

// MemoryStore is an exact, brute-force index kept in process memory.
type MemoryStore struct {
	dim int

	mu    sync.RWMutex
	byDoc map[uuid.UUID]map[int]entry
}

func NewMemoryStore(dim int) *MemoryStore {
	return &MemoryStore{dim: dim, byDoc: make(map[uuid.UUID]map[int]entry)}
}

func (s *MemoryStore) Dimension() int { return s.dim }

func (s *MemoryStore) Upsert(ctx context.Context, chunks []models.Chunk) error {
	if err := CheckDimensions(s.dim, chunks); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range chunks {
		if c.ID == uuid.Nil {
			c.ID = uuid.New()
		}
		c.Vector = slices.Clone(c.Vector)

		doc, ok := s.byDoc[c.DocumentID]
		if !ok {
			doc = make(map[int]entry)
			s.byDoc[c.DocumentID] = doc
		}
		doc[c.Ordinal] = entry{chunk: c, norm: norm(c.Vector)}
	}
	return nil
}

func (s *MemoryStore) SimilaritySearch(ctx context.Context, query []float32, opts SearchOptions) ([]SearchResult, error) {
	if len(query) != s.dim {
		return nil, apperr.DimensionMismatch(s.dim, len(query))
	}
	results := []SearchResult{}
	qn := norm(query)
	if opts.TopK <= 0 || qn == 0 {
		return results, nil
	}

	s.mu.RLock()
	for _, doc := range s.byDoc {
		for _, e := range doc {
			if e.norm == 0 {
				continue
			}
			score := dot(query, e.chunk.Vector) / (qn * e.norm)
			if score < opts.MinScore {
				continue
			}
			results = append(results, SearchResult{
				ChunkID:    e.chunk.ID,
				DocumentID: e.chunk.DocumentID,
				Ordinal:    e.chunk.Ordinal,
				Content:    e.chunk.Text,
				Score:      score,
			})
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(results, compareResults)
	if len(results) > opts.TopK {
		results = results[:opts.TopK]
	}
	return results, nil
}

func (s *MemoryStore) Delete(ctx context.Context, documentID uuid.UUID) error {
	s.mu.Lock()
	delete(s.byDoc, documentID)
	s.mu.Unlock()
	return nil
}

// Len returns the number of chunks stored for documentID.
func (s *MemoryStore) Len(documentID uuid.UUID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byDoc[documentID])
}

func compareResults(a, b SearchResult) int {
	if c := cmp.Compare(b.Score, a.Score); c != 0 {
		return c
	}
	if c := bytes.Compare(a.DocumentID[:], b.DocumentID[:]); c != 0 {
		return c
	}
	return cmp.Compare(a.Ordinal, b.Ordinal)
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
