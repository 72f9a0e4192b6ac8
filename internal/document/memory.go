package document

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/neuralchat/ragserver/internal/apperr"
	"github.com/neuralchat/ragserver/internal/models"
)

type MemoryStore struct {
	mu   sync.RWMutex
	docs map[uuid.UUID]models.Document
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[uuid.UUID]models.Document)}
}

func (s *MemoryStore) Create(ctx context.Context, doc *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.docs[doc.ID]; ok {
		return fmt.Errorf("document %s already exists", doc.ID)
	}
	s.docs[doc.ID] = *doc
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[id]
	if !ok {
		return nil, apperr.NotFound("document %s not found", id)
	}
	return &doc, nil
}

func (s *MemoryStore) List(ctx context.Context, limit, offset int) ([]models.Document, error) {
	limit, offset = NormalizePage(limit, offset)

	s.mu.RLock()
	docs := make([]models.Document, 0, len(s.docs))
	for _, d := range s.docs {
		docs = append(docs, d)
	}
	s.mu.RUnlock()

	sort.Slice(docs, func(i, j int) bool {
		if !docs[i].IngestedAt.Equal(docs[j].IngestedAt) {
			return docs[i].IngestedAt.After(docs[j].IngestedAt)
		}
		return docs[i].ID.String() < docs[j].ID.String()
	})

	if offset >= len(docs) {
		return []models.Document{}, nil
	}
	end := min(offset+limit, len(docs))
	return docs[offset:end], nil
}

func (s *MemoryStore) UpdateStatus(ctx context.Context, id uuid.UUID, status string, pageCount, chunkCount int) error {
	if !models.ValidDocStatus(status) {
		return fmt.Errorf("invalid document status %q", status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[id]
	if !ok {
		return apperr.NotFound("document %s not found", id)
	}
	doc.Status = status
	doc.PageCount = pageCount
	doc.ChunkCount = chunkCount
	s.docs[id] = doc
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.docs[id]; !ok {
		return apperr.NotFound("document %s not found", id)
	}
	delete(s.docs, id)
	return nil
}
