package document

import (
	"context"

	"github.com/google/uuid"
	"github.com/neuralchat/ragserver/internal/models"
)

// Store persists document records. Implementations are safe for concurrent
// use. Get, UpdateStatus and Delete return an apperr NotFound error for
// unknown ids.
type Store interface {
	Create(ctx context.Context, doc *models.Document) error
	Get(ctx context.Context, id uuid.UUID) (*models.Document, error)
	List(ctx context.Context, limit, offset int) ([]models.Document, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string, pageCount, chunkCount int) error
	Delete(ctx context.Context, id uuid.UUID) error
}

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// NormalizePage clamps list paging arguments to sane bounds.
func NormalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
