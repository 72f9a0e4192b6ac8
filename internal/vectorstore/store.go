package vectorstore

import (
	"context"
	"math"

	"github.com/google/uuid"
	"github.com/neuralchat/ragserver/internal/apperr"
	"github.com/neuralchat/ragserver/internal/models"
)

type SearchOptions struct {
	TopK     int
	MinScore float64
}

type SearchResult struct {
	ChunkID    uuid.UUID `json:"chunk_id"`
	DocumentID uuid.UUID `json:"document_id"`
	Ordinal    int       `json:"ordinal"`
	Content    string    `json:"content"`
	Score      float64   `json:"score"`
}

// VectorStore holds chunk vectors for cosine similarity search.
//
// Upserted chunks are searchable as soon as Upsert returns. Results are
// ordered by descending score with ties broken by (document id, ordinal)
// ascending, and hold at most TopK entries scoring at least MinScore.
// Vectors with zero norm never match. Delete removes every chunk of a
// document and succeeds when there is nothing to remove.
type VectorStore interface {
	Upsert(ctx context.Context, chunks []models.Chunk) error
	SimilaritySearch(ctx context.Context, query []float32, opts SearchOptions) ([]SearchResult, error)
	Delete(ctx context.Context, documentID uuid.UUID) error
	Dimension() int
}

// CheckDimensions fails with a DimensionMismatch error on the first chunk
// whose vector length differs from dim.
func CheckDimensions(dim int, chunks []models.Chunk) error {
	for _, c := range chunks {
		if len(c.Vector) != dim {
			return apperr.DimensionMismatch(dim, len(c.Vector))
		}
	}
	return nil
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}
