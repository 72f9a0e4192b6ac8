package vectorstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/neuralchat/ragserver/internal/apperr"
	"github.com/neuralchat/ragserver/internal/models"
	"github.com/pgvector/pgvector-go"
)

type PgVectorStore struct {
	db  *pgxpool.Pool
	dim int
}

func NewPgVectorStore(db *pgxpool.Pool, dim int) *PgVectorStore {
	return &PgVectorStore{db: db, dim: dim}
}

func (s *PgVectorStore) Dimension() int { return s.dim }

// Upsert writes all chunks in one transaction, so a batch is either fully
// searchable or not at all.
func (s *PgVectorStore) Upsert(ctx context.Context, chunks []models.Chunk) error {
	if err := CheckDimensions(s.dim, chunks); err != nil {
		return err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, c := range chunks {
		id := c.ID
		if id == uuid.Nil {
			id = uuid.New()
		}

		embedding := pgvector.NewVector(c.Vector)

		_, err := tx.Exec(ctx,
			`INSERT INTO chunks (id, document_id, ordinal, content, embedding, char_start, char_end)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 ON CONFLICT (document_id, ordinal) DO UPDATE
			 SET id = $1, content = $4, embedding = $5, char_start = $6, char_end = $7`,
			id, c.DocumentID, c.Ordinal, c.Text, embedding, c.CharStart, c.CharEnd,
		)
		if err != nil {
			return fmt.Errorf("upsert chunk %d: %w", c.Ordinal, err)
		}
	}

	return tx.Commit(ctx)
}

func (s *PgVectorStore) SimilaritySearch(ctx context.Context, query []float32, opts SearchOptions) ([]SearchResult, error) {
	if len(query) != s.dim {
		return nil, apperr.DimensionMismatch(s.dim, len(query))
	}
	results := []SearchResult{}
	if opts.TopK <= 0 || norm(query) == 0 {
		return results, nil
	}

	embedding := pgvector.NewVector(query)

	// Zero-norm rows are excluded explicitly: their cosine distance is NaN,
	// which Postgres orders above every number.
	rows, err := s.db.Query(ctx,
		`SELECT id, document_id, ordinal, content, score FROM (
			SELECT id, document_id, ordinal, content,
			       1 - (embedding <=> $1) AS score
			FROM chunks
			WHERE vector_norm(embedding) > 0
		) scored
		WHERE score >= $2
		ORDER BY score DESC, document_id, ordinal
		LIMIT $3`,
		embedding, opts.MinScore, opts.TopK,
	)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.ChunkID, &r.DocumentID, &r.Ordinal, &r.Content, &r.Score); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func (s *PgVectorStore) Delete(ctx context.Context, documentID uuid.UUID) error {
	_, err := s.db.Exec(ctx, "DELETE FROM chunks WHERE document_id = $1", documentID)
	if err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	return nil
}
