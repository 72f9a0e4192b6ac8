package document

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/neuralchat/ragserver/internal/apperr"
	"github.com/neuralchat/ragserver/internal/models"
)

const documentColumns = `id, filename, content_hash, size_bytes, page_count, chunk_count, status, ingested_at`

type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, doc *models.Document) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO documents (`+documentColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		doc.ID, doc.Filename, doc.ContentHash, doc.SizeBytes, doc.PageCount, doc.ChunkCount, doc.Status, doc.IngestedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	row := s.db.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("document %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

func (s *PostgresStore) List(ctx context.Context, limit, offset int) ([]models.Document, error) {
	limit, offset = NormalizePage(limit, offset)

	rows, err := s.db.Query(ctx,
		`SELECT `+documentColumns+` FROM documents ORDER BY ingested_at DESC, id LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	docs := []models.Document{}
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, *d)
	}
	return docs, rows.Err()
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, id uuid.UUID, status string, pageCount, chunkCount int) error {
	if !models.ValidDocStatus(status) {
		return fmt.Errorf("invalid document status %q", status)
	}
	tag, err := s.db.Exec(ctx,
		"UPDATE documents SET status = $1, page_count = $2, chunk_count = $3 WHERE id = $4",
		status, pageCount, chunkCount, id,
	)
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("document %s not found", id)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, "DELETE FROM documents WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("document %s not found", id)
	}
	return nil
}

func scanDocument(row pgx.Row) (*models.Document, error) {
	var d models.Document
	err := row.Scan(&d.ID, &d.Filename, &d.ContentHash, &d.SizeBytes, &d.PageCount, &d.ChunkCount, &d.Status, &d.IngestedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
