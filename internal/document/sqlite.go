package document

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/neuralchat/ragserver/internal/apperr"
	"github.com/neuralchat/ragserver/internal/models"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS documents (
	id           TEXT PRIMARY KEY,
	filename     TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	size_bytes   INTEGER NOT NULL DEFAULT 0,
	page_count   INTEGER NOT NULL DEFAULT 0,
	chunk_count  INTEGER NOT NULL DEFAULT 0,
	status       TEXT NOT NULL,
	ingested_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS documents_ingested_at_idx ON documents (ingested_at DESC);
`

// Fixed-width so that text ordering matches time ordering.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore keeps document records in a single local database file.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db, path: path}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Path() string {
	return s.path
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Create(ctx context.Context, doc *models.Document) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (`+documentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID.String(), doc.Filename, doc.ContentHash, doc.SizeBytes, doc.PageCount, doc.ChunkCount,
		doc.Status, doc.IngestedAt.UTC().Format(sqliteTimeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id.String())
	doc, err := scanSQLiteDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("document %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

func (s *SQLiteStore) List(ctx context.Context, limit, offset int) ([]models.Document, error) {
	limit, offset = NormalizePage(limit, offset)

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents ORDER BY ingested_at DESC, id LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	docs := []models.Document{}
	for rows.Next() {
		d, err := scanSQLiteDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, *d)
	}
	return docs, rows.Err()
}

func (s *SQLiteStore) UpdateStatus(ctx context.Context, id uuid.UUID, status string, pageCount, chunkCount int) error {
	if !models.ValidDocStatus(status) {
		return fmt.Errorf("invalid document status %q", status)
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE documents SET status = ?, page_count = ?, chunk_count = ? WHERE id = ?",
		status, pageCount, chunkCount, id.String(),
	)
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	return requireAffected(res, id)
}

func (s *SQLiteStore) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id.String())
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return requireAffected(res, id)
}

func requireAffected(res sql.Result, id uuid.UUID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return apperr.NotFound("document %s not found", id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteDocument(row rowScanner) (*models.Document, error) {
	var (
		d          models.Document
		id         string
		ingestedAt string
	)
	err := row.Scan(&id, &d.Filename, &d.ContentHash, &d.SizeBytes, &d.PageCount, &d.ChunkCount, &d.Status, &ingestedAt)
	if err != nil {
		return nil, err
	}
	if d.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse document id: %w", err)
	}
	if d.IngestedAt, err = time.Parse(sqliteTimeLayout, ingestedAt); err != nil {
		return nil, fmt.Errorf("parse ingested_at: %w", err)
	}
	return &d, nil
}
