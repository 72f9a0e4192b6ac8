package models

import (
	"time"

	"github.com/google/uuid"
)

type Document struct {
	ID          uuid.UUID `json:"id" db:"id"`
	Filename    string    `json:"filename" db:"filename"`
	ContentHash string    `json:"content_hash" db:"content_hash"`
	SizeBytes   int64     `json:"size_bytes" db:"size_bytes"`
	PageCount   int       `json:"pages" db:"page_count"`
	ChunkCount  int       `json:"chunks" db:"chunk_count"`
	Status      string    `json:"status" db:"status"`
	IngestedAt  time.Time `json:"ingested_at" db:"ingested_at"`
}

// Chunk is a span of a document's extracted text. Vector is set before the
// chunk is written to the vector index and never serialized to callers.
type Chunk struct {
	ID         uuid.UUID `json:"id" db:"id"`
	DocumentID uuid.UUID `json:"document_id" db:"document_id"`
	Ordinal    int       `json:"ordinal" db:"ordinal"`
	Text       string    `json:"content" db:"content"`
	Vector     []float32 `json:"-" db:"embedding"`
	CharStart  int       `json:"char_start" db:"char_start"`
	CharEnd    int       `json:"char_end" db:"char_end"`
}

const (
	DocStatusPending = "pending"
	DocStatusReady   = "ready"
	DocStatusFailed  = "failed"
)

// ValidDocStatus reports whether s is one of the document lifecycle states.
func ValidDocStatus(s string) bool {
	switch s {
	case DocStatusPending, DocStatusReady, DocStatusFailed:
		return true
	}
	return false
}
