package rag

import (
	"errors"

	"github.com/google/uuid"
	"github.com/neuralchat/ragserver/internal/apperr"
	"github.com/neuralchat/ragserver/internal/models"
	"github.com/neuralchat/ragserver/pkg/chunker"
)

// ChunkDocument splits text into chunk records owned by docID. Vectors are
// left empty. Chunker input errors are reported as Validation.
func ChunkDocument(docID uuid.UUID, text string, opts chunker.ChunkOptions) ([]models.Chunk, error) {
	seq, err := chunker.Chunk(text, opts)
	switch {
	case errors.Is(err, chunker.ErrInvalidOptions):
		return nil, err
	case err != nil:
		return nil, &apperr.Error{Kind: apperr.KindValidation, Detail: "document has no usable text", Err: err}
	}

	var chunks []models.Chunk
	for c := range seq {
		chunks = append(chunks, models.Chunk{
			ID:         uuid.New(),
			DocumentID: docID,
			Ordinal:    c.Index,
			Text:       c.Content,
			CharStart:  c.Start,
			CharEnd:    c.End,
		})
	}
	return chunks, nil
}
