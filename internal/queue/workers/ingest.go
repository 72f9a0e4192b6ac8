package workers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/neuralchat/ragserver/internal/apperr"
	"github.com/neuralchat/ragserver/internal/queue"
	"github.com/neuralchat/ragserver/internal/rag"
)

// Processor completes a pending document. *rag.Ingester satisfies it.
type Processor interface {
	Process(ctx context.Context, docID uuid.UUID, data []byte, filename string) (*rag.IngestResult, error)
}

type IngestWorker struct {
	processor Processor
}

func NewIngestWorker(p Processor) *IngestWorker {
	return &IngestWorker{processor: p}
}

// ProcessTask runs one document:ingest job. Failures that another attempt
// cannot fix are returned wrapped in asynq.SkipRetry.
func (w *IngestWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	payload, err := queue.ParseDocumentIngestPayload(t)
	if err != nil {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	docID, err := uuid.Parse(payload.DocumentID)
	if err != nil {
		return fmt.Errorf("parse document ID: %w: %w", err, asynq.SkipRetry)
	}

	log := slog.With("document_id", docID, "filename", payload.Filename)
	if retried, ok := asynq.GetRetryCount(ctx); ok && retried > 0 {
		log = log.With("retry", retried)
	}
	log.Info("processing document")

	res, err := w.processor.Process(ctx, docID, payload.Data, payload.Filename)
	if err != nil {
		if permanent(err) {
			log.Warn("document rejected", "kind", apperr.KindOf(err).String(), "error", err)
			return fmt.Errorf("ingest %s: %w: %w", docID, err, asynq.SkipRetry)
		}
		return fmt.Errorf("ingest %s: %w", docID, err)
	}

	log.Info("document processed", "pages", res.Pages, "chunks", res.Chunks)
	return nil
}

func permanent(err error) bool {
	for _, target := range []error{
		apperr.ErrNotFound,
		apperr.ErrValidation,
		apperr.ErrUnsupportedFormat,
		apperr.ErrDimensionMismatch,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
