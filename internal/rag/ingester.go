package rag

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/neuralchat/ragserver/internal/apperr"
	"github.com/neuralchat/ragserver/internal/document"
	"github.com/neuralchat/ragserver/internal/embedding"
	"github.com/neuralchat/ragserver/internal/keylock"
	"github.com/neuralchat/ragserver/internal/models"
	"github.com/neuralchat/ragserver/internal/vectorstore"
	"github.com/neuralchat/ragserver/pkg/chunker"
)

type IngestResult struct {
	DocumentID uuid.UUID
	Filename   string
	Pages      int
	Chunks     int
}

// Ingester turns uploaded files into searchable chunks. A document is
// marked ready only after its vectors are in the index; any failure after
// that point removes the document's vectors again and marks it failed.
// Work on one document id is serialized with deletes of the same id.
type Ingester struct {
	extractor document.TextExtractor
	docs      document.Store
	index     vectorstore.VectorStore
	embedder  embedding.Embedder
	chunking  chunker.ChunkOptions
	locks     *keylock.Locker[uuid.UUID]
	now       func() time.Time
}

func NewIngester(
	extractor document.TextExtractor,
	docs document.Store,
	index vectorstore.VectorStore,
	embedder embedding.Embedder,
	chunking chunker.ChunkOptions,
) *Ingester {
	return &Ingester{
		extractor: extractor,
		docs:      docs,
		index:     index,
		embedder:  embedder,
		chunking:  chunking,
		locks:     keylock.New[uuid.UUID](),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

type prepared struct {
	pages  int
	chunks []models.Chunk
}

// Ingest runs the whole pipeline synchronously. Extraction and chunking
// happen before any record is written, so a file that cannot be read
// leaves no trace in the document store.
func (in *Ingester) Ingest(ctx context.Context, data []byte, filename string) (*IngestResult, error) {
	docID := uuid.New()
	p, err := in.prepare(ctx, docID, data, filename)
	if err != nil {
		return nil, err
	}

	doc := in.newDocument(docID, filename, data)
	doc.PageCount = p.pages

	unlock := in.locks.Lock(doc.ID)
	defer unlock()

	if err := in.docs.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document record: %w", err)
	}
	return in.store(ctx, doc, p)
}

// Begin validates the file name and records a pending document for
// asynchronous processing by Process.
func (in *Ingester) Begin(ctx context.Context, data []byte, filename string) (*models.Document, error) {
	if err := document.CheckFilename(filename); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, apperr.Validation("uploaded file '%s' is empty", filename)
	}

	doc := in.newDocument(uuid.New(), filename, data)
	if err := in.docs.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document record: %w", err)
	}
	return doc, nil
}

// Process completes a document created by Begin. Re-running it for a
// document that is already ready is a no-op.
func (in *Ingester) Process(ctx context.Context, docID uuid.UUID, data []byte, filename string) (*IngestResult, error) {
	unlock := in.locks.Lock(docID)
	defer unlock()

	doc, err := in.docs.Get(ctx, docID)
	if err != nil {
		return nil, err
	}
	if doc.Status == models.DocStatusReady {
		return &IngestResult{DocumentID: doc.ID, Filename: doc.Filename, Pages: doc.PageCount, Chunks: doc.ChunkCount}, nil
	}

	p, err := in.prepare(ctx, docID, data, filename)
	if err != nil {
		in.markFailed(ctx, doc, 0)
		return nil, err
	}
	doc.PageCount = p.pages
	return in.store(ctx, doc, p)
}

// Delete removes a document's vectors and then its record.
func (in *Ingester) Delete(ctx context.Context, docID uuid.UUID) error {
	unlock := in.locks.Lock(docID)
	defer unlock()

	if _, err := in.docs.Get(ctx, docID); err != nil {
		return err
	}
	if err := in.index.Delete(ctx, docID); err != nil {
		return fmt.Errorf("delete document vectors: %w", err)
	}
	if err := in.docs.Delete(ctx, docID); err != nil {
		return err
	}
	slog.Info("document deleted", "document_id", docID)
	return nil
}

func (in *Ingester) prepare(ctx context.Context, docID uuid.UUID, data []byte, filename string) (*prepared, error) {
	text, err := in.extractor.Extract(ctx, data, filename)
	if err != nil {
		return nil, err
	}
	chunks, err := ChunkDocument(docID, text.Content, in.chunking)
	if err != nil {
		return nil, err
	}
	return &prepared{pages: text.Pages, chunks: chunks}, nil
}

func (in *Ingester) store(ctx context.Context, doc *models.Document, p *prepared) (*IngestResult, error) {
	log := slog.With("document_id", doc.ID, "filename", doc.Filename)

	err := in.embedAndIndex(ctx, p.chunks)
	if err == nil {
		err = in.docs.UpdateStatus(ctx, doc.ID, models.DocStatusReady, p.pages, len(p.chunks))
	}
	if err != nil {
		in.markFailed(ctx, doc, p.pages)
		log.Warn("ingestion failed", "kind", apperr.KindOf(err).String(), "error", err)
		return nil, err
	}

	log.Info("document ingested", "pages", p.pages, "chunks", len(p.chunks))
	return &IngestResult{
		DocumentID: doc.ID,
		Filename:   doc.Filename,
		Pages:      p.pages,
		Chunks:     len(p.chunks),
	}, nil
}

func (in *Ingester) embedAndIndex(ctx context.Context, chunks []models.Chunk) error {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err := in.embedder.Embed(ctx, texts)
	if err != nil {
		return err
	}
	if len(vectors) != len(chunks) {
		return apperr.EmbeddingUnavailable(fmt.Errorf("got %d vectors for %d chunks", len(vectors), len(chunks)))
	}
	for i := range chunks {
		chunks[i].Vector = vectors[i]
	}

	if err := in.index.Upsert(ctx, chunks); err != nil {
		if errors.Is(err, apperr.ErrDimensionMismatch) {
			return err
		}
		return apperr.Provider(err, "vector index write failed")
	}
	return nil
}

// markFailed removes any vectors written for doc and records the failure.
// It runs even when ctx is already cancelled.
func (in *Ingester) markFailed(ctx context.Context, doc *models.Document, pages int) {
	cleanup, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	log := slog.With("document_id", doc.ID)
	if err := in.index.Delete(cleanup, doc.ID); err != nil {
		log.Error("compensating vector delete failed", "error", err)
	}
	if err := in.docs.UpdateStatus(cleanup, doc.ID, models.DocStatusFailed, pages, 0); err != nil {
		log.Error("mark document failed", "error", err)
	}
}

func (in *Ingester) newDocument(id uuid.UUID, filename string, data []byte) *models.Document {
	sum := sha256.Sum256(data)
	return &models.Document{
		ID:          id,
		Filename:    filename,
		ContentHash: hex.EncodeToString(sum[:]),
		SizeBytes:   int64(len(data)),
		Status:      models.DocStatusPending,
		IngestedAt:  in.now(),
	}
}
