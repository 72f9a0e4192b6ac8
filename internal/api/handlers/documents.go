package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/neuralchat/ragserver/internal/apperr"
	"github.com/neuralchat/ragserver/internal/document"
	"github.com/neuralchat/ragserver/internal/queue"
	"github.com/neuralchat/ragserver/internal/rag"
)

// Enqueuer hands a pending document to the worker pool.
type Enqueuer interface {
	EnqueueDocumentIngest(ctx context.Context, p queue.DocumentIngestPayload) error
}

type DocumentHandler struct {
	ingester  *rag.Ingester
	docs      document.Store
	queue     Enqueuer
	maxUpload int64
}

// NewDocumentHandler builds the ingestion and document endpoints. A nil
// queue disables ?async=true.
func NewDocumentHandler(ingester *rag.Ingester, docs document.Store, q Enqueuer, maxUpload int64) *DocumentHandler {
	if maxUpload <= 0 {
		maxUpload = 32 << 20
	}
	return &DocumentHandler{ingester: ingester, docs: docs, queue: q, maxUpload: maxUpload}
}

type ingestResponse struct {
	Status     string `json:"status"`
	Filename   string `json:"filename"`
	DocumentID string `json:"document_id"`
	Pages      int    `json:"pages"`
	Chunks     int    `json:"chunks"`
	Message    string `json:"message"`
}

func (h *DocumentHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	data, filename, err := h.readUpload(w, r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{
				"detail": fmt.Sprintf("File exceeds the %d byte upload limit.", h.maxUpload),
			})
			return
		}
		writeError(w, r, err)
		return
	}

	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
		h.ingestAsync(w, r, data, filename)
		return
	}

	res, err := h.ingester.Ingest(r.Context(), data, filename)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ingestResponse{
		Status:     "success",
		Filename:   res.Filename,
		DocumentID: res.DocumentID.String(),
		Pages:      res.Pages,
		Chunks:     res.Chunks,
		Message:    fmt.Sprintf("Successfully ingested '%s' (%d chunks).", res.Filename, res.Chunks),
	})
}

func (h *DocumentHandler) ingestAsync(w http.ResponseWriter, r *http.Request, data []byte, filename string) {
	if h.queue == nil {
		writeError(w, r, apperr.Validation("asynchronous ingestion is not configured"))
		return
	}

	doc, err := h.ingester.Begin(r.Context(), data, filename)
	if err != nil {
		writeError(w, r, err)
		return
	}

	err = h.queue.EnqueueDocumentIngest(r.Context(), queue.DocumentIngestPayload{
		DocumentID: doc.ID.String(),
		Filename:   filename,
		Data:       data,
	})
	if err != nil {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 10*time.Second)
		defer cancel()
		if delErr := h.ingester.Delete(ctx, doc.ID); delErr != nil {
			slog.Error("remove unqueued document", "document_id", doc.ID, "error", delErr)
		}
		writeError(w, r, apperr.Provider(err, "could not queue '%s' for ingestion", filename))
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":      "queued",
		"filename":    filename,
		"document_id": doc.ID.String(),
		"message":     fmt.Sprintf("'%s' queued for ingestion.", filename),
	})
}

// readUpload returns the bytes of the multipart field "file". The extension
// is checked before the body is read.
func (h *DocumentHandler) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, "", err
		}
		return nil, "", apperr.Validation("invalid multipart form")
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, "", apperr.Validation("No file uploaded. Send it in the 'file' form field.")
	}
	defer file.Close()

	if err := document.CheckFilename(header.Filename); err != nil {
		return nil, "", err
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, "", fmt.Errorf("read upload: %w", err)
	}
	return data, header.Filename, nil
}

func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	docs, err := h.docs.List(r.Context(), limit, offset)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs, "count": len(docs)})
}

func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := documentID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	doc, err := h.docs.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := documentID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.ingester.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "document_id": id.String()})
}

func documentID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, apperr.Validation("invalid document ID")
	}
	return id, nil
}
