package workers

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/neuralchat/ragserver/internal/apperr"
	"github.com/neuralchat/ragserver/internal/queue"
	"github.com/neuralchat/ragserver/internal/rag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProcessor struct {
	calls   int
	gotID   uuid.UUID
	gotData []byte
	gotName string
	err     error
}

func (f *fakeProcessor) Process(ctx context.Context, id uuid.UUID, data []byte, filename string) (*rag.IngestResult, error) {
	f.calls++
	f.gotID, f.gotData, f.gotName = id, data, filename
	if f.err != nil {
		return nil, f.err
	}
	return &rag.IngestResult{DocumentID: id, Filename: filename, Pages: 1, Chunks: 2}, nil
}

func ingestTask(t *testing.T, id, filename string, data []byte) *asynq.Task {
	t.Helper()
	task, err := queue.NewDocumentIngestTask(queue.DocumentIngestPayload{DocumentID: id, Filename: filename, Data: data})
	require.NoError(t, err)
	return task
}

func TestIngestWorker_Success(t *testing.T) {
	p := &fakeProcessor{}
	w := NewIngestWorker(p)
	id := uuid.New()

	err := w.ProcessTask(context.Background(), ingestTask(t, id.String(), "notes.txt", []byte("hello")))
	require.NoError(t, err)
	assert.Equal(t, 1, p.calls)
	assert.Equal(t, id, p.gotID)
	assert.Equal(t, []byte("hello"), p.gotData)
	assert.Equal(t, "notes.txt", p.gotName)
}

func TestIngestWorker_PermanentFailuresSkipRetry(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"not found", apperr.NotFound("document gone")},
		{"validation", apperr.Validation("no extractable text")},
		{"unsupported", apperr.UnsupportedFormat("Unsupported file type '.png'")},
		{"dimension", apperr.DimensionMismatch(3, 4)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewIngestWorker(&fakeProcessor{err: tt.err})
			err := w.ProcessTask(context.Background(), ingestTask(t, uuid.NewString(), "a.txt", []byte("x")))
			assert.ErrorIs(t, err, asynq.SkipRetry)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestIngestWorker_TransientFailureRetries(t *testing.T) {
	w := NewIngestWorker(&fakeProcessor{err: apperr.EmbeddingUnavailable(errors.New("refused"))})
	err := w.ProcessTask(context.Background(), ingestTask(t, uuid.NewString(), "a.txt", []byte("x")))
	require.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
	assert.ErrorIs(t, err, apperr.ErrEmbeddingUnavailable)
}

func TestIngestWorker_BadPayload(t *testing.T) {
	p := &fakeProcessor{}
	w := NewIngestWorker(p)

	err := w.ProcessTask(context.Background(), asynq.NewTask(queue.TypeDocumentIngest, []byte("{not json")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	err = w.ProcessTask(context.Background(), ingestTask(t, "not-a-uuid", "a.txt", []byte("x")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Zero(t, p.calls)
}
