package queue

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const TypeDocumentIngest = "document:ingest"

// DocumentIngestPayload carries the uploaded bytes, so a worker needs no
// shared file system with the API process.
type DocumentIngestPayload struct {
	DocumentID string `json:"document_id"`
	Filename   string `json:"filename"`
	Data       []byte `json:"data"`
}

func NewDocumentIngestTask(p DocumentIngestPayload) (*asynq.Task, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return asynq.NewTask(TypeDocumentIngest, data), nil
}

func ParseDocumentIngestPayload(t *asynq.Task) (DocumentIngestPayload, error) {
	var p DocumentIngestPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return p, fmt.Errorf("unmarshal %s payload: %w", t.Type(), err)
	}
	return p, nil
}
