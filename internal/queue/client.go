package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/neuralchat/ragserver/internal/config"
)

const (
	QueueIngest = "ingest"

	ingestMaxRetry = 3
	ingestTimeout  = 10 * time.Minute
)

type Client struct {
	client *asynq.Client
}

func RedisOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

func NewClient(cfg config.RedisConfig) *Client {
	return &Client{client: asynq.NewClient(RedisOpt(cfg))}
}

func (c *Client) Close() error {
	return c.client.Close()
}

// EnqueueDocumentIngest schedules processing of a pending document. The
// document id doubles as the task id, so enqueueing the same document twice
// is harmless.
func (c *Client) EnqueueDocumentIngest(ctx context.Context, p DocumentIngestPayload) error {
	task, err := NewDocumentIngestTask(p)
	if err != nil {
		return err
	}
	info, err := c.client.EnqueueContext(ctx, task,
		asynq.Queue(QueueIngest),
		asynq.TaskID(p.DocumentID),
		asynq.MaxRetry(ingestMaxRetry),
		asynq.Timeout(ingestTimeout),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		slog.Info("ingest task already queued", "document_id", p.DocumentID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", TypeDocumentIngest, err)
	}
	slog.Debug("ingest task queued", "document_id", p.DocumentID, "task_id", info.ID, "queue", info.Queue)
	return nil
}
