// Package worker runs background jobs: export uploads to S3 and the
// periodic retention sweep.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pollboard/backend/internal/export"
	"github.com/pollboard/backend/internal/models"
	"github.com/pollboard/backend/pkg/queue"
	"github.com/pollboard/backend/pkg/storage"
)

// PollGetter loads a poll for its guild id when building the S3 key.
type PollGetter interface {
	GetByID(ctx context.Context, id string) (*models.Poll, error)
}

// ExportProcessor processes export upload jobs: build the CSV from the
// ledger, upload it to S3.
type ExportProcessor struct {
	polls   PollGetter
	builder *export.Builder
	s3      *storage.S3
	queue   *queue.Queue
	logger  *zap.Logger
}

// NewExportProcessor creates an export upload processor.
func NewExportProcessor(polls PollGetter, builder *export.Builder, s3 *storage.S3, q *queue.Queue, logger *zap.Logger) *ExportProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportProcessor{polls: polls, builder: builder, s3: s3, queue: q, logger: logger}
}

// Process executes one export upload job.
func (p *ExportProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeExportUpload {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.ExportUploadPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	poll, err := p.polls.GetByID(ctx, payload.PollID)
	if err != nil {
		return fmt.Errorf("load poll: %w", err)
	}
	exp, err := p.builder.Build(ctx, payload.PollID)
	if err != nil {
		return fmt.Errorf("build export: %w", err)
	}

	var buf bytes.Buffer
	if err := exp.WriteCSV(&buf); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}

	key := storage.ExportKey(poll.GuildID, poll.ID, exp.Filename)
	if _, err := p.s3.UploadExport(ctx, key, &buf); err != nil {
		return fmt.Errorf("s3 upload: %w", err)
	}

	p.logger.Info("export upload completed",
		zap.String("poll_id", payload.PollID),
		zap.String("s3_key", key),
		zap.Int64("total_votes", exp.TotalVotes))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *ExportProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("export worker stopping")
			return
		default:
		}

		job, _, err := p.queue.Dequeue(ctx)
		if err != nil {
			p.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			time.Sleep(queue.RetryBackoff)
			continue
		}
	}
}
