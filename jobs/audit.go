package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/ampere-erp/ampere-erp/internal/jobs"
	"github.com/ampere-erp/ampere-erp/internal/shared"
)

// AuditWriter persists an audit entry.
type AuditWriter interface {
	Write(ctx context.Context, log shared.AuditLog) error
}

// TaskEnqueuer is satisfied by *asynq.Client.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// AuditDispatcher implements shared.AuditSink by queueing entries for the
// worker, writing them directly when the queue is unreachable.
type AuditDispatcher struct {
	queue   TaskEnqueuer
	writer  AuditWriter
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
	timeout time.Duration
}

// NewAuditDispatcher builds the sink. queue may be nil, in which case every
// entry goes straight to writer.
func NewAuditDispatcher(queue TaskEnqueuer, writer AuditWriter, logger *slog.Logger, metrics *jobmetrics.Metrics) *AuditDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditDispatcher{queue: queue, writer: writer, logger: logger, metrics: metrics, timeout: 2 * time.Second}
}

// Record implements shared.AuditSink. Failures are logged, never returned.
func (d *AuditDispatcher) Record(ctx context.Context, entry shared.AuditLog) {
	if d == nil {
		return
	}
	if err := entry.Validate(); err != nil {
		d.logger.Warn("audit entry dropped", slog.String("action", entry.Action), slog.Any("error", err))
		return
	}
	if entry.At.IsZero() {
		entry.At = time.Now().UTC()
	}
	// The request may finish before the entry is stored.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()

	if d.queue != nil {
		task, err := NewAuditRecordTask(entry)
		if err == nil {
			if _, err = d.queue.EnqueueContext(ctx, task); err == nil {
				return
			}
		}
		d.logger.Warn("audit enqueue failed, writing directly", slog.String("action", entry.Action), slog.Any("error", err))
	}
	if d.writer == nil {
		d.logger.Error("audit entry lost", slog.String("action", entry.Action), slog.String("entity", entry.Entity))
		return
	}
	if err := d.writer.Write(ctx, entry); err != nil {
		d.logger.Error("audit write failed", slog.String("action", entry.Action), slog.Any("error", err))
		return
	}
	d.metrics.AuditDelivered("direct")
}

// AuditPersistJob stores queued audit entries.
type AuditPersistJob struct {
	Writer  AuditWriter
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewAuditPersistJob wires the worker side of the audit sink.
func NewAuditPersistJob(writer AuditWriter, logger *slog.Logger, metrics *jobmetrics.Metrics) *AuditPersistJob {
	return &AuditPersistJob{Writer: writer, Logger: logger, Metrics: metrics}
}

// Handle processes TaskAuditRecord tasks.
func (j *AuditPersistJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Writer == nil {
		return errors.New("audit persist: handler not configured")
	}
	var entry shared.AuditLog
	if err := json.Unmarshal(t.Payload(), &entry); err != nil {
		return fmt.Errorf("decode audit entry: %v: %w", err, asynq.SkipRetry)
	}
	if err := entry.Validate(); err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	if err := j.Writer.Write(ctx, entry); err != nil {
		logger(j.Logger, TaskAuditRecord).Warn("persist audit entry", slog.String("action", entry.Action), slog.Any("error", err))
		return err
	}
	j.Metrics.AuditDelivered("queued")
	return nil
}

func logger(base *slog.Logger, job string) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	return base.With(slog.String("job", job))
}
