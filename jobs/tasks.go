package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"github.com/ampere-erp/ampere-erp/internal/shared"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueAudit carries audit entries so bursts never delay scheduled jobs.
	QueueAudit = "audit"

	// TaskAuditRecord persists one audit entry.
	TaskAuditRecord = "audit:record"
	// TaskDelinquencyWarmup rebuilds and caches today's delinquency report.
	TaskDelinquencyWarmup = "delinquency:warmup"
	// TaskIdempotencyCleanup prunes expired idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// DefaultIdempotencyRetention is how long payment idempotency keys are kept.
const DefaultIdempotencyRetention = 72 * time.Hour

// NewAuditRecordTask wraps an audit entry for the worker.
func NewAuditRecordTask(entry shared.AuditLog) (*asynq.Task, error) {
	data, err := json.Marshal(entry)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditRecord, data, asynq.Queue(QueueAudit), asynq.MaxRetry(5)), nil
}

// DelinquencyWarmupPayload carries no options today; it exists so the cron
// entry has a stable JSON body.
type DelinquencyWarmupPayload struct {
	Reason string `json:"reason,omitempty"`
}

// NewDelinquencyWarmupTask builds the warm-up task.
func NewDelinquencyWarmupTask(reason string) (*asynq.Task, error) {
	data, err := json.Marshal(DelinquencyWarmupPayload{Reason: reason})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDelinquencyWarmup, data), nil
}

// IdempotencyCleanupPayload configures the prune horizon.
type IdempotencyCleanupPayload struct {
	RetainHours int `json:"retain_hours"`
}

// Retention returns the configured horizon or the default.
func (p IdempotencyCleanupPayload) Retention() time.Duration {
	if p.RetainHours <= 0 {
		return DefaultIdempotencyRetention
	}
	return time.Duration(p.RetainHours) * time.Hour
}

// NewIdempotencyCleanupTask builds the cleanup task.
func NewIdempotencyCleanupTask(retain time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(IdempotencyCleanupPayload{RetainHours: int(retain / time.Hour)})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data), nil
}
