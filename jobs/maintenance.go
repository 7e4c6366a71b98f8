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
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// ReportWarmer rebuilds a cached report.
type ReportWarmer interface {
	Warm(ctx context.Context) error
}

// DelinquencyWarmupJob pre-populates the delinquency report cache.
type DelinquencyWarmupJob struct {
	Reports ReportWarmer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	Timeout time.Duration
}

// NewDelinquencyWarmupJob wires dependencies for the warm-up handler.
func NewDelinquencyWarmupJob(reports ReportWarmer, logger *slog.Logger, metrics *jobmetrics.Metrics) *DelinquencyWarmupJob {
	return &DelinquencyWarmupJob{Reports: reports, Logger: logger, Metrics: metrics, Timeout: time.Minute}
}

// Handle processes TaskDelinquencyWarmup tasks.
func (j *DelinquencyWarmupJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Reports == nil {
		return errors.New("delinquency warmup: handler not configured")
	}
	var payload DelinquencyWarmupPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("decode warmup payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	tracker := metricsOrDefault(j.Metrics).Track("delinquency_warmup")
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	log := logger(j.Logger, TaskDelinquencyWarmup)
	start := time.Now()
	runCtx := ctx
	if j.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, j.Timeout)
		defer cancel()
	}
	if err := j.Reports.Warm(runCtx); err != nil {
		log.Error("warm delinquency report", slog.Any("error", err))
		return err
	}
	log.Info("delinquency report warmed", slog.String("reason", payload.Reason), slog.Duration("duration", time.Since(start)))
	return nil
}

// KeyCleaner prunes idempotency keys older than a horizon.
type KeyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// IdempotencyCleanupJob removes stale payment idempotency keys.
type IdempotencyCleanupJob struct {
	Keys    KeyCleaner
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewIdempotencyCleanupJob wires the cleanup handler.
func NewIdempotencyCleanupJob(keys KeyCleaner, logger *slog.Logger, metrics *jobmetrics.Metrics) *IdempotencyCleanupJob {
	return &IdempotencyCleanupJob{Keys: keys, Logger: logger, Metrics: metrics}
}

// Handle processes TaskIdempotencyCleanup tasks.
func (j *IdempotencyCleanupJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Keys == nil {
		return errors.New("idempotency cleanup: handler not configured")
	}
	var payload IdempotencyCleanupPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("decode cleanup payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	tracker := metricsOrDefault(j.Metrics).Track("idempotency_cleanup")
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	removed, err := j.Keys.Cleanup(ctx, payload.Retention())
	if err != nil {
		return err
	}
	logger(j.Logger, TaskIdempotencyCleanup).Info("idempotency keys pruned", slog.Int64("removed", removed))
	return nil
}

func metricsOrDefault(m *jobmetrics.Metrics) *jobmetrics.Metrics {
	if m != nil {
		return m
	}
	return defaultJobMetrics
}
