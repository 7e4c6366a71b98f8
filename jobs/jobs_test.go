package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/ampere-erp/ampere-erp/internal/jobs"
	"github.com/ampere-erp/ampere-erp/internal/shared"
)

type fakeQueue struct {
	err   error
	tasks []*asynq.Task
}

func (q *fakeQueue) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if q.err != nil {
		return nil, q.err
	}
	q.tasks = append(q.tasks, task)
	return &asynq.TaskInfo{Type: task.Type()}, nil
}

type fakeWriter struct {
	err     error
	entries []shared.AuditLog
}

func (w *fakeWriter) Write(ctx context.Context, log shared.AuditLog) error {
	if w.err != nil {
		return w.err
	}
	w.entries = append(w.entries, log)
	return nil
}

func sampleEntry() shared.AuditLog {
	return shared.NewAuditEntry(shared.Actor{UserID: 1, IP: "10.0.0.1"}, "payment.created", "payment", "p-1", "Pagamento registrado")
}

func TestAuditDispatcherQueuesEntries(t *testing.T) {
	queue := &fakeQueue{}
	writer := &fakeWriter{}
	d := NewAuditDispatcher(queue, writer, nil, nil)

	d.Record(context.Background(), sampleEntry())

	require.Len(t, queue.tasks, 1)
	assert.Equal(t, TaskAuditRecord, queue.tasks[0].Type())
	assert.Empty(t, writer.entries)

	var decoded shared.AuditLog
	require.NoError(t, json.Unmarshal(queue.tasks[0].Payload(), &decoded))
	assert.Equal(t, "payment.created", decoded.Action)
	assert.Equal(t, int64(1), decoded.ActorID)
}

func TestAuditDispatcherFallsBackToDirectWrite(t *testing.T) {
	queue := &fakeQueue{err: errors.New("redis down")}
	writer := &fakeWriter{}
	metrics := jobmetrics.NewMetrics(prometheus.NewRegistry())
	d := NewAuditDispatcher(queue, writer, nil, metrics)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Record(ctx, sampleEntry())

	require.Len(t, writer.entries, 1)
	assert.Equal(t, "p-1", writer.entries[0].EntityID)
}

func TestAuditDispatcherWithoutQueueWritesDirectly(t *testing.T) {
	writer := &fakeWriter{}
	d := NewAuditDispatcher(nil, writer, nil, nil)
	d.Record(context.Background(), sampleEntry())
	require.Len(t, writer.entries, 1)
}

func TestAuditDispatcherDropsInvalidEntries(t *testing.T) {
	queue := &fakeQueue{}
	writer := &fakeWriter{}
	d := NewAuditDispatcher(queue, writer, nil, nil)
	d.Record(context.Background(), shared.AuditLog{Action: "x"})
	assert.Empty(t, queue.tasks)
	assert.Empty(t, writer.entries)
}

func TestAuditPersistJob(t *testing.T) {
	writer := &fakeWriter{}
	job := NewAuditPersistJob(writer, nil, nil)

	task, err := NewAuditRecordTask(sampleEntry())
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Len(t, writer.entries, 1)

	err = job.Handle(context.Background(), asynq.NewTask(TaskAuditRecord, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	err = job.Handle(context.Background(), asynq.NewTask(TaskAuditRecord, []byte(`{"action":"x"}`)))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	writer.err = errors.New("db down")
	err = job.Handle(context.Background(), task)
	require.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
}

type fakeWarmer struct {
	calls int
	err   error
}

func (w *fakeWarmer) Warm(ctx context.Context) error {
	w.calls++
	return w.err
}

func TestDelinquencyWarmupJob(t *testing.T) {
	warmer := &fakeWarmer{}
	job := NewDelinquencyWarmupJob(warmer, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))

	task, err := NewDelinquencyWarmupTask("cron")
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, 1, warmer.calls)

	warmer.err = errors.New("store down")
	assert.Error(t, job.Handle(context.Background(), task))

	err = job.Handle(context.Background(), asynq.NewTask(TaskDelinquencyWarmup, []byte("nope")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

type fakeCleaner struct {
	olderThan time.Duration
}

func (c *fakeCleaner) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	c.olderThan = olderThan
	return 4, nil
}

func TestIdempotencyCleanupJob(t *testing.T) {
	cleaner := &fakeCleaner{}
	job := NewIdempotencyCleanupJob(cleaner, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))

	task, err := NewIdempotencyCleanupTask(24 * time.Hour)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, 24*time.Hour, cleaner.olderThan)

	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskIdempotencyCleanup, nil)))
	assert.Equal(t, DefaultIdempotencyRetention, cleaner.olderThan)
}

type fakeInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (i fakeInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	return i.info, i.err
}

func TestHealthHandler(t *testing.T) {
	cases := []struct {
		name      string
		inspector QueueInspector
		status    int
		body      string
	}{
		{name: "no inspector", inspector: nil, status: http.StatusOK, body: `{"queue":"default","pending":0}`},
		{name: "pending", inspector: fakeInspector{info: &asynq.QueueInfo{Queue: "default", Pending: 3}}, status: http.StatusOK, body: `{"queue":"default","pending":3}`},
		{name: "redis down", inspector: fakeInspector{err: errors.New("dial")}, status: http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := chi.NewRouter()
			NewHandler(tc.inspector, nil).MountRoutes(r)
			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
			assert.Equal(t, tc.status, rr.Code)
			if tc.body != "" {
				assert.JSONEq(t, tc.body, rr.Body.String())
			}
		})
	}
}
