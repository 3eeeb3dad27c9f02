package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/campfees/installments/internal/installments"
	jobmetrics "github.com/campfees/installments/internal/jobs"
	"github.com/campfees/installments/internal/shared"
)

type fakeRunner struct {
	mu      sync.Mutex
	calls   []time.Time
	summary installments.PassSummary
	err     error
	block   chan struct{}
}

func (f *fakeRunner) RunSchedulingPass(ctx context.Context, now time.Time) (installments.PassSummary, error) {
	f.mu.Lock()
	f.calls = append(f.calls, now)
	block := f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	return f.summary, f.err
}

func (f *fakeRunner) Calls() []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Time(nil), f.calls...)
}

func newLocker(t *testing.T) *shared.Locker {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return shared.NewLocker(client)
}

func TestSchedulingPassUsesPayloadInstant(t *testing.T) {
	runner := &fakeRunner{summary: installments.PassSummary{Transitioned: 2, RemindersFired: 1}}
	job := NewSchedulingPassJob(runner, newLocker(t), time.Minute, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	job.clock = func() time.Time { return time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC) }

	at := time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)
	task, err := NewSchedulingPassTask(&at)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	task, err = NewSchedulingPassTask(nil)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	calls := runner.Calls()
	require.Len(t, calls, 2)
	require.True(t, calls[0].Equal(at))
	require.True(t, calls[1].Equal(time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)))
}

func TestSchedulingPassSkipsWhileLocked(t *testing.T) {
	runner := &fakeRunner{block: make(chan struct{})}
	locker := newLocker(t)
	job := NewSchedulingPassJob(runner, locker, time.Minute, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	now := time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)

	done := make(chan error, 1)
	go func() {
		_, err := job.Run(context.Background(), now)
		done <- err
	}()
	require.Eventually(t, func() bool { return len(runner.Calls()) == 1 }, time.Second, 5*time.Millisecond)

	_, err := job.Run(context.Background(), now)
	require.ErrorIs(t, err, shared.ErrLockHeld)

	task, err := NewSchedulingPassTask(&now)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task), "a skipped pass is not retried")

	close(runner.block)
	require.NoError(t, <-done)
	require.Len(t, runner.Calls(), 1)

	_, err = job.Run(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, runner.Calls(), 2)
}

func TestSchedulingPassReportsRunnerFailure(t *testing.T) {
	runner := &fakeRunner{err: errors.New("db down")}
	job := NewSchedulingPassJob(runner, nil, 0, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))

	task := asynq.NewTask(TaskSchedulingPass, nil)
	require.Error(t, job.Handle(context.Background(), task))

	bad := asynq.NewTask(TaskSchedulingPass, []byte("{"))
	require.ErrorIs(t, job.Handle(context.Background(), bad), asynq.SkipRetry)
}

func TestSchedulingPassKeepsRecordErrorsOutOfRetry(t *testing.T) {
	runner := &fakeRunner{summary: installments.PassSummary{
		Errors: []installments.RecordError{{InstallmentID: uuid.New(), Stage: installments.StageReminder, Err: installments.ErrDeliveryFailure}},
	}}
	job := NewSchedulingPassJob(runner, nil, 0, nil, nil)

	summary, err := job.Run(context.Background(), time.Now())
	require.NoError(t, err)
	require.Len(t, summary.Errors, 1)
}

type fakeCleaner struct {
	olderThan time.Duration
	removed   int64
}

func (f *fakeCleaner) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	f.olderThan = olderThan
	return f.removed, nil
}

func TestClaimsCleanup(t *testing.T) {
	cleaner := &fakeCleaner{removed: 4}
	job := NewClaimsCleanupJob(cleaner, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))

	task, err := NewClaimsCleanupTask(0)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 30*24*time.Hour, cleaner.olderThan)

	task, err = NewClaimsCleanupTask(7)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 7*24*time.Hour, cleaner.olderThan)
}

type fakeEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: "pass-1", Queue: QueueDefault, Type: task.Type()}, nil
}

func (f *fakeEnqueuer) Close() error { return nil }

func TestClientEnqueueSchedulingPass(t *testing.T) {
	fake := &fakeEnqueuer{}
	client := &Client{client: fake}
	at := time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)

	id, err := client.EnqueueSchedulingPass(context.Background(), &at)
	require.NoError(t, err)
	require.Equal(t, "pass-1", id)
	require.Len(t, fake.tasks, 1)
	require.Equal(t, TaskSchedulingPass, fake.tasks[0].Type())

	var payload SchedulingPassPayload
	require.NoError(t, json.Unmarshal(fake.tasks[0].Payload(), &payload))
	require.NotNil(t, payload.Now)
	require.True(t, payload.Now.Equal(at))

	fake.err = asynq.ErrDuplicateTask
	_, err = client.EnqueueSchedulingPass(context.Background(), nil)
	require.ErrorIs(t, err, ErrPassQueued)
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestHealthWithoutInspector(t *testing.T) {
	h := NewHandler(nil, nil)
	rr := httptest.NewRecorder()
	h.health(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"queue":"default","pending":0,"scheduled":0,"retry":0}`, rr.Body.String())
}
