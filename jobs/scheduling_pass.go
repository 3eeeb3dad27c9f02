package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/campfees/installments/internal/installments"
	jobmetrics "github.com/campfees/installments/internal/jobs"
	"github.com/campfees/installments/internal/shared"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// PassRunner executes a scheduling pass.
type PassRunner interface {
	RunSchedulingPass(ctx context.Context, now time.Time) (installments.PassSummary, error)
}

// PassLocker hands out the cross-process pass lock.
type PassLocker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error)
}

// DefaultPassLockTTL bounds how long a crashed worker can block passes.
const DefaultPassLockTTL = 10 * time.Minute

// SchedulingPassJob runs the installment scheduling pass on behalf of the
// worker. Overlapping triggers are skipped while another pass holds the lock.
type SchedulingPassJob struct {
	Runner  PassRunner
	Locker  PassLocker
	LockTTL time.Duration
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewSchedulingPassJob wires the pass handler.
func NewSchedulingPassJob(runner PassRunner, locker PassLocker, lockTTL time.Duration, logger *slog.Logger, metrics *jobmetrics.Metrics) *SchedulingPassJob {
	return &SchedulingPassJob{
		Runner:  runner,
		Locker:  locker,
		LockTTL: lockTTL,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes TaskSchedulingPass tasks.
func (j *SchedulingPassJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Runner == nil {
		return errors.New("scheduling pass: handler not configured")
	}
	var payload SchedulingPassPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	now := j.now()
	if payload.Now != nil {
		now = *payload.Now
	}
	_, err := j.Run(ctx, now)
	if errors.Is(err, shared.ErrLockHeld) {
		return nil
	}
	return err
}

// Run executes one pass at now under the pass lock. It returns
// shared.ErrLockHeld when another pass is in flight.
func (j *SchedulingPassJob) Run(ctx context.Context, now time.Time) (installments.PassSummary, error) {
	logger := j.logger().With(slog.Time("now", now))

	release, err := j.acquire(ctx)
	if err != nil {
		if errors.Is(err, shared.ErrLockHeld) {
			logger.Info("scheduling pass already running, skipping")
		} else {
			logger.Error("acquire pass lock", slog.Any("error", err))
		}
		return installments.PassSummary{}, err
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("release pass lock", slog.Any("error", err))
		}
	}()

	tracker := j.metrics().Track(TaskSchedulingPass)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	start := time.Now()
	summary, err := j.Runner.RunSchedulingPass(ctx, now)
	if err != nil {
		resultErr = err
		logger.Error("scheduling pass", slog.Any("error", err))
		return summary, resultErr
	}
	for _, recErr := range summary.Errors {
		logger.Warn("installment not processed",
			slog.String("installment_id", recErr.InstallmentID.String()),
			slog.String("stage", recErr.Stage),
			slog.Any("error", recErr.Err),
		)
	}
	logger.Info("completed scheduling pass",
		slog.Int("transitioned", summary.Transitioned),
		slog.Int("reminders_fired", summary.RemindersFired),
		slog.Int("errors", len(summary.Errors)),
		slog.Duration("duration", time.Since(start)),
	)
	return summary, resultErr
}

func (j *SchedulingPassJob) acquire(ctx context.Context) (func(context.Context) error, error) {
	if j.Locker == nil {
		return func(context.Context) error { return nil }, nil
	}
	ttl := j.LockTTL
	if ttl <= 0 {
		ttl = DefaultPassLockTTL
	}
	return j.Locker.Acquire(ctx, shared.SchedulingPassLockKey, ttl)
}

func (j *SchedulingPassJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskSchedulingPass))
	}
	return slog.Default().With(slog.String("job", TaskSchedulingPass))
}

func (j *SchedulingPassJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *SchedulingPassJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
