package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/campfees/installments/internal/jobs"
)

// ClaimCleaner removes claim keys older than a retention window.
type ClaimCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// ClaimsCleanupJob purges reminder claims that can no longer collide.
type ClaimsCleanupJob struct {
	Claims  ClaimCleaner
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewClaimsCleanupJob wires the cleanup handler.
func NewClaimsCleanupJob(claims ClaimCleaner, logger *slog.Logger, metrics *jobmetrics.Metrics) *ClaimsCleanupJob {
	return &ClaimsCleanupJob{Claims: claims, Logger: logger, Metrics: metrics}
}

// Handle processes TaskClaimsCleanup tasks.
func (j *ClaimsCleanupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Claims == nil {
		return errors.New("claims cleanup: handler not configured")
	}
	payload := ClaimsCleanupPayload{RetentionDays: DefaultClaimRetentionDays}
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	if payload.RetentionDays <= 0 {
		payload.RetentionDays = DefaultClaimRetentionDays
	}

	metrics := j.Metrics
	if metrics == nil {
		metrics = defaultJobMetrics
	}
	tracker := metrics.Track(TaskClaimsCleanup)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("job", TaskClaimsCleanup))

	removed, err := j.Claims.Cleanup(ctx, time.Duration(payload.RetentionDays)*24*time.Hour)
	if err != nil {
		resultErr = err
		logger.Error("cleanup claims", slog.Any("error", err))
		return resultErr
	}
	logger.Info("purged reminder claims", slog.Int64("removed", removed), slog.Int("retention_days", payload.RetentionDays))
	return resultErr
}
