package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/campfees/installments/jobs"
)

// InlineScheduler runs the pass and claims cleanup on PASS_CRON and
// CLEANUP_CRON inside the API process. It returns nil for shared storage,
// where the worker owns the schedule.
func (s *Services) InlineScheduler(ctx context.Context) (*cron.Cron, error) {
	if s.Config.StorageDriver != StorageMemory {
		return nil, nil
	}
	c := cron.New(cron.WithLocation(s.Config.Location()))

	passJob := s.SchedulingPassJob()
	if _, err := c.AddFunc(s.Config.PassCron, func() {
		// Failures are logged and counted by the job itself.
		_, _ = passJob.Run(ctx, time.Now().UTC())
	}); err != nil {
		return nil, err
	}

	cleanupJob := jobs.NewClaimsCleanupJob(s.Claims, s.Logger, s.JobMetrics)
	cleanupTask, err := jobs.NewClaimsCleanupTask(jobs.DefaultClaimRetentionDays)
	if err != nil {
		return nil, err
	}
	if _, err := c.AddFunc(s.Config.CleanupCron, func() {
		if err := cleanupJob.Handle(ctx, cleanupTask); err != nil {
			s.Logger.Warn("inline claims cleanup", slog.Any("error", err))
		}
	}); err != nil {
		return nil, err
	}
	return c, nil
}
