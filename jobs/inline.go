package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/campfees/installments/internal/shared"
)

// InlineTrigger runs requested passes synchronously in the calling process.
// It serves the memory storage driver, where no worker shares the state.
type InlineTrigger struct {
	Job *SchedulingPassJob
}

// EnqueueSchedulingPass runs one pass at at, or now when at is nil.
func (t InlineTrigger) EnqueueSchedulingPass(ctx context.Context, at *time.Time) (string, error) {
	now := t.Job.now()
	if at != nil {
		now = *at
	}
	if _, err := t.Job.Run(ctx, now); err != nil {
		if errors.Is(err, shared.ErrLockHeld) {
			return "", fmt.Errorf("jobs: scheduling pass already running: %w", shared.ErrConflict)
		}
		return "", err
	}
	return "inline:" + now.UTC().Format(time.RFC3339), nil
}
