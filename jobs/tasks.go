package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSchedulingPass runs one installment scheduling pass.
	TaskSchedulingPass = "installments:scheduling_pass"
	// TaskClaimsCleanup purges expired reminder claim keys.
	TaskClaimsCleanup = "installments:claims_cleanup"
)

// SchedulingPassPayload optionally pins the evaluation instant of a pass.
// Without it the handler uses the worker clock.
type SchedulingPassPayload struct {
	Now *time.Time `json:"now,omitempty"`
}

// NewSchedulingPassTask constructs a scheduling pass task.
func NewSchedulingPassTask(at *time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(SchedulingPassPayload{Now: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSchedulingPass, body, asynq.Queue(QueueDefault)), nil
}

// ClaimsCleanupPayload configures how old a claim must be to be purged.
type ClaimsCleanupPayload struct {
	RetentionDays int `json:"retention_days"`
}

// DefaultClaimRetentionDays keeps reminder claims for a month.
const DefaultClaimRetentionDays = 30

// NewClaimsCleanupTask constructs a claims cleanup task.
func NewClaimsCleanupTask(retentionDays int) (*asynq.Task, error) {
	if retentionDays <= 0 {
		retentionDays = DefaultClaimRetentionDays
	}
	body, err := json.Marshal(ClaimsCleanupPayload{RetentionDays: retentionDays})
	if err != nil {
		return nil, fmt.Errorf("claims cleanup payload: %w", err)
	}
	return asynq.NewTask(TaskClaimsCleanup, body, asynq.Queue(QueueDefault)), nil
}
