package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// TaskTypeDeliverReminder is the asynq task type carrying a Reminder.
const TaskTypeDeliverReminder = "reminder:deliver"

// Enqueuer is the subset of asynq.Client used for delivery.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// NewDeliverTask constructs the asynq task for a reminder.
func NewDeliverTask(r Reminder) (*asynq.Task, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeDeliverReminder, data), nil
}

// QueueDeliverer hands reminders to the worker queue. Delivery counts as done
// once the task is enqueued; retries of the actual send belong to the worker.
type QueueDeliverer struct {
	client Enqueuer
	queue  string
}

// NewQueueDeliverer constructs a QueueDeliverer.
func NewQueueDeliverer(client Enqueuer, queue string) *QueueDeliverer {
	return &QueueDeliverer{client: client, queue: queue}
}

// Deliver enqueues the reminder.
func (q *QueueDeliverer) Deliver(ctx context.Context, r Reminder) (Receipt, error) {
	task, err := NewDeliverTask(r)
	if err != nil {
		return Receipt{}, fmt.Errorf("messaging: build task: %w", err)
	}
	opts := []asynq.Option{asynq.MaxRetry(5), asynq.Timeout(time.Minute)}
	if q.queue != "" {
		opts = append(opts, asynq.Queue(q.queue))
	}
	info, err := q.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		return Receipt{}, fmt.Errorf("messaging: enqueue reminder: %w", err)
	}
	return Receipt{Delivered: true, ID: info.ID}, nil
}
