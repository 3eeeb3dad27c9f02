package messaging

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// LogDeliverer writes reminders to the log instead of sending them.
type LogDeliverer struct {
	Logger *slog.Logger
}

// Deliver logs the reminder.
func (d LogDeliverer) Deliver(ctx context.Context, r Reminder) (Receipt, error) {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()
	logger.Info("reminder",
		slog.String("reminder_id", id),
		slog.String("kind", string(r.Kind)),
		slog.String("installment_id", r.InstallmentID.String()),
		slog.Int64("parent_id", r.ParentID),
		slog.String("email", r.Recipient.Email),
		slog.Int64("amount", r.Amount),
		slog.Time("due_date", r.DueDate),
	)
	return Receipt{Delivered: true, ID: id}, nil
}
