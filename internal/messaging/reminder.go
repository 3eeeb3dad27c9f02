// Package messaging turns reminder decisions into outbound messages. The
// installment engine only sees the Deliverer interface.
package messaging

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Kind identifies the reminder flavour.
type Kind string

const (
	// KindPreDue fires once, a few days before the due date.
	KindPreDue Kind = "pre_due"
	// KindOverdue fires daily while the installment is inside its grace window.
	KindOverdue Kind = "overdue"
	// KindGraceFinal fires on the last day of the grace window.
	KindGraceFinal Kind = "grace_final"
)

// Recipient carries the contact details of the responsible parent.
type Recipient struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

// Reminder is the payload handed to a Deliverer.
type Reminder struct {
	Kind              Kind      `json:"kind"`
	InstallmentID     uuid.UUID `json:"installment_id"`
	ParentPaymentID   int64     `json:"parent_payment_id"`
	ParentID          int64     `json:"parent_id"`
	Recipient         Recipient `json:"recipient"`
	Amount            int64     `json:"amount"`
	DueDate           time.Time `json:"due_date"`
	DaysOverdue       int       `json:"days_overdue,omitempty"`
	DaysRemaining     int       `json:"days_remaining,omitempty"`
	InstallmentNumber int       `json:"installment_number"`
	TotalInstallments int       `json:"total_installments"`
	GracePeriodEnd    time.Time `json:"grace_period_end,omitempty"`
}

// Receipt describes the outcome of a delivery attempt.
type Receipt struct {
	Delivered bool
	ID        string
}

// Deliverer sends reminders through some transport.
type Deliverer interface {
	Deliver(ctx context.Context, r Reminder) (Receipt, error)
}
