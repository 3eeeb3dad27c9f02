package installments

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status enumerates installment statuses.
type Status string

const (
	StatusPending Status = "pending"
	StatusPaid    Status = "paid"
	StatusOverdue Status = "overdue"
	StatusFailed  Status = "failed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPaid, StatusOverdue, StatusFailed:
		return true
	}
	return false
}

// Phase refines Status with the grace sub-phases of overdue.
type Phase string

const (
	PhasePending      Phase = "pending"
	PhasePaid         Phase = "paid"
	PhaseInGrace      Phase = "in_grace"
	PhaseGraceExpired Phase = "grace_expired"
	PhaseFailed       Phase = "failed"
)

// Installment is one scheduled sub-payment of a parent payment. Amounts are
// minor currency units.
type Installment struct {
	ID                uuid.UUID  `json:"id"`
	ParentPaymentID   int64      `json:"parent_payment_id"`
	ParentID          int64      `json:"parent_id"`
	PaymentPlanID     *int64     `json:"payment_plan_id,omitempty"`
	InstallmentNumber int        `json:"installment_number"`
	TotalInstallments int        `json:"total_installments"`
	Amount            int64      `json:"amount"`
	DueDate           time.Time  `json:"due_date"`
	Status            Status     `json:"status"`
	IsInGracePeriod   bool       `json:"is_in_grace_period"`
	GracePeriodEnd    *time.Time `json:"grace_period_end,omitempty"`
	RemindersSent     int        `json:"reminders_sent"`
	LastReminderSent  *time.Time `json:"last_reminder_sent,omitempty"`
	PaidAt            *time.Time `json:"paid_at,omitempty"`
	Version           int64      `json:"version"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// Phase derives the lifecycle phase.
func (i Installment) Phase() Phase {
	switch i.Status {
	case StatusPaid:
		return PhasePaid
	case StatusFailed:
		return PhaseFailed
	case StatusOverdue:
		if i.IsInGracePeriod {
			return PhaseInGrace
		}
		return PhaseGraceExpired
	default:
		return PhasePending
	}
}

// Validate checks record level invariants.
func (i Installment) Validate() error {
	if i.TotalInstallments < 1 || i.InstallmentNumber < 1 || i.InstallmentNumber > i.TotalInstallments {
		return fmt.Errorf("%w: installment %d of %d", ErrInvalidInstallment, i.InstallmentNumber, i.TotalInstallments)
	}
	if i.Amount < 0 {
		return fmt.Errorf("%w: negative amount", ErrInvalidInstallment)
	}
	if !i.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidInstallment, i.Status)
	}
	if i.IsInGracePeriod && (i.Status != StatusOverdue || i.GracePeriodEnd == nil) {
		return fmt.Errorf("%w: grace period flag outside overdue", ErrInvalidInstallment)
	}
	if i.RemindersSent < 0 {
		return fmt.Errorf("%w: negative reminder count", ErrInvalidInstallment)
	}
	return nil
}

// Patch is a partial update. Nil fields are left unchanged.
type Patch struct {
	Status              *Status
	IsInGracePeriod     *bool
	GracePeriodEnd      *time.Time
	ClearGracePeriodEnd bool
	RemindersSent       *int
	LastReminderSent    *time.Time
	PaidAt              *time.Time
	UpdatedAt           time.Time
}

// IsZero reports whether the patch changes nothing.
func (p Patch) IsZero() bool {
	return p.Status == nil && p.IsInGracePeriod == nil && p.GracePeriodEnd == nil &&
		!p.ClearGracePeriodEnd && p.RemindersSent == nil && p.LastReminderSent == nil && p.PaidAt == nil
}

// Apply writes the patch onto inst.
func (p Patch) Apply(inst *Installment) {
	if p.Status != nil {
		inst.Status = *p.Status
	}
	if p.IsInGracePeriod != nil {
		inst.IsInGracePeriod = *p.IsInGracePeriod
	}
	if p.ClearGracePeriodEnd {
		inst.GracePeriodEnd = nil
	}
	if p.GracePeriodEnd != nil {
		end := *p.GracePeriodEnd
		inst.GracePeriodEnd = &end
	}
	if p.RemindersSent != nil {
		inst.RemindersSent = *p.RemindersSent
	}
	if p.LastReminderSent != nil {
		at := *p.LastReminderSent
		inst.LastReminderSent = &at
	}
	if p.PaidAt != nil {
		at := *p.PaidAt
		inst.PaidAt = &at
	}
	if !p.UpdatedAt.IsZero() {
		inst.UpdatedAt = p.UpdatedAt
	}
}

// PlanInput describes a new installment plan for an existing payment. A nil
// TotalAmount inherits the payment's total; zero is a valid explicit total.
type PlanInput struct {
	PaymentID         int64
	ParentID          int64
	PaymentPlanID     *int64
	TotalAmount       *int64
	InstallmentCount  int
	FrequencyMonths   int
	StartDate         time.Time
	FirstPaidAtSignup bool
}

// PaymentView bundles a payment's installments with derived totals.
type PaymentView struct {
	PaymentID    int64         `json:"payment_id"`
	Installments []Installment `json:"installments"`
	Summary      Summary       `json:"summary"`
}

func ptr[T any](v T) *T {
	return &v
}
