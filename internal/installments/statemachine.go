package installments

import (
	"fmt"
	"time"
)

// DefaultGraceDays is the length of the grace window after a due date.
const DefaultGraceDays = 5

// Step records one phase change applied by the state machine.
type Step struct {
	From Phase
	To   Phase
}

// StateMachine owns installment status transitions. Day boundaries are
// evaluated in Location.
type StateMachine struct {
	GraceDays int
	Location  *time.Location
}

// NewStateMachine returns a state machine with the default grace window.
func NewStateMachine(loc *time.Location) StateMachine {
	return StateMachine{GraceDays: DefaultGraceDays, Location: loc}
}

func (m StateMachine) graceDays() int {
	if m.GraceDays <= 0 {
		return DefaultGraceDays
	}
	return m.GraceDays
}

// GracePeriodEnd returns the end of the grace window for a due date.
func (m StateMachine) GracePeriodEnd(due time.Time) time.Time {
	return due.AddDate(0, 0, m.graceDays())
}

// graceExpired reports whether now falls on a later calendar day than end.
func (m StateMachine) graceExpired(end, now time.Time) bool {
	return civilDate(now, m.Location).After(civilDate(end, m.Location))
}

// Advance computes the automatic transitions due at now:
//
//	pending -> overdue (in grace)        once now is past the due date
//	overdue (in grace) -> grace expired  once the grace end date has passed
//	grace expired -> failed              immediately, failed is terminal
//
// A row that is already long overdue walks every step in one call. The
// returned patch is empty when nothing is due, which keeps repeated passes
// with the same now side effect free.
func (m StateMachine) Advance(inst Installment, now time.Time) (Patch, []Step) {
	next := inst
	var steps []Step

	if next.Status == StatusPending && now.After(next.DueDate) {
		end := m.GracePeriodEnd(next.DueDate)
		next.Status = StatusOverdue
		next.IsInGracePeriod = true
		next.GracePeriodEnd = &end
		steps = append(steps, Step{From: PhasePending, To: PhaseInGrace})
	}

	if next.Status == StatusOverdue && next.IsInGracePeriod {
		end := next.GracePeriodEnd
		if end == nil {
			computed := m.GracePeriodEnd(next.DueDate)
			end = &computed
		}
		if m.graceExpired(*end, now) {
			next.IsInGracePeriod = false
			steps = append(steps, Step{From: PhaseInGrace, To: PhaseGraceExpired})
		}
	}

	if next.Status == StatusOverdue && !next.IsInGracePeriod {
		next.Status = StatusFailed
		steps = append(steps, Step{From: PhaseGraceExpired, To: PhaseFailed})
	}

	if len(steps) == 0 {
		return Patch{}, nil
	}

	patch := Patch{UpdatedAt: now}
	if next.Status != inst.Status {
		patch.Status = ptr(next.Status)
	}
	if next.IsInGracePeriod != inst.IsInGracePeriod {
		patch.IsInGracePeriod = ptr(next.IsInGracePeriod)
	}
	if next.GracePeriodEnd != nil && (inst.GracePeriodEnd == nil || !inst.GracePeriodEnd.Equal(*next.GracePeriodEnd)) {
		patch.GracePeriodEnd = ptr(*next.GracePeriodEnd)
	}
	return patch, steps
}

// Pay computes the paid transition. Pending and overdue installments (inside
// or past the grace window) may be paid; failed installments need an
// administrative reopen first.
func (m StateMachine) Pay(inst Installment, now time.Time) (Patch, error) {
	switch inst.Status {
	case StatusPaid:
		return Patch{}, ErrAlreadyPaid
	case StatusFailed:
		return Patch{}, fmt.Errorf("%w: installment %s is failed", ErrInvalidTransition, inst.ID)
	case StatusPending, StatusOverdue:
	default:
		return Patch{}, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, inst.Status)
	}
	return Patch{
		Status:              ptr(StatusPaid),
		PaidAt:              ptr(now),
		IsInGracePeriod:     ptr(false),
		ClearGracePeriodEnd: true,
		UpdatedAt:           now,
	}, nil
}
