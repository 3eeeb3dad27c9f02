package installments

import (
	"time"

	"github.com/campfees/installments/internal/messaging"
)

// DefaultPreDueDays is the lead time of the single pre-due reminder.
const DefaultPreDueDays = 3

// Decision is a positive reminder verdict.
type Decision struct {
	Kind          messaging.Kind
	DaysOverdue   int
	DaysRemaining int
}

// ReminderPolicy decides whether an installment needs a reminder today.
// It never sends anything itself.
type ReminderPolicy struct {
	PreDueDays int
	GraceDays  int
	Location   *time.Location
}

// NewReminderPolicy returns the default cadence: one reminder three days
// before the due date, then one per day while the installment is in grace.
func NewReminderPolicy(loc *time.Location) ReminderPolicy {
	return ReminderPolicy{PreDueDays: DefaultPreDueDays, GraceDays: DefaultGraceDays, Location: loc}
}

// Evaluate returns the reminder due for inst at now, if any. At most one
// reminder is allowed per calendar date.
func (p ReminderPolicy) Evaluate(inst Installment, now time.Time) (Decision, bool) {
	if inst.LastReminderSent != nil && sameDay(*inst.LastReminderSent, now, p.Location) {
		return Decision{}, false
	}

	switch inst.Status {
	case StatusPending:
		if inst.RemindersSent != 0 {
			return Decision{}, false
		}
		remaining := daysBetween(now, inst.DueDate, p.Location)
		if remaining != p.preDueDays() {
			return Decision{}, false
		}
		return Decision{Kind: messaging.KindPreDue, DaysRemaining: remaining}, true

	case StatusOverdue:
		if !inst.IsInGracePeriod || !now.After(inst.DueDate) {
			return Decision{}, false
		}
		overdue := daysBetween(inst.DueDate, now, p.Location)
		if overdue < 1 || overdue > p.graceDays() {
			return Decision{}, false
		}
		kind := messaging.KindOverdue
		if overdue == p.graceDays() {
			kind = messaging.KindGraceFinal
		}
		return Decision{Kind: kind, DaysOverdue: overdue}, true
	}
	return Decision{}, false
}

func (p ReminderPolicy) preDueDays() int {
	if p.PreDueDays <= 0 {
		return DefaultPreDueDays
	}
	return p.PreDueDays
}

func (p ReminderPolicy) graceDays() int {
	if p.GraceDays <= 0 {
		return DefaultGraceDays
	}
	return p.GraceDays
}
