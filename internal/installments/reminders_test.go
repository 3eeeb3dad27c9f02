package installments

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/campfees/installments/internal/messaging"
)

func TestEvaluatePreDue(t *testing.T) {
	p := NewReminderPolicy(time.UTC)
	inst := pendingInstallment(date(2024, 1, 1))

	d, ok := p.Evaluate(inst, date(2023, 12, 29))
	require.True(t, ok)
	require.Equal(t, messaging.KindPreDue, d.Kind)
	require.Equal(t, 3, d.DaysRemaining)

	_, ok = p.Evaluate(inst, date(2023, 12, 28))
	require.False(t, ok)
	_, ok = p.Evaluate(inst, date(2023, 12, 30))
	require.False(t, ok)
}

func TestEvaluatePreDueOnlyOnce(t *testing.T) {
	p := NewReminderPolicy(time.UTC)
	inst := pendingInstallment(date(2024, 1, 1))
	sent := date(2023, 12, 29)
	inst.RemindersSent = 1
	inst.LastReminderSent = &sent

	_, ok := p.Evaluate(inst, time.Date(2023, 12, 29, 23, 0, 0, 0, time.UTC))
	require.False(t, ok)
}

func TestEvaluateOverdueCadence(t *testing.T) {
	p := NewReminderPolicy(time.UTC)
	m := NewStateMachine(time.UTC)
	inst := pendingInstallment(date(2024, 1, 1))
	patch, _ := m.Advance(inst, date(2024, 1, 2))
	patch.Apply(&inst)

	for day := 1; day <= 5; day++ {
		now := date(2024, 1, 1).AddDate(0, 0, day).Add(9 * time.Hour)
		d, ok := p.Evaluate(inst, now)
		require.True(t, ok, "day %d", day)
		require.Equal(t, day, d.DaysOverdue)
		if day == 5 {
			require.Equal(t, messaging.KindGraceFinal, d.Kind)
		} else {
			require.Equal(t, messaging.KindOverdue, d.Kind)
		}
	}
}

func TestEvaluateAtMostOnePerDay(t *testing.T) {
	p := NewReminderPolicy(time.UTC)
	m := NewStateMachine(time.UTC)
	inst := pendingInstallment(date(2024, 1, 1))
	patch, _ := m.Advance(inst, date(2024, 1, 2))
	patch.Apply(&inst)

	sent := time.Date(2024, 1, 3, 8, 0, 0, 0, time.UTC)
	inst.RemindersSent = 2
	inst.LastReminderSent = &sent

	_, ok := p.Evaluate(inst, time.Date(2024, 1, 3, 20, 0, 0, 0, time.UTC))
	require.False(t, ok)

	_, ok = p.Evaluate(inst, time.Date(2024, 1, 4, 0, 5, 0, 0, time.UTC))
	require.True(t, ok)
}

func TestEvaluateSkipsSettledAndExpired(t *testing.T) {
	p := NewReminderPolicy(time.UTC)

	paid := pendingInstallment(date(2024, 1, 1))
	paid.Status = StatusPaid
	_, ok := p.Evaluate(paid, date(2023, 12, 29))
	require.False(t, ok)

	expired := pendingInstallment(date(2024, 1, 1))
	expired.Status = StatusOverdue
	end := date(2024, 1, 6)
	expired.GracePeriodEnd = &end
	_, ok = p.Evaluate(expired, date(2024, 1, 3))
	require.False(t, ok, "overdue outside grace gets no reminder")
}
