package installments

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func pendingInstallment(due time.Time) Installment {
	return Installment{
		ID:                uuid.New(),
		ParentPaymentID:   1,
		ParentID:          10,
		InstallmentNumber: 1,
		TotalInstallments: 1,
		Amount:            500,
		DueDate:           due,
		Status:            StatusPending,
		Version:           1,
	}
}

func TestAdvancePendingToOverdue(t *testing.T) {
	m := NewStateMachine(time.UTC)
	inst := pendingInstallment(date(2024, 1, 1))

	patch, steps := m.Advance(inst, date(2024, 1, 3))
	require.Equal(t, []Step{{From: PhasePending, To: PhaseInGrace}}, steps)

	patch.Apply(&inst)
	require.Equal(t, StatusOverdue, inst.Status)
	require.True(t, inst.IsInGracePeriod)
	require.NotNil(t, inst.GracePeriodEnd)
	require.Equal(t, date(2024, 1, 6), *inst.GracePeriodEnd)
	require.NoError(t, inst.Validate())
}

func TestAdvanceNotYetDue(t *testing.T) {
	m := NewStateMachine(time.UTC)
	inst := pendingInstallment(date(2024, 1, 1))

	patch, steps := m.Advance(inst, date(2024, 1, 1))
	require.True(t, patch.IsZero())
	require.Empty(t, steps)
}

func TestAdvanceGraceLastDayStaysInGrace(t *testing.T) {
	m := NewStateMachine(time.UTC)
	inst := pendingInstallment(date(2024, 1, 1))
	patch, _ := m.Advance(inst, date(2024, 1, 2))
	patch.Apply(&inst)

	patch, steps := m.Advance(inst, time.Date(2024, 1, 6, 23, 59, 0, 0, time.UTC))
	require.True(t, patch.IsZero())
	require.Empty(t, steps)
	require.Equal(t, PhaseInGrace, inst.Phase())
}

func TestAdvanceGraceExpiryFails(t *testing.T) {
	m := NewStateMachine(time.UTC)
	inst := pendingInstallment(date(2024, 1, 1))
	patch, _ := m.Advance(inst, date(2024, 1, 2))
	patch.Apply(&inst)

	patch, steps := m.Advance(inst, date(2024, 1, 7))
	require.Equal(t, []Step{
		{From: PhaseInGrace, To: PhaseGraceExpired},
		{From: PhaseGraceExpired, To: PhaseFailed},
	}, steps)

	patch.Apply(&inst)
	require.Equal(t, StatusFailed, inst.Status)
	require.False(t, inst.IsInGracePeriod)
	require.NotNil(t, inst.GracePeriodEnd, "grace end is kept as history")
	require.NoError(t, inst.Validate())
}

func TestAdvanceLongOverdueWalksAllSteps(t *testing.T) {
	m := NewStateMachine(time.UTC)
	inst := pendingInstallment(date(2024, 1, 1))

	patch, steps := m.Advance(inst, date(2024, 2, 1))
	require.Len(t, steps, 3)
	patch.Apply(&inst)
	require.Equal(t, StatusFailed, inst.Status)
	require.Equal(t, date(2024, 1, 6), *inst.GracePeriodEnd)
}

func TestAdvanceIsIdempotent(t *testing.T) {
	m := NewStateMachine(time.UTC)
	now := date(2024, 1, 3)
	inst := pendingInstallment(date(2024, 1, 1))

	patch, _ := m.Advance(inst, now)
	patch.Apply(&inst)

	again, steps := m.Advance(inst, now)
	require.True(t, again.IsZero())
	require.Empty(t, steps)
}

func TestAdvanceUsesCalendarDaysInLocation(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	m := NewStateMachine(loc)

	due := time.Date(2024, 1, 1, 0, 0, 0, 0, loc)
	inst := pendingInstallment(due)
	patch, _ := m.Advance(inst, due.Add(time.Hour))
	patch.Apply(&inst)

	// 2024-01-07 02:00 UTC is still Jan 6 in New York.
	patch, _ = m.Advance(inst, time.Date(2024, 1, 7, 2, 0, 0, 0, time.UTC))
	require.True(t, patch.IsZero())

	patch, _ = m.Advance(inst, time.Date(2024, 1, 7, 6, 0, 0, 0, time.UTC))
	patch.Apply(&inst)
	require.Equal(t, StatusFailed, inst.Status)
}

func TestPay(t *testing.T) {
	m := NewStateMachine(time.UTC)
	now := date(2024, 1, 4)

	inst := pendingInstallment(date(2024, 1, 1))
	patch, _ := m.Advance(inst, date(2024, 1, 2))
	patch.Apply(&inst)

	pay, err := m.Pay(inst, now)
	require.NoError(t, err)
	pay.Apply(&inst)
	require.Equal(t, StatusPaid, inst.Status)
	require.False(t, inst.IsInGracePeriod)
	require.Nil(t, inst.GracePeriodEnd)
	require.Equal(t, now, *inst.PaidAt)
	require.NoError(t, inst.Validate())

	_, err = m.Pay(inst, now)
	require.ErrorIs(t, err, ErrAlreadyPaid)

	failed := pendingInstallment(date(2024, 1, 1))
	failed.Status = StatusFailed
	_, err = m.Pay(failed, now)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestAdvanceIgnoresTerminalStatuses(t *testing.T) {
	m := NewStateMachine(time.UTC)
	for _, status := range []Status{StatusPaid, StatusFailed} {
		inst := pendingInstallment(date(2024, 1, 1))
		inst.Status = status
		patch, steps := m.Advance(inst, date(2024, 3, 1))
		require.True(t, patch.IsZero())
		require.Empty(t, steps)
	}
}
