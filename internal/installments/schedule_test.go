package installments

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/campfees/installments/internal/shared"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestGenerateScheduleRemainderGoesFirst(t *testing.T) {
	items, err := CreateSchedule(1000, 3, 1, date(2024, 1, 15))
	require.NoError(t, err)
	require.Len(t, items, 3)

	require.Equal(t, []int64{334, 333, 333}, []int64{items[0].Amount, items[1].Amount, items[2].Amount})
	require.Equal(t, date(2024, 1, 15), items[0].DueDate)
	require.Equal(t, date(2024, 2, 15), items[1].DueDate)
	require.Equal(t, date(2024, 3, 15), items[2].DueDate)
	for i, inst := range items {
		require.Equal(t, i+1, inst.InstallmentNumber)
		require.Equal(t, 3, inst.TotalInstallments)
		require.Equal(t, StatusPending, inst.Status)
		require.False(t, inst.IsInGracePeriod)
		require.Zero(t, inst.RemindersSent)
	}
}

func TestGenerateScheduleSumsToTotal(t *testing.T) {
	cases := []struct {
		total int64
		count int
		freq  int
	}{
		{total: 0, count: 4, freq: 1},
		{total: 1, count: 7, freq: 2},
		{total: 99999, count: 12, freq: 1},
		{total: 120000, count: 10, freq: 3},
	}
	for _, tc := range cases {
		items, err := CreateSchedule(tc.total, tc.count, tc.freq, date(2024, 5, 1))
		require.NoError(t, err)
		require.Len(t, items, tc.count)

		var sum int64
		for i, inst := range items {
			sum += inst.Amount
			require.GreaterOrEqual(t, inst.Amount, int64(0))
			if i > 0 {
				require.True(t, inst.DueDate.After(items[i-1].DueDate))
			}
		}
		require.Equal(t, tc.total, sum)
	}
}

func TestGenerateScheduleTotalBelowCount(t *testing.T) {
	items, err := CreateSchedule(2, 3, 1, date(2024, 1, 1))
	require.NoError(t, err)
	require.Equal(t, []int64{2, 0, 0}, []int64{items[0].Amount, items[1].Amount, items[2].Amount})
	for _, inst := range items {
		require.NoError(t, inst.Validate())
	}
}

func TestGenerateScheduleClampsShortMonths(t *testing.T) {
	items, err := CreateSchedule(400, 4, 1, date(2024, 1, 31))
	require.NoError(t, err)

	require.Equal(t, date(2024, 1, 31), items[0].DueDate)
	require.Equal(t, date(2024, 2, 29), items[1].DueDate)
	require.Equal(t, date(2024, 3, 31), items[2].DueDate)
	require.Equal(t, date(2024, 4, 30), items[3].DueDate)
}

func TestGenerateScheduleCrossesYearBoundary(t *testing.T) {
	items, err := CreateSchedule(300, 3, 6, date(2024, 8, 31))
	require.NoError(t, err)

	require.Equal(t, date(2025, 2, 28), items[1].DueDate)
	require.Equal(t, date(2025, 8, 31), items[2].DueDate)
}

func TestGenerateScheduleRejectsInvalidParameters(t *testing.T) {
	cases := map[string]ScheduleParams{
		"zero count":     {TotalAmount: 100, InstallmentCount: 0, FrequencyMonths: 1, StartDate: date(2024, 1, 1)},
		"negative total": {TotalAmount: -1, InstallmentCount: 2, FrequencyMonths: 1, StartDate: date(2024, 1, 1)},
		"zero frequency": {TotalAmount: 100, InstallmentCount: 2, FrequencyMonths: 0, StartDate: date(2024, 1, 1)},
		"missing start":  {TotalAmount: 100, InstallmentCount: 2, FrequencyMonths: 1},
	}
	for name, params := range cases {
		t.Run(name, func(t *testing.T) {
			items, err := GenerateSchedule(params)
			require.Nil(t, items)
			require.ErrorIs(t, err, ErrInvalidScheduleParameters)
			require.True(t, errors.Is(err, shared.ErrValidation))
		})
	}
}
