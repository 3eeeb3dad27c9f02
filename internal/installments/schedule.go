package installments

import (
	"fmt"
	"time"
)

// ScheduleParams are the generator inputs.
type ScheduleParams struct {
	TotalAmount      int64
	InstallmentCount int
	FrequencyMonths  int
	StartDate        time.Time
}

// Validate checks the generator inputs.
func (p ScheduleParams) Validate() error {
	switch {
	case p.InstallmentCount <= 0:
		return fmt.Errorf("%w: installment count must be positive", ErrInvalidScheduleParameters)
	case p.TotalAmount < 0:
		return fmt.Errorf("%w: total amount must not be negative", ErrInvalidScheduleParameters)
	case p.FrequencyMonths <= 0:
		return fmt.Errorf("%w: frequency must be at least one month", ErrInvalidScheduleParameters)
	case p.StartDate.IsZero():
		return fmt.Errorf("%w: start date required", ErrInvalidScheduleParameters)
	}
	return nil
}

// GenerateSchedule splits TotalAmount into InstallmentCount pending
// installments. Every installment gets floor(total/count); the remainder goes
// to the first one. Due dates step FrequencyMonths calendar months from
// StartDate, clamping the day to short months.
func GenerateSchedule(p ScheduleParams) ([]Installment, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	count := int64(p.InstallmentCount)
	base := p.TotalAmount / count
	remainder := p.TotalAmount % count

	out := make([]Installment, 0, p.InstallmentCount)
	for i := 0; i < p.InstallmentCount; i++ {
		amount := base
		if i == 0 {
			amount += remainder
		}
		out = append(out, Installment{
			InstallmentNumber: i + 1,
			TotalInstallments: p.InstallmentCount,
			Amount:            amount,
			DueDate:           addMonthsClamped(p.StartDate, i*p.FrequencyMonths),
			Status:            StatusPending,
		})
	}
	return out, nil
}

// CreateSchedule is the positional form of GenerateSchedule.
func CreateSchedule(totalAmount int64, installmentCount, frequencyMonths int, startDate time.Time) ([]Installment, error) {
	return GenerateSchedule(ScheduleParams{
		TotalAmount:      totalAmount,
		InstallmentCount: installmentCount,
		FrequencyMonths:  frequencyMonths,
		StartDate:        startDate,
	})
}
