package installments

import "sort"

// Summary is the derived state of one payment's installment set.
type Summary struct {
	Count           int          `json:"count"`
	TotalAmount     int64        `json:"total_amount"`
	PaidAmount      int64        `json:"paid_amount"`
	RemainingAmount int64        `json:"remaining_amount"`
	ProgressPercent float64      `json:"progress_percent"`
	PaidCount       int          `json:"paid_count"`
	PendingCount    int          `json:"pending_count"`
	OverdueCount    int          `json:"overdue_count"`
	FailedCount     int          `json:"failed_count"`
	NextDue         *Installment `json:"next_due,omitempty"`
	AllPaid         bool         `json:"all_paid"`
}

// Summarize derives totals, progress and the next unpaid installment. The
// next due installment is the earliest unpaid, non-failed one.
func Summarize(items []Installment) Summary {
	var s Summary
	s.Count = len(items)

	sorted := make([]Installment, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].InstallmentNumber < sorted[j].InstallmentNumber
	})

	for i := range sorted {
		inst := sorted[i]
		s.TotalAmount += inst.Amount
		switch inst.Status {
		case StatusPaid:
			s.PaidCount++
			s.PaidAmount += inst.Amount
		case StatusPending:
			s.PendingCount++
		case StatusOverdue:
			s.OverdueCount++
		case StatusFailed:
			s.FailedCount++
		}
		if inst.Status == StatusPending || inst.Status == StatusOverdue {
			if s.NextDue == nil || inst.DueDate.Before(s.NextDue.DueDate) {
				next := inst
				s.NextDue = &next
			}
		}
	}

	s.RemainingAmount = s.TotalAmount - s.PaidAmount
	switch {
	case s.TotalAmount > 0:
		s.ProgressPercent = float64(s.PaidAmount) * 100 / float64(s.TotalAmount)
	case s.Count > 0 && s.PaidCount == s.Count:
		s.ProgressPercent = 100
	}
	s.AllPaid = s.Count > 0 && s.PaidCount == s.Count
	return s
}
