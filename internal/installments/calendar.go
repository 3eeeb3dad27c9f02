package installments

import "time"

// civilDate truncates t to its calendar date in loc, expressed in UTC so
// day arithmetic is free of DST shifts.
func civilDate(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// daysBetween counts calendar days from a to b in loc. It is negative when b
// falls on an earlier date.
func daysBetween(a, b time.Time, loc *time.Location) int {
	return int(civilDate(b, loc).Sub(civilDate(a, loc)).Hours() / 24)
}

func sameDay(a, b time.Time, loc *time.Location) bool {
	return civilDate(a, loc).Equal(civilDate(b, loc))
}

// addMonthsClamped advances start by months calendar months. When the target
// month is shorter than start's day of month the day is clamped to the last
// day of that month, so Jan 31 + 1 month is Feb 28 (or 29).
func addMonthsClamped(start time.Time, months int) time.Time {
	y, m, d := start.Date()
	idx := int(m) - 1 + months
	year := y + floorDiv(idx, 12)
	month := time.Month(idx - floorDiv(idx, 12)*12 + 1)
	if last := daysIn(year, month); d > last {
		d = last
	}
	return time.Date(year, month, d, start.Hour(), start.Minute(), start.Second(), start.Nanosecond(), start.Location())
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
