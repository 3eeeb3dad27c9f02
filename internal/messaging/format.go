package messaging

import (
	"fmt"
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// FormatAmount renders an amount in minor units with the currency symbol.
// Unknown currency codes fall back to USD.
func FormatAmount(cents int64, code string) string {
	unit, err := currency.ParseISO(code)
	if err != nil {
		unit = currency.USD
	}
	p := message.NewPrinter(language.English)
	return p.Sprint(currency.Symbol(unit.Amount(float64(cents) / 100)))
}

// Subject returns the message subject for a reminder.
func Subject(r Reminder) string {
	switch r.Kind {
	case KindPreDue:
		return "Upcoming installment payment reminder"
	case KindGraceFinal:
		return "Final notice: installment grace period ends today"
	default:
		return "Overdue installment payment notification"
	}
}

// Body renders the plain text message body for a reminder.
func Body(r Reminder, currencyCode string) string {
	var b strings.Builder
	name := r.Recipient.Name
	if name == "" {
		name = "parent"
	}
	fmt.Fprintf(&b, "Dear %s,\n\n", name)

	amount := FormatAmount(r.Amount, currencyCode)
	due := r.DueDate.Format("2006-01-02")
	switch r.Kind {
	case KindPreDue:
		fmt.Fprintf(&b, "Installment %d of %d (%s) is due on %s, in %d days.\n",
			r.InstallmentNumber, r.TotalInstallments, amount, due, r.DaysRemaining)
	case KindGraceFinal:
		fmt.Fprintf(&b, "Installment %d of %d (%s) was due on %s and is %d days overdue.\n",
			r.InstallmentNumber, r.TotalInstallments, amount, due, r.DaysOverdue)
		b.WriteString("Today is the last day of the grace period. Unpaid installments are then marked as failed.\n")
	default:
		fmt.Fprintf(&b, "Installment %d of %d (%s) was due on %s and is %d days overdue.\n",
			r.InstallmentNumber, r.TotalInstallments, amount, due, r.DaysOverdue)
		if !r.GracePeriodEnd.IsZero() {
			fmt.Fprintf(&b, "Please pay before the grace period ends on %s.\n", r.GracePeriodEnd.Format("2006-01-02"))
		}
	}
	b.WriteString("\nThank you.\n")
	return b.String()
}
