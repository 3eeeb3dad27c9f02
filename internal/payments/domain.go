package payments

import (
	"fmt"
	"time"

	"github.com/campfees/installments/internal/shared"
)

// Status enumerates payment record statuses.
type Status string

const (
	StatusPending Status = "pending"
	StatusPaid    Status = "paid"
)

// Payment is the receivable an installment schedule is split from.
type Payment struct {
	ID          int64
	ParentID    int64
	TotalAmount int64
	Currency    string
	Status      Status
	PaidAt      *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ErrNotFound indicates a missing payment record.
var ErrNotFound = fmt.Errorf("payments: payment %w", shared.ErrNotFound)
