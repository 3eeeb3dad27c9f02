package parents

import (
	"fmt"

	"github.com/campfees/installments/internal/shared"
)

// Parent is the party responsible for a payment.
type Parent struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// ErrNotFound indicates a missing parent record.
var ErrNotFound = fmt.Errorf("parents: parent %w", shared.ErrNotFound)
