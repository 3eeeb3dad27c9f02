package installments

import (
	"errors"
	"fmt"

	"github.com/campfees/installments/internal/shared"
)

var (
	// ErrInvalidScheduleParameters rejects generator input.
	ErrInvalidScheduleParameters = fmt.Errorf("installments: invalid schedule parameters: %w", shared.ErrValidation)
	// ErrInvalidInstallment flags a record that breaks an invariant.
	ErrInvalidInstallment = fmt.Errorf("installments: invalid installment: %w", shared.ErrValidation)
	// ErrRecordNotFound indicates a missing installment.
	ErrRecordNotFound = fmt.Errorf("installments: record %w", shared.ErrNotFound)
	// ErrConcurrentModification is returned when the record version moved.
	ErrConcurrentModification = fmt.Errorf("installments: concurrent modification: %w", shared.ErrConflict)
	// ErrInvalidTransition rejects a transition the state machine does not allow.
	ErrInvalidTransition = fmt.Errorf("installments: invalid transition: %w", shared.ErrConflict)
	// ErrScheduleExists is returned when a payment already has installments.
	ErrScheduleExists = fmt.Errorf("installments: schedule already exists: %w", shared.ErrConflict)
	// ErrDuplicateInstallment is returned when an installment id is reused.
	ErrDuplicateInstallment = fmt.Errorf("installments: duplicate installment: %w", shared.ErrConflict)
	// ErrDeliveryFailure wraps messaging failures.
	ErrDeliveryFailure = errors.New("installments: reminder delivery failed")
	// ErrAlreadyPaid is returned by the state machine for a paid installment.
	ErrAlreadyPaid = errors.New("installments: already paid")
)
