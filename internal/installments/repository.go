package installments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campfees/installments/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence for installments.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const selectColumns = `
	id, parent_payment_id, parent_id, payment_plan_id,
	installment_number, total_installments, amount, due_date, status,
	is_in_grace_period, grace_period_end, reminders_sent, last_reminder_sent,
	paid_at, version, created_at, updated_at`

const insertQuery = `
	INSERT INTO installments (
		id, parent_payment_id, parent_id, payment_plan_id,
		installment_number, total_installments, amount, due_date, status,
		is_in_grace_period, grace_period_end, reminders_sent, last_reminder_sent,
		paid_at, version, created_at, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, 1, NOW(), NOW())`

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Create inserts one installment.
func (r *Repository) Create(ctx context.Context, inst Installment) (uuid.UUID, error) {
	if inst.ID == uuid.Nil {
		inst.ID = uuid.New()
	}
	if err := insert(ctx, r.pool, inst); err != nil {
		return uuid.Nil, err
	}
	return inst.ID, nil
}

// CreateMany inserts a whole schedule in one transaction.
func (r *Repository) CreateMany(ctx context.Context, items []Installment) error {
	return db.WithTx(ctx, r.pool, pgx.ReadCommitted, func(tx pgx.Tx) error {
		for _, inst := range items {
			if inst.ID == uuid.Nil {
				inst.ID = uuid.New()
			}
			if err := insert(ctx, tx, inst); err != nil {
				return err
			}
		}
		return nil
	})
}

func insert(ctx context.Context, q execer, inst Installment) error {
	if err := inst.Validate(); err != nil {
		return err
	}
	var planID pgtype.Int8
	if inst.PaymentPlanID != nil {
		planID = pgtype.Int8{Int64: *inst.PaymentPlanID, Valid: true}
	}
	_, err := q.Exec(ctx, insertQuery,
		inst.ID,
		inst.ParentPaymentID,
		inst.ParentID,
		planID,
		inst.InstallmentNumber,
		inst.TotalInstallments,
		inst.Amount,
		inst.DueDate,
		inst.Status,
		inst.IsInGracePeriod,
		timestamptz(inst.GracePeriodEnd),
		inst.RemindersSent,
		timestamptz(inst.LastReminderSent),
		timestamptz(inst.PaidAt),
	)
	if err != nil {
		return insertError(err)
	}
	return nil
}

// insertError maps constraint violations onto the store's sentinel errors.
func insertError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%w: %s", ErrDuplicateInstallment, pgErr.ConstraintName)
		case "23514":
			return fmt.Errorf("%w: %s", ErrInvalidInstallment, pgErr.ConstraintName)
		}
	}
	return fmt.Errorf("installments: insert: %w", err)
}

// Get retrieves an installment by id.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Installment, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM installments WHERE id = $1`, id)
	inst, err := scanInstallment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Installment{}, ErrRecordNotFound
	}
	return inst, err
}

// Update applies patch with an optimistic version check. The row is only
// written when its version still equals expectedVersion.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, expectedVersion int64, patch Patch) (Installment, error) {
	current, err := r.Get(ctx, id)
	if err != nil {
		return Installment{}, err
	}
	if current.Version != expectedVersion {
		return Installment{}, ErrConcurrentModification
	}
	next := current
	patch.Apply(&next)
	if patch.UpdatedAt.IsZero() {
		next.UpdatedAt = time.Now()
	}
	if err := next.Validate(); err != nil {
		return Installment{}, err
	}

	row := r.pool.QueryRow(ctx, `
		UPDATE installments SET
			status = $3,
			is_in_grace_period = $4,
			grace_period_end = $5,
			reminders_sent = $6,
			last_reminder_sent = $7,
			paid_at = $8,
			updated_at = $9,
			version = version + 1
		WHERE id = $1 AND version = $2
		RETURNING `+selectColumns,
		id,
		expectedVersion,
		next.Status,
		next.IsInGracePeriod,
		timestamptz(next.GracePeriodEnd),
		next.RemindersSent,
		timestamptz(next.LastReminderSent),
		timestamptz(next.PaidAt),
		next.UpdatedAt,
	)
	updated, err := scanInstallment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Installment{}, ErrConcurrentModification
	}
	if err != nil {
		return Installment{}, fmt.Errorf("installments: update: %w", err)
	}
	return updated, nil
}

// ListByPayment returns a payment's installments ordered by number.
func (r *Repository) ListByPayment(ctx context.Context, paymentID int64) ([]Installment, error) {
	return r.list(ctx, `SELECT `+selectColumns+` FROM installments
		WHERE parent_payment_id = $1
		ORDER BY installment_number`, paymentID)
}

// ListByParent returns a parent's installments ordered by due date.
func (r *Repository) ListByParent(ctx context.Context, parentID int64) ([]Installment, error) {
	return r.list(ctx, `SELECT `+selectColumns+` FROM installments
		WHERE parent_id = $1
		ORDER BY due_date, installment_number`, parentID)
}

// ListOverdueCandidates returns pending installments due before now.
func (r *Repository) ListOverdueCandidates(ctx context.Context, now time.Time) ([]Installment, error) {
	return r.list(ctx, `SELECT `+selectColumns+` FROM installments
		WHERE status = 'pending' AND due_date < $1
		ORDER BY due_date`, now)
}

// ListGraceExpiryCandidates returns in-grace installments whose grace end
// lies before now.
func (r *Repository) ListGraceExpiryCandidates(ctx context.Context, now time.Time) ([]Installment, error) {
	return r.list(ctx, `SELECT `+selectColumns+` FROM installments
		WHERE status = 'overdue' AND is_in_grace_period AND grace_period_end < $1
		ORDER BY due_date`, now)
}

// ListDueForReminder returns rows the reminder policy should look at.
func (r *Repository) ListDueForReminder(ctx context.Context, now time.Time) ([]Installment, error) {
	return r.list(ctx, `SELECT `+selectColumns+` FROM installments
		WHERE (status = 'pending' AND reminders_sent = 0 AND due_date >= $1 AND due_date <= $2)
		   OR (status = 'overdue' AND is_in_grace_period)
		ORDER BY due_date`, now, now.Add(reminderLookahead))
}

func (r *Repository) list(ctx context.Context, query string, args ...any) ([]Installment, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("installments: query: %w", err)
	}
	defer rows.Close()

	out := make([]Installment, 0)
	for rows.Next() {
		inst, err := scanInstallment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func scanInstallment(row pgx.Row) (Installment, error) {
	var inst Installment
	var planID pgtype.Int8
	var graceEnd, lastReminder, paidAt pgtype.Timestamptz
	err := row.Scan(
		&inst.ID, &inst.ParentPaymentID, &inst.ParentID, &planID,
		&inst.InstallmentNumber, &inst.TotalInstallments, &inst.Amount, &inst.DueDate, &inst.Status,
		&inst.IsInGracePeriod, &graceEnd, &inst.RemindersSent, &lastReminder,
		&paidAt, &inst.Version, &inst.CreatedAt, &inst.UpdatedAt,
	)
	if err != nil {
		return Installment{}, err
	}
	if planID.Valid {
		inst.PaymentPlanID = &planID.Int64
	}
	inst.GracePeriodEnd = timePtr(graceEnd)
	inst.LastReminderSent = timePtr(lastReminder)
	inst.PaidAt = timePtr(paidAt)
	return inst, nil
}

func timestamptz(t *time.Time) pgtype.Timestamptz {
	if t == nil {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: *t, Valid: true}
}

func timePtr(ts pgtype.Timestamptz) *time.Time {
	if !ts.Valid {
		return nil
	}
	t := ts.Time
	return &t
}
