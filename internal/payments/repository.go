package payments

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed access to payment records.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetPayment loads a payment record.
func (r *Repository) GetPayment(ctx context.Context, id int64) (Payment, error) {
	const query = `
		SELECT id, parent_id, total_amount, currency, status, paid_at, created_at, updated_at
		FROM payments
		WHERE id = $1`

	var p Payment
	var paidAt pgtype.Timestamptz
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.ParentID, &p.TotalAmount, &p.Currency, &p.Status, &paidAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Payment{}, ErrNotFound
	}
	if err != nil {
		return Payment{}, err
	}
	if paidAt.Valid {
		p.PaidAt = &paidAt.Time
	}
	return p, nil
}

// UpdatePaymentStatus moves the payment to status. It reports whether a row
// actually changed, so concurrent callers flip it exactly once.
func (r *Repository) UpdatePaymentStatus(ctx context.Context, id int64, status Status, paidAt time.Time) (bool, error) {
	var paid pgtype.Timestamptz
	if status == StatusPaid {
		paid = pgtype.Timestamptz{Time: paidAt, Valid: true}
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE payments
		SET status = $2, paid_at = $3, updated_at = NOW()
		WHERE id = $1 AND status <> $2`, id, status, paid)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetPayment(ctx, id); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}
