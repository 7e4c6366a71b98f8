package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ampere-erp/ampere-erp/internal/platform/db"
	"github.com/ampere-erp/ampere-erp/internal/shared"
)

// paymentTxOptions keeps each statement on a fresh snapshot, so SumPayments
// sees every payment committed before LockQuote was granted. Under
// RepeatableRead the snapshot predates the lock wait and a concurrent insert
// would be missed.
var paymentTxOptions = pgx.TxOptions{IsoLevel: pgx.ReadCommitted}

// PGRepository implements Repository on PostgreSQL.
type PGRepository struct {
	beginner db.TxBeginner
	q        db.DBTX
}

// NewRepository constructs a PGRepository using the provided pool.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	if pool == nil {
		return &PGRepository{}
	}
	return &PGRepository{beginner: pool, q: pool}
}

// WithTx executes fn inside a read-committed transaction. The quote row lock
// taken by LockQuote serialises writers of the same quote.
func (r *PGRepository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	if r.beginner == nil {
		return fn(ctx, r)
	}
	return db.WithTxOptions(ctx, r.beginner, paymentTxOptions, func(tx pgx.Tx) error {
		return fn(ctx, &PGRepository{q: tx})
	})
}

// LockQuote reads the quote total under a row lock.
func (r *PGRepository) LockQuote(ctx context.Context, quoteID uuid.UUID, ownerIDs []int64) (QuoteBalance, error) {
	var b QuoteBalance
	err := r.q.QueryRow(ctx, `SELECT id, number, total FROM quotes
WHERE id = $1 AND owner_id = ANY($2) FOR UPDATE`, quoteID, ownerIDs).Scan(&b.ID, &b.Number, &b.Total)
	if errors.Is(err, pgx.ErrNoRows) {
		return QuoteBalance{}, ErrQuoteNotFound
	}
	return b, err
}

// SumPayments totals the payments of a quote.
func (r *PGRepository) SumPayments(ctx context.Context, quoteID, exclude uuid.UUID) (float64, error) {
	var sum float64
	err := r.q.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0) FROM payments
WHERE quote_id = $1 AND ($2::uuid IS NULL OR id <> $2)`, quoteID, nullableID(exclude)).Scan(&sum)
	return sum, err
}

const paymentColumns = `p.id, p.quote_id, q.number, c.name, p.owner_id, p.amount, p.payment_date,
	p.payment_method, p.observations, p.created_at, p.updated_at`

const paymentFrom = ` FROM payments p
JOIN quotes q ON q.id = p.quote_id
JOIN clients c ON c.id = q.client_id`

func scanPayment(row pgx.Row) (Payment, error) {
	var (
		p    Payment
		date time.Time
	)
	if err := row.Scan(&p.ID, &p.QuoteID, &p.QuoteNumber, &p.ClientName, &p.OwnerID, &p.Amount, &date,
		&p.PaymentMethod, &p.Observations, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return Payment{}, err
	}
	p.PaymentDate = shared.NewDate(date)
	return p, nil
}

// Get loads a payment with its quote number.
func (r *PGRepository) Get(ctx context.Context, id uuid.UUID, ownerIDs []int64) (Payment, error) {
	p, err := scanPayment(r.q.QueryRow(ctx, `SELECT `+paymentColumns+paymentFrom+`
WHERE p.id = $1 AND p.owner_id = ANY($2)`, id, ownerIDs))
	if errors.Is(err, pgx.ErrNoRows) {
		return Payment{}, ErrNotFound
	}
	return p, err
}

// List returns payments newest first.
func (r *PGRepository) List(ctx context.Context, ownerIDs []int64, filter ListFilter, limit, offset int) ([]Payment, int, error) {
	where := []string{"p.owner_id = ANY($1)"}
	args := []any{ownerIDs}
	add := func(clause string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filter.QuoteID != uuid.Nil {
		add("p.quote_id = $%d", filter.QuoteID)
	}
	if filter.Method != "" {
		add("p.payment_method = $%d", string(filter.Method))
	}
	if !filter.From.IsZero() {
		add("p.payment_date >= $%d", filter.From.Time)
	}
	if !filter.To.IsZero() {
		add("p.payment_date <= $%d", filter.To.Time)
	}
	cond := " WHERE " + strings.Join(where, " AND ")

	var total int
	if err := r.q.QueryRow(ctx, `SELECT COUNT(*)`+paymentFrom+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	rows, err := r.q.Query(ctx, `SELECT `+paymentColumns+paymentFrom+cond+
		fmt.Sprintf(" ORDER BY p.payment_date DESC, p.created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

// Insert stores a new payment.
func (r *PGRepository) Insert(ctx context.Context, p Payment) error {
	_, err := r.q.Exec(ctx, `INSERT INTO payments (id, quote_id, owner_id, amount, payment_date, payment_method, observations, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.ID, p.QuoteID, p.OwnerID, p.Amount, p.PaymentDate.Time, string(p.PaymentMethod), p.Observations, p.CreatedAt, p.UpdatedAt)
	return err
}

// Update rewrites the editable fields.
func (r *PGRepository) Update(ctx context.Context, p Payment) error {
	tag, err := r.q.Exec(ctx, `UPDATE payments SET amount = $2, payment_date = $3, payment_method = $4,
observations = $5, updated_at = $6 WHERE id = $1`,
		p.ID, p.Amount, p.PaymentDate.Time, string(p.PaymentMethod), p.Observations, p.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a payment.
func (r *PGRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM payments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func nullableID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}
