package closing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ampere-erp/ampere-erp/internal/platform/db"
	"github.com/ampere-erp/ampere-erp/internal/shared"
)

// PGRepository implements Repository on PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
	q    db.DBTX
}

// NewRepository constructs a PGRepository using the provided pool.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool, q: pool}
}

// WithTx executes fn inside a repeatable-read transaction.
func (r *PGRepository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	if r.pool == nil {
		return fn(ctx, r)
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &PGRepository{q: tx})
	})
}

// LockClosings takes a table lock held until the transaction ends.
func (r *PGRepository) LockClosings(ctx context.Context) error {
	if r.pool != nil {
		return errors.New("closing: lock requires a transaction")
	}
	_, err := r.q.Exec(ctx, `LOCK TABLE cash_closings IN SHARE ROW EXCLUSIVE MODE`)
	return err
}

const closingColumns = `id, owner_id, period_type, start_date, end_date, total_profit, company_cash,
	total_revenue, total_expenses, observations, created_at`

func scanClosing(row pgx.Row) (CashClosing, error) {
	var (
		c          CashClosing
		start, end time.Time
	)
	err := row.Scan(&c.ID, &c.OwnerID, &c.PeriodType, &start, &end, &c.TotalProfit, &c.CompanyCash,
		&c.TotalRevenue, &c.TotalExpenses, &c.Observations, &c.CreatedAt)
	if err != nil {
		return CashClosing{}, err
	}
	c.StartDate = shared.NewDate(start)
	c.EndDate = shared.NewDate(end)
	return c, nil
}

// LastClosing returns the closing with the latest end date, or nil.
func (r *PGRepository) LastClosing(ctx context.Context, ownerIDs []int64) (*CashClosing, error) {
	row := r.q.QueryRow(ctx, `SELECT `+closingColumns+` FROM cash_closings
WHERE owner_id = ANY($1) ORDER BY end_date DESC, created_at DESC LIMIT 1`, ownerIDs)
	c, err := scanClosing(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	closings := []CashClosing{c}
	if err := r.attachShares(ctx, closings); err != nil {
		return nil, err
	}
	return &closings[0], nil
}

// GetClosing loads a closing by id.
func (r *PGRepository) GetClosing(ctx context.Context, id uuid.UUID, ownerIDs []int64) (CashClosing, error) {
	row := r.q.QueryRow(ctx, `SELECT `+closingColumns+` FROM cash_closings WHERE id = $1 AND owner_id = ANY($2)`, id, ownerIDs)
	c, err := scanClosing(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return CashClosing{}, ErrNotFound
	}
	if err != nil {
		return CashClosing{}, err
	}
	closings := []CashClosing{c}
	if err := r.attachShares(ctx, closings); err != nil {
		return CashClosing{}, err
	}
	return closings[0], nil
}

// ListClosings returns a page of closings newest first and the total count.
func (r *PGRepository) ListClosings(ctx context.Context, ownerIDs []int64, limit, offset int) ([]CashClosing, int, error) {
	var total int
	if err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM cash_closings WHERE owner_id = ANY($1)`, ownerIDs).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.q.Query(ctx, `SELECT `+closingColumns+` FROM cash_closings
WHERE owner_id = ANY($1) ORDER BY end_date DESC, created_at DESC LIMIT $2 OFFSET $3`, ownerIDs, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []CashClosing
	for rows.Next() {
		c, err := scanClosing(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if err := r.attachShares(ctx, out); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *PGRepository) attachShares(ctx context.Context, closings []CashClosing) error {
	if len(closings) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, 0, len(closings))
	index := make(map[uuid.UUID]int, len(closings))
	for i, c := range closings {
		ids = append(ids, c.ID)
		index[c.ID] = i
	}
	rows, err := r.q.Query(ctx, `SELECT closing_id, partner_id, profit FROM cash_closing_shares
WHERE closing_id = ANY($1) ORDER BY partner_id`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			closingID uuid.UUID
			share     PartnerProfit
		)
		if err := rows.Scan(&closingID, &share.PartnerID, &share.Profit); err != nil {
			return err
		}
		if i, ok := index[closingID]; ok {
			closings[i].PartnerProfits = append(closings[i].PartnerProfits, share)
		}
	}
	return rows.Err()
}

// InsertClosing stores a closing and its partner shares.
func (r *PGRepository) InsertClosing(ctx context.Context, c CashClosing) error {
	_, err := r.q.Exec(ctx, `INSERT INTO cash_closings (id, owner_id, period_type, start_date, end_date, total_profit,
	company_cash, total_revenue, total_expenses, observations, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		c.ID, c.OwnerID, string(c.PeriodType), c.StartDate.Time, c.EndDate.Time, c.TotalProfit,
		c.CompanyCash, c.TotalRevenue, c.TotalExpenses, c.Observations, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("closing: insert: %w", err)
	}
	batch := &pgx.Batch{}
	for _, p := range c.PartnerProfits {
		batch.Queue(`INSERT INTO cash_closing_shares (closing_id, partner_id, profit) VALUES ($1, $2, $3)`, c.ID, p.PartnerID, p.Profit)
	}
	if batch.Len() == 0 {
		return nil
	}
	return r.q.SendBatch(ctx, batch).Close()
}

// ListRevenueQuotes returns completed quotes finished in [from, to) with the
// sum of their payments.
func (r *PGRepository) ListRevenueQuotes(ctx context.Context, ownerIDs []int64, from, to time.Time) ([]RevenueQuote, error) {
	rows, err := r.q.Query(ctx, `SELECT q.total, COALESCE(SUM(p.amount), 0)
FROM quotes q
LEFT JOIN payments p ON p.quote_id = q.id
WHERE q.owner_id = ANY($1)
  AND q.status = 'completed'
  AND COALESCE(q.service_completed_at, q.created_at) >= $2
  AND COALESCE(q.service_completed_at, q.created_at) < $3
GROUP BY q.id, q.total`, ownerIDs, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RevenueQuote
	for rows.Next() {
		var q RevenueQuote
		if err := rows.Scan(&q.Total, &q.Paid); err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

// ListExpenses returns expenses dated inside the window.
func (r *PGRepository) ListExpenses(ctx context.Context, ownerIDs []int64, w Window) ([]Expense, error) {
	rows, err := r.q.Query(ctx, `SELECT category, amount FROM expenses
WHERE owner_id = ANY($1) AND date BETWEEN $2 AND $3`, ownerIDs, w.Start.Time, w.End.Time)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Expense
	for rows.Next() {
		var e Expense
		if err := rows.Scan(&e.Category, &e.Amount); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
