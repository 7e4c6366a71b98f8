package expenses

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ampere-erp/ampere-erp/internal/platform/db"
	"github.com/ampere-erp/ampere-erp/internal/shared"
)

// PGRepository implements Repository on PostgreSQL.
type PGRepository struct {
	q db.DBTX
}

// NewRepository constructs a PGRepository.
func NewRepository(q db.DBTX) *PGRepository {
	return &PGRepository{q: q}
}

const expenseColumns = `e.id, e.owner_id, e.category, e.description, e.amount, e.date, e.employee_id, emp.name,
	e.created_at, e.updated_at`

const expenseFrom = ` FROM expenses e LEFT JOIN employees emp ON emp.id = e.employee_id`

func scanExpense(row pgx.Row) (Expense, error) {
	var (
		e    Expense
		date time.Time
	)
	if err := row.Scan(&e.ID, &e.OwnerID, &e.Category, &e.Description, &e.Amount, &date, &e.EmployeeID,
		&e.EmployeeName, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return Expense{}, err
	}
	e.Date = shared.NewDate(date)
	return e, nil
}

// Get loads one expense.
func (r *PGRepository) Get(ctx context.Context, id uuid.UUID, ownerIDs []int64) (Expense, error) {
	e, err := scanExpense(r.q.QueryRow(ctx, `SELECT `+expenseColumns+expenseFrom+` WHERE e.id = $1 AND e.owner_id = ANY($2)`, id, ownerIDs))
	if errors.Is(err, pgx.ErrNoRows) {
		return Expense{}, ErrNotFound
	}
	return e, err
}

// List returns a filtered page of expenses.
func (r *PGRepository) List(ctx context.Context, ownerIDs []int64, filter ListFilter, limit, offset int) ([]Expense, int, error) {
	where := []string{"e.owner_id = ANY($1)"}
	args := []any{ownerIDs}
	add := func(clause string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filter.Category != "" {
		add("e.category = $%d", filter.Category)
	}
	if filter.EmployeeID != uuid.Nil {
		add("e.employee_id = $%d", filter.EmployeeID)
	}
	if !filter.From.IsZero() {
		add("e.date >= $%d", filter.From.Time)
	}
	if !filter.To.IsZero() {
		add("e.date <= $%d", filter.To.Time)
	}
	cond := " WHERE " + strings.Join(where, " AND ")

	var total int
	if err := r.q.QueryRow(ctx, `SELECT COUNT(*)`+expenseFrom+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, limit, offset)
	rows, err := r.q.Query(ctx, `SELECT `+expenseColumns+expenseFrom+cond+
		fmt.Sprintf(" ORDER BY e.date DESC, e.created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	out, err := collect(rows)
	return out, total, err
}

// ListRange returns every expense dated within [from, to].
func (r *PGRepository) ListRange(ctx context.Context, ownerIDs []int64, from, to shared.Date) ([]Expense, error) {
	rows, err := r.q.Query(ctx, `SELECT `+expenseColumns+expenseFrom+`
WHERE e.owner_id = ANY($1) AND e.date BETWEEN $2 AND $3 ORDER BY e.date`, ownerIDs, from.Time, to.Time)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func collect(rows pgx.Rows) ([]Expense, error) {
	defer rows.Close()
	var out []Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Insert stores an expense.
func (r *PGRepository) Insert(ctx context.Context, e Expense) error {
	_, err := r.q.Exec(ctx, `INSERT INTO expenses (id, owner_id, category, description, amount, date, employee_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.OwnerID, e.Category, e.Description, e.Amount, e.Date.Time, e.EmployeeID, e.CreatedAt, e.UpdatedAt)
	return err
}

// Update rewrites an expense.
func (r *PGRepository) Update(ctx context.Context, e Expense) error {
	tag, err := r.q.Exec(ctx, `UPDATE expenses SET category = $2, description = $3, amount = $4, date = $5,
employee_id = $6, updated_at = $7 WHERE id = $1`,
		e.ID, e.Category, e.Description, e.Amount, e.Date.Time, e.EmployeeID, e.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes an expense.
func (r *PGRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM expenses WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
