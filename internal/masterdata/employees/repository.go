package employees

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	mdshared "github.com/ampere-erp/ampere-erp/internal/masterdata/shared"
	"github.com/ampere-erp/ampere-erp/internal/platform/db"
	"github.com/ampere-erp/ampere-erp/internal/shared"
)

type Repository interface {
	List(ctx context.Context, ownerIDs []int64, filters mdshared.ListFilters) ([]Employee, int, error)
	Get(ctx context.Context, id uuid.UUID, ownerIDs []int64) (Employee, error)
	Create(ctx context.Context, e Employee) error
	Update(ctx context.Context, e Employee) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type repository struct {
	db db.DBTX
}

func NewRepository(q db.DBTX) Repository {
	return &repository{db: q}
}

const employeeColumns = `id, owner_id, name, cpf, phone, email, position, hire_date, observations, active, created_at, updated_at`

var sortColumns = map[string]string{
	"name":      "name",
	"hire_date": "hire_date",
	"position":  "position",
}

func scanEmployee(row pgx.Row) (Employee, error) {
	var (
		e    Employee
		hire *time.Time
	)
	err := row.Scan(&e.ID, &e.OwnerID, &e.Name, &e.CPF, &e.Phone, &e.Email, &e.Position, &hire,
		&e.Observations, &e.Active, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return Employee{}, err
	}
	if hire != nil {
		d := shared.NewDate(*hire)
		e.HireDate = &d
	}
	return e, nil
}

func (r *repository) List(ctx context.Context, ownerIDs []int64, filters mdshared.ListFilters) ([]Employee, int, error) {
	where := ` WHERE owner_id = ANY($1)`
	args := []any{ownerIDs}
	if filters.Search != "" {
		args = append(args, "%"+filters.Search+"%")
		where += ` AND name ILIKE $` + strconv.Itoa(len(args))
	}
	if filters.IsActive != nil {
		args = append(args, *filters.IsActive)
		where += ` AND active = $` + strconv.Itoa(len(args))
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM employees`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, filters.Limit(), filters.Offset())
	rows, err := r.db.Query(ctx, `SELECT `+employeeColumns+` FROM employees`+where+
		` ORDER BY `+filters.OrderBy(sortColumns, "name")+
		` LIMIT $`+strconv.Itoa(len(args)-1)+` OFFSET $`+strconv.Itoa(len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Employee
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, e)
	}
	return out, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id uuid.UUID, ownerIDs []int64) (Employee, error) {
	e, err := scanEmployee(r.db.QueryRow(ctx, `SELECT `+employeeColumns+` FROM employees WHERE id = $1 AND owner_id = ANY($2)`, id, ownerIDs))
	if errors.Is(err, pgx.ErrNoRows) {
		return Employee{}, ErrNotFound
	}
	return e, err
}

func (r *repository) Create(ctx context.Context, e Employee) error {
	_, err := r.db.Exec(ctx, `INSERT INTO employees (id, owner_id, name, cpf, phone, email, position, hire_date, observations, active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		e.ID, e.OwnerID, e.Name, e.CPF, e.Phone, e.Email, e.Position, hireDate(e.HireDate), e.Observations, e.Active, e.CreatedAt, e.UpdatedAt)
	return err
}

func (r *repository) Update(ctx context.Context, e Employee) error {
	tag, err := r.db.Exec(ctx, `UPDATE employees SET name = $2, cpf = $3, phone = $4, email = $5, position = $6,
hire_date = $7, observations = $8, active = $9, updated_at = $10 WHERE id = $1`,
		e.ID, e.Name, e.CPF, e.Phone, e.Email, e.Position, hireDate(e.HireDate), e.Observations, e.Active, e.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM employees WHERE id = $1`, id)
	if err != nil {
		return mdshared.MapWriteError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func hireDate(d *shared.Date) *time.Time {
	if d == nil || d.IsZero() {
		return nil
	}
	return &d.Time
}
