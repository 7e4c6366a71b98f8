package clients

import (
	"context"
	"errors"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	mdshared "github.com/ampere-erp/ampere-erp/internal/masterdata/shared"
	"github.com/ampere-erp/ampere-erp/internal/platform/db"
)

type Repository interface {
	List(ctx context.Context, ownerIDs []int64, filters mdshared.ListFilters) ([]Client, int, error)
	Get(ctx context.Context, id uuid.UUID, ownerIDs []int64) (Client, error)
	Create(ctx context.Context, c Client) error
	Update(ctx context.Context, c Client) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type repository struct {
	db db.DBTX
}

func NewRepository(q db.DBTX) Repository {
	return &repository{db: q}
}

const clientColumns = `id, owner_id, name, phone, address, email, created_at, updated_at`

var sortColumns = map[string]string{
	"name":       "name",
	"created_at": "created_at",
}

func scanClient(row pgx.Row) (Client, error) {
	var c Client
	err := row.Scan(&c.ID, &c.OwnerID, &c.Name, &c.Phone, &c.Address, &c.Email, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (r *repository) List(ctx context.Context, ownerIDs []int64, filters mdshared.ListFilters) ([]Client, int, error) {
	where := ` WHERE owner_id = ANY($1)`
	args := []any{ownerIDs}
	if filters.Search != "" {
		args = append(args, "%"+filters.Search+"%")
		n := strconv.Itoa(len(args))
		where += ` AND (name ILIKE $` + n + ` OR phone ILIKE $` + n + `)`
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM clients`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, filters.Limit(), filters.Offset())
	query := `SELECT ` + clientColumns + ` FROM clients` + where +
		` ORDER BY ` + filters.OrderBy(sortColumns, "name") +
		` LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id uuid.UUID, ownerIDs []int64) (Client, error) {
	c, err := scanClient(r.db.QueryRow(ctx, `SELECT `+clientColumns+` FROM clients WHERE id = $1 AND owner_id = ANY($2)`, id, ownerIDs))
	if errors.Is(err, pgx.ErrNoRows) {
		return Client{}, ErrNotFound
	}
	return c, err
}

func (r *repository) Create(ctx context.Context, c Client) error {
	_, err := r.db.Exec(ctx, `INSERT INTO clients (id, owner_id, name, phone, address, email, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`, c.ID, c.OwnerID, c.Name, c.Phone, c.Address, c.Email, c.CreatedAt, c.UpdatedAt)
	return err
}

func (r *repository) Update(ctx context.Context, c Client) error {
	tag, err := r.db.Exec(ctx, `UPDATE clients SET name = $2, phone = $3, address = $4, email = $5, updated_at = $6 WHERE id = $1`,
		c.ID, c.Name, c.Phone, c.Address, c.Email, c.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM clients WHERE id = $1`, id)
	if err != nil {
		return mdshared.MapWriteError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
