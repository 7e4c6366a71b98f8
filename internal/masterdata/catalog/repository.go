package catalog

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
	List(ctx context.Context, ownerIDs []int64, filters mdshared.ListFilters) ([]Item, int, error)
	Get(ctx context.Context, id uuid.UUID, ownerIDs []int64) (Item, error)
	Create(ctx context.Context, item Item) error
	Update(ctx context.Context, item Item) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type repository struct {
	db db.DBTX
}

func NewRepository(q db.DBTX) Repository {
	return &repository{db: q}
}

const itemColumns = `id, owner_id, kind, name, description, unit_price, unit, active, created_at, updated_at`

var sortColumns = map[string]string{
	"name":       "name",
	"unit_price": "unit_price",
	"created_at": "created_at",
}

func scanItem(row pgx.Row) (Item, error) {
	var item Item
	err := row.Scan(&item.ID, &item.OwnerID, &item.Kind, &item.Name, &item.Description, &item.UnitPrice,
		&item.Unit, &item.Active, &item.CreatedAt, &item.UpdatedAt)
	return item, err
}

func (r *repository) List(ctx context.Context, ownerIDs []int64, filters mdshared.ListFilters) ([]Item, int, error) {
	where := ` WHERE owner_id = ANY($1)`
	args := []any{ownerIDs}
	if filters.Kind != "" {
		args = append(args, filters.Kind)
		where += ` AND kind = $` + strconv.Itoa(len(args))
	}
	if filters.Search != "" {
		args = append(args, "%"+filters.Search+"%")
		where += ` AND name ILIKE $` + strconv.Itoa(len(args))
	}
	if filters.IsActive != nil {
		args = append(args, *filters.IsActive)
		where += ` AND active = $` + strconv.Itoa(len(args))
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM catalog_items`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, filters.Limit(), filters.Offset())
	rows, err := r.db.Query(ctx, `SELECT `+itemColumns+` FROM catalog_items`+where+
		` ORDER BY `+filters.OrderBy(sortColumns, "name")+
		` LIMIT $`+strconv.Itoa(len(args)-1)+` OFFSET $`+strconv.Itoa(len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, item)
	}
	return out, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id uuid.UUID, ownerIDs []int64) (Item, error) {
	item, err := scanItem(r.db.QueryRow(ctx, `SELECT `+itemColumns+` FROM catalog_items WHERE id = $1 AND owner_id = ANY($2)`, id, ownerIDs))
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, ErrNotFound
	}
	return item, err
}

func (r *repository) Create(ctx context.Context, item Item) error {
	_, err := r.db.Exec(ctx, `INSERT INTO catalog_items (id, owner_id, kind, name, description, unit_price, unit, active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		item.ID, item.OwnerID, string(item.Kind), item.Name, item.Description, item.UnitPrice, item.Unit, item.Active, item.CreatedAt, item.UpdatedAt)
	return err
}

func (r *repository) Update(ctx context.Context, item Item) error {
	tag, err := r.db.Exec(ctx, `UPDATE catalog_items SET kind = $2, name = $3, description = $4, unit_price = $5,
unit = $6, active = $7, updated_at = $8 WHERE id = $1`,
		item.ID, string(item.Kind), item.Name, item.Description, item.UnitPrice, item.Unit, item.Active, item.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM catalog_items WHERE id = $1`, id)
	if err != nil {
		return mdshared.MapWriteError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
