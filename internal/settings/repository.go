package settings

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/ampere-erp/ampere-erp/internal/platform/db"
)

// PGRepository implements Repository on PostgreSQL.
type PGRepository struct {
	q db.DBTX
}

// NewRepository constructs a PGRepository.
func NewRepository(q db.DBTX) *PGRepository {
	return &PGRepository{q: q}
}

// Get returns the most recently updated settings row among ownerIDs.
func (r *PGRepository) Get(ctx context.Context, ownerIDs []int64) (CompanySettings, error) {
	var s CompanySettings
	err := r.q.QueryRow(ctx, `SELECT owner_id, name, logo, phone, email, address, cnpj, website, additional_info,
	company_cash_percentage, updated_at
FROM company_settings WHERE owner_id = ANY($1) ORDER BY updated_at DESC LIMIT 1`, ownerIDs).Scan(
		&s.OwnerID, &s.Name, &s.Logo, &s.Phone, &s.Email, &s.Address, &s.CNPJ, &s.Website, &s.AdditionalInfo,
		&s.CompanyCashPercentage, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return CompanySettings{}, ErrNotFound
	}
	return s, err
}

// Upsert inserts or replaces the row keyed by owner id.
func (r *PGRepository) Upsert(ctx context.Context, s CompanySettings) error {
	_, err := r.q.Exec(ctx, UpsertSQL,
		s.OwnerID, s.Name, s.Logo, s.Phone, s.Email, s.Address, s.CNPJ, s.Website, s.AdditionalInfo,
		s.CompanyCashPercentage, s.UpdatedAt)
	return err
}

// UpsertSQL is shared with the backup restore.
const UpsertSQL = `INSERT INTO company_settings (owner_id, name, logo, phone, email, address, cnpj, website,
	additional_info, company_cash_percentage, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, COALESCE($11, NOW()))
ON CONFLICT (owner_id) DO UPDATE SET
	name = EXCLUDED.name,
	logo = EXCLUDED.logo,
	phone = EXCLUDED.phone,
	email = EXCLUDED.email,
	address = EXCLUDED.address,
	cnpj = EXCLUDED.cnpj,
	website = EXCLUDED.website,
	additional_info = EXCLUDED.additional_info,
	company_cash_percentage = EXCLUDED.company_cash_percentage,
	updated_at = EXCLUDED.updated_at`
