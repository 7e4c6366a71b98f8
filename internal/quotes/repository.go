package quotes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ampere-erp/ampere-erp/internal/platform/db"
)

// SequenceName is the document_sequences row numbering quotes.
const SequenceName = "quote"

var quoteTxOptions = pgx.TxOptions{IsoLevel: pgx.ReadCommitted}

// PGRepository implements Repository on PostgreSQL.
type PGRepository struct {
	beginner db.TxBeginner
	q        db.DBTX
	logger   *slog.Logger
}

// NewRepository constructs a PGRepository using the provided pool.
func NewRepository(pool *pgxpool.Pool, logger *slog.Logger) *PGRepository {
	if logger == nil {
		logger = slog.Default()
	}
	if pool == nil {
		return &PGRepository{logger: logger}
	}
	return &PGRepository{beginner: pool, q: pool, logger: logger}
}

// WithTx executes fn inside a read-committed transaction so statements issued
// after GetForUpdate see rows committed while the lock was awaited.
func (r *PGRepository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	if r.beginner == nil {
		return fn(ctx, r)
	}
	return db.WithTxOptions(ctx, r.beginner, quoteTxOptions, func(tx pgx.Tx) error {
		return fn(ctx, &PGRepository{q: tx, logger: r.logger})
	})
}

// NextNumber allocates the next sequential quote number.
func (r *PGRepository) NextNumber(ctx context.Context) (int64, error) {
	var n int64
	err := r.q.QueryRow(ctx, `INSERT INTO document_sequences (name, value) VALUES ($1, 1)
ON CONFLICT (name) DO UPDATE SET value = document_sequences.value + 1
RETURNING value`, SequenceName).Scan(&n)
	return n, err
}

// ClientExists reports whether the client belongs to the firm.
func (r *PGRepository) ClientExists(ctx context.Context, clientID uuid.UUID, ownerIDs []int64) (bool, error) {
	var ok bool
	err := r.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM clients WHERE id = $1 AND owner_id = ANY($2))`, clientID, ownerIDs).Scan(&ok)
	return ok, err
}

// Insert stores the quote header and its lines.
func (r *PGRepository) Insert(ctx context.Context, q Quote) error {
	_, err := r.q.Exec(ctx, `INSERT INTO quotes (id, number, owner_id, client_id, subtotal, discount, total, observations,
	status, service_started_at, service_completed_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		q.ID, q.Number, q.OwnerID, q.ClientID, q.Subtotal, q.Discount, q.Total, q.Observations,
		string(q.Status), q.ServiceStartedAt, q.ServiceCompletedAt, q.CreatedAt, q.UpdatedAt)
	if err != nil {
		return fmt.Errorf("quotes: insert: %w", err)
	}
	return r.insertLines(ctx, q.ID, q.Services, q.Materials)
}

func (r *PGRepository) insertLines(ctx context.Context, quoteID uuid.UUID, services, materials []LineItem) error {
	batch := &pgx.Batch{}
	for i, item := range services {
		batch.Queue(`INSERT INTO quote_service_items (id, quote_id, name, quantity, unit_price, position) VALUES ($1, $2, $3, $4, $5, $6)`,
			item.ID, quoteID, item.Name, item.Quantity, item.UnitPrice, i)
	}
	for i, item := range materials {
		batch.Queue(`INSERT INTO quote_material_items (id, quote_id, name, quantity, unit_price, position) VALUES ($1, $2, $3, $4, $5, $6)`,
			item.ID, quoteID, item.Name, item.Quantity, item.UnitPrice, i)
	}
	if batch.Len() == 0 {
		return nil
	}
	return r.q.SendBatch(ctx, batch).Close()
}

const quoteSelect = `SELECT q.id, q.number, q.owner_id, q.client_id, c.name, c.phone, q.subtotal, q.discount, q.total,
	(SELECT COALESCE(SUM(p.amount), 0) FROM payments p WHERE p.quote_id = q.id),
	q.observations, q.status, q.service_started_at, q.service_completed_at, q.created_at, q.updated_at
FROM quotes q
JOIN clients c ON c.id = q.client_id`

func (r *PGRepository) scanQuote(row pgx.Row) (Quote, error) {
	var (
		q      Quote
		status string
	)
	err := row.Scan(&q.ID, &q.Number, &q.OwnerID, &q.ClientID, &q.ClientName, &q.ClientPhone, &q.Subtotal, &q.Discount, &q.Total,
		&q.TotalPaid, &q.Observations, &status, &q.ServiceStartedAt, &q.ServiceCompletedAt, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		return Quote{}, err
	}
	q.Status = r.storedStatus(q.ID, status)
	return q, nil
}

func (r *PGRepository) storedStatus(id uuid.UUID, raw string) Status {
	s := Status(raw)
	if s.Valid() {
		return s
	}
	r.logger.Warn("unknown stored quote status, treating as draft", slog.String("quote", id.String()), slog.String("status", raw))
	return StatusDraft
}

// Get loads a quote with its lines.
func (r *PGRepository) Get(ctx context.Context, id uuid.UUID, ownerIDs []int64) (Quote, error) {
	return r.get(ctx, id, ownerIDs, "")
}

// GetForUpdate loads a quote and locks its row.
// The lock is taken by its own statement so the paid sum read afterwards
// includes payments committed while waiting for it.
func (r *PGRepository) GetForUpdate(ctx context.Context, id uuid.UUID, ownerIDs []int64) (Quote, error) {
	var locked uuid.UUID
	err := r.q.QueryRow(ctx, `SELECT id FROM quotes WHERE id = $1 AND owner_id = ANY($2) FOR UPDATE`, id, ownerIDs).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return Quote{}, ErrNotFound
	}
	if err != nil {
		return Quote{}, err
	}
	return r.get(ctx, locked, ownerIDs, "")
}

func (r *PGRepository) get(ctx context.Context, id uuid.UUID, ownerIDs []int64, lock string) (Quote, error) {
	q, err := r.scanQuote(r.q.QueryRow(ctx, quoteSelect+` WHERE q.id = $1 AND q.owner_id = ANY($2)`+lock, id, ownerIDs))
	if errors.Is(err, pgx.ErrNoRows) {
		return Quote{}, ErrNotFound
	}
	if err != nil {
		return Quote{}, err
	}
	if q.Services, err = r.lines(ctx, "quote_service_items", id); err != nil {
		return Quote{}, err
	}
	if q.Materials, err = r.lines(ctx, "quote_material_items", id); err != nil {
		return Quote{}, err
	}
	return q, nil
}

func (r *PGRepository) lines(ctx context.Context, table string, quoteID uuid.UUID) ([]LineItem, error) {
	rows, err := r.q.Query(ctx, `SELECT id, name, quantity, unit_price FROM `+table+` WHERE quote_id = $1 ORDER BY position, name`, quoteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []LineItem{}
	for rows.Next() {
		var item LineItem
		if err := rows.Scan(&item.ID, &item.Name, &item.Quantity, &item.UnitPrice); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// List returns quote summaries newest first.
func (r *PGRepository) List(ctx context.Context, ownerIDs []int64, filter ListFilter, limit, offset int) ([]Summary, int, error) {
	where := []string{"q.owner_id = ANY($1)"}
	args := []any{ownerIDs}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("q.status = $%d", len(args)))
	}
	if filter.ClientID != uuid.Nil {
		args = append(args, filter.ClientID)
		where = append(where, fmt.Sprintf("q.client_id = $%d", len(args)))
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		args = append(args, "%"+s+"%")
		where = append(where, fmt.Sprintf("(c.name ILIKE $%d OR q.number::text ILIKE $%d)", len(args), len(args)))
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM quotes q JOIN clients c ON c.id = q.client_id WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	rows, err := r.q.Query(ctx, fmt.Sprintf(`SELECT q.id, q.number, q.client_id, c.name, q.total,
	(SELECT COALESCE(SUM(p.amount), 0) FROM payments p WHERE p.quote_id = q.id), q.status, q.created_at
FROM quotes q JOIN clients c ON c.id = q.client_id
WHERE %s ORDER BY q.number DESC LIMIT $%d OFFSET $%d`, clause, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Summary
	for rows.Next() {
		var (
			s      Summary
			status string
		)
		if err := rows.Scan(&s.ID, &s.Number, &s.ClientID, &s.ClientName, &s.Total, &s.TotalPaid, &status, &s.CreatedAt); err != nil {
			return nil, 0, err
		}
		s.Status = r.storedStatus(s.ID, status)
		out = append(out, s)
	}
	return out, total, rows.Err()
}

// UpdateHeader writes the mutable header columns.
func (r *PGRepository) UpdateHeader(ctx context.Context, q Quote) error {
	tag, err := r.q.Exec(ctx, `UPDATE quotes SET client_id = $2, subtotal = $3, discount = $4, total = $5, observations = $6,
	status = $7, service_started_at = $8, service_completed_at = $9, updated_at = $10
WHERE id = $1`,
		q.ID, q.ClientID, q.Subtotal, q.Discount, q.Total, q.Observations,
		string(q.Status), q.ServiceStartedAt, q.ServiceCompletedAt, q.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ReplaceLines deletes every line of the quote and inserts the given ones.
func (r *PGRepository) ReplaceLines(ctx context.Context, quoteID uuid.UUID, services, materials []LineItem) error {
	if _, err := r.q.Exec(ctx, `DELETE FROM quote_service_items WHERE quote_id = $1`, quoteID); err != nil {
		return err
	}
	if _, err := r.q.Exec(ctx, `DELETE FROM quote_material_items WHERE quote_id = $1`, quoteID); err != nil {
		return err
	}
	return r.insertLines(ctx, quoteID, services, materials)
}

// Delete removes the quote with its payments. Lines cascade.
func (r *PGRepository) Delete(ctx context.Context, id uuid.UUID) (int64, error) {
	tag, err := r.q.Exec(ctx, `DELETE FROM payments WHERE quote_id = $1`, id)
	if err != nil {
		return 0, err
	}
	res, err := r.q.Exec(ctx, `DELETE FROM quotes WHERE id = $1`, id)
	if err != nil {
		return 0, err
	}
	if res.RowsAffected() == 0 {
		return 0, ErrNotFound
	}
	return tag.RowsAffected(), nil
}
