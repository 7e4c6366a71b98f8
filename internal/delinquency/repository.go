package delinquency

import (
	"context"
	"log/slog"

	"github.com/ampere-erp/ampere-erp/internal/platform/db"
	"github.com/ampere-erp/ampere-erp/internal/quotes"
)

// PGRepository implements Repository on PostgreSQL.
type PGRepository struct {
	q      db.DBTX
	logger *slog.Logger
}

// NewRepository constructs a PGRepository.
func NewRepository(q db.DBTX, logger *slog.Logger) *PGRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PGRepository{q: q, logger: logger}
}

func receivableStatuses() []string {
	var out []string
	for _, s := range quotes.Statuses {
		if s.Receivable() {
			out = append(out, string(s))
		}
	}
	return out
}

// ListReceivables returns receivable quotes that still carry a balance.
func (r *PGRepository) ListReceivables(ctx context.Context, ownerIDs []int64) ([]DebtRow, error) {
	rows, err := r.q.Query(ctx, `SELECT q.id, q.number, q.client_id, c.name, c.phone, q.status, q.total,
	COALESCE(SUM(p.amount), 0) AS paid, q.created_at, q.service_completed_at
FROM quotes q
JOIN clients c ON c.id = q.client_id
LEFT JOIN payments p ON p.quote_id = q.id
WHERE q.owner_id = ANY($1) AND q.status = ANY($2)
GROUP BY q.id, c.id
HAVING q.total - COALESCE(SUM(p.amount), 0) > 0
ORDER BY q.number`, ownerIDs, receivableStatuses())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DebtRow
	for rows.Next() {
		var (
			row    DebtRow
			status string
		)
		if err := rows.Scan(&row.QuoteID, &row.Number, &row.ClientID, &row.ClientName, &row.ClientPhone, &status,
			&row.Total, &row.Paid, &row.CreatedAt, &row.ServiceCompletedAt); err != nil {
			return nil, err
		}
		parsed, err := quotes.ParseStatus(status)
		if err != nil {
			r.logger.Warn("unknown quote status", slog.String("quote_id", row.QuoteID.String()), slog.String("status", status))
			continue
		}
		row.Status = parsed
		out = append(out, row)
	}
	return out, rows.Err()
}
