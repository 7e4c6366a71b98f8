package audit

import (
	"context"

	"github.com/ampere-erp/ampere-erp/internal/platform/db"
)

// PGRepository reads audit_logs.
type PGRepository struct {
	q db.DBTX
}

// NewRepository constructs a PGRepository.
func NewRepository(q db.DBTX) *PGRepository {
	return &PGRepository{q: q}
}

const timelineSQL = `SELECT a.id, a.occurred_at, a.actor_id, COALESCE(u.email, ''), a.action, a.entity, a.entity_id,
	a.description, a.old_value, a.new_value, COALESCE(a.ip, '')
FROM audit_logs a
LEFT JOIN users u ON u.id = a.actor_id
WHERE ($1::timestamptz IS NULL OR a.occurred_at >= $1)
  AND ($2::timestamptz IS NULL OR a.occurred_at < $2)
  AND ($3::bigint IS NULL OR a.actor_id = $3)
  AND ($4::text IS NULL OR a.entity = $4)
  AND ($5::text IS NULL OR a.entity_id = $5)
  AND ($6::text IS NULL OR a.action = $6)
ORDER BY a.occurred_at DESC, a.id DESC
OFFSET $7 LIMIT $8`

// Timeline returns entries matching q, newest first.
func (r *PGRepository) Timeline(ctx context.Context, q Query) ([]TimelineRow, error) {
	rows, err := r.q.Query(ctx, timelineSQL, q.FromAt, q.ToAt, q.ActorID, q.Entity, q.EntityID, q.Action, q.OffsetRows, q.LimitRows)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TimelineRow
	for rows.Next() {
		var row TimelineRow
		var oldValue, newValue []byte
		if err := rows.Scan(&row.ID, &row.At, &row.ActorID, &row.Actor, &row.Action, &row.Entity, &row.EntityID,
			&row.Description, &oldValue, &newValue, &row.IP); err != nil {
			return nil, err
		}
		row.OldValue, row.NewValue = oldValue, newValue
		out = append(out, row)
	}
	return out, rows.Err()
}
