package shared

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditLog represents a record stored in audit_logs.
type AuditLog struct {
	ActorID     int64          `json:"actor_id"`
	Action      string         `json:"action"`
	Entity      string         `json:"entity"`
	EntityID    string         `json:"entity_id"`
	Description string         `json:"description"`
	OldValue    map[string]any `json:"old_value,omitempty"`
	NewValue    map[string]any `json:"new_value,omitempty"`
	IP          string         `json:"ip,omitempty"`
	UserAgent   string         `json:"user_agent,omitempty"`
	At          time.Time      `json:"at"`
}

// Validate checks the minimum fields every entry carries.
func (l AuditLog) Validate() error {
	if l.Action == "" || l.Entity == "" || l.EntityID == "" {
		return errors.New("audit log requires action/entity/entity_id")
	}
	return nil
}

// AuditSink accepts audit entries on a best-effort basis. Implementations must
// not surface failures to the caller.
type AuditSink interface {
	Record(ctx context.Context, log AuditLog)
}

// NewAuditEntry starts an entry stamped with the actor's request metadata.
func NewAuditEntry(actor Actor, action, entity, entityID, description string) AuditLog {
	return AuditLog{
		ActorID:     actor.UserID,
		Action:      action,
		Entity:      entity,
		EntityID:    entityID,
		Description: description,
		IP:          actor.IP,
		UserAgent:   actor.UserAgent,
		At:          time.Now().UTC(),
	}
}

// AuditLogger writes records into audit_logs.
type AuditLogger struct {
	pool *pgxpool.Pool
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(pool *pgxpool.Pool) *AuditLogger {
	return &AuditLogger{pool: pool}
}

// Write persists the log entry.
func (l *AuditLogger) Write(ctx context.Context, log AuditLog) error {
	if l == nil || l.pool == nil {
		return errors.New("audit logger not initialised")
	}
	if err := log.Validate(); err != nil {
		return err
	}
	oldJSON, err := marshalSnapshot(log.OldValue)
	if err != nil {
		return err
	}
	newJSON, err := marshalSnapshot(log.NewValue)
	if err != nil {
		return err
	}
	var at *time.Time
	if !log.At.IsZero() {
		at = &log.At
	}
	_, err = l.pool.Exec(ctx, `INSERT INTO audit_logs (actor_id, action, entity, entity_id, description, old_value, new_value, ip, user_agent, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), NULLIF($9, ''), COALESCE($10, NOW()))`,
		log.ActorID, log.Action, log.Entity, log.EntityID, log.Description, oldJSON, newJSON, log.IP, log.UserAgent, at)
	return err
}

func marshalSnapshot(v map[string]any) ([]byte, error) {
	if len(v) == 0 {
		return nil, nil
	}
	return json.Marshal(v)
}

// DiscardAudit drops every entry. Useful for tools that run without a sink.
type DiscardAudit struct{}

// Record implements AuditSink.
func (DiscardAudit) Record(context.Context, AuditLog) {}
