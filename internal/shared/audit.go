package shared

import (
	"context"
	"encoding/json"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/odyssey-erp/ledgercore/internal/platform/db"
)

// AuditLog is one actor/action record in audit_logs.
type AuditLog struct {
	CompanyID int64
	ActorID   int64
	Action    string
	Entity    string
	EntityID  string
	Meta      map[string]any
	At        time.Time
}

// Validate checks the mandatory audit fields.
func (log AuditLog) Validate() error {
	if log.CompanyID <= 0 {
		return Validation("audit: company required")
	}
	if log.Action == "" || log.Entity == "" || log.EntityID == "" {
		return Validation("audit: action, entity and entity id required")
	}
	return nil
}

// Auditor persists audit records. Services call it after commit.
type Auditor interface {
	Record(ctx context.Context, log AuditLog) error
}

// AuditLogger writes records into audit_logs.
type AuditLogger struct {
	conn db.Conn
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(conn db.Conn) *AuditLogger {
	return &AuditLogger{conn: conn}
}

// Record inserts the entry. A zero At is stamped by the database.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if err := log.Validate(); err != nil {
		return err
	}
	meta := log.Meta
	if meta == nil {
		meta = map[string]any{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return Validation("audit: meta not serialisable: %v", err)
	}

	insert := sq.StatementBuilder.PlaceholderFormat(sq.Dollar).
		Insert("audit_logs").
		Columns("company_id", "actor_id", "action", "entity", "entity_id", "meta")
	values := []any{log.CompanyID, log.ActorID, log.Action, log.Entity, log.EntityID, metaJSON}
	if !log.At.IsZero() {
		insert = insert.Columns("occurred_at")
		values = append(values, log.At)
	}
	query, args, err := insert.Values(values...).ToSql()
	if err != nil {
		return Storage("audit: build insert", err)
	}
	if _, err := l.conn.Querier(ctx).Exec(ctx, query, args...); err != nil {
		return Storage("audit: insert", err)
	}
	return nil
}
