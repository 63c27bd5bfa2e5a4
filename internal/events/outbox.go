package events

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"github.com/odyssey-erp/ledgercore/internal/platform/db"
	"github.com/odyssey-erp/ledgercore/internal/shared"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// maxAttempts moves a message to FAILED once reached.
const maxAttempts = 5

// PGOutbox stores events in outbox_events.
type PGOutbox struct {
	conn db.Conn
}

// NewPGOutbox constructs the PostgreSQL outbox.
func NewPGOutbox(conn db.Conn) *PGOutbox {
	return &PGOutbox{conn: conn}
}

// Append writes evt using the transaction in ctx.
func (o *PGOutbox) Append(ctx context.Context, evt Event) error {
	query, args, err := psql.Insert("outbox_events").
		Columns("id", "company_id", "event_type", "aggregate_type", "aggregate_id", "payload", "status", "attempts", "occurred_at").
		Values(evt.ID, evt.CompanyID, evt.Type, evt.AggregateType, evt.AggregateID, []byte(evt.Payload), StatusPending, 0, evt.OccurredAt).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := o.conn.Querier(ctx).Exec(ctx, query, args...); err != nil {
		return shared.Storage("events: append outbox", err)
	}
	return nil
}

// ClaimPending locks up to limit pending events. Must run inside a transaction.
func (o *PGOutbox) ClaimPending(ctx context.Context, limit int) ([]Event, error) {
	query, args, err := psql.Select("id", "company_id", "event_type", "aggregate_type", "aggregate_id", "payload", "status", "attempts", "last_error", "occurred_at", "published_at").
		From("outbox_events").
		Where(sq.Eq{"status": StatusPending}).
		OrderBy("occurred_at", "id").
		Limit(uint64(limit)).
		Suffix("FOR UPDATE SKIP LOCKED").
		ToSql()
	if err != nil {
		return nil, err
	}
	var out []Event
	if err := pgxscan.Select(ctx, o.conn.Querier(ctx), &out, query, args...); err != nil {
		return nil, shared.Storage("events: claim outbox", err)
	}
	return out, nil
}

// MarkPublished flags events as delivered.
func (o *PGOutbox) MarkPublished(ctx context.Context, ids []Event, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]any, 0, len(ids))
	for _, evt := range ids {
		keys = append(keys, evt.ID)
	}
	query, args, err := psql.Update("outbox_events").
		Set("status", StatusPublished).
		Set("published_at", at).
		Where(sq.Eq{"id": keys}).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := o.conn.Querier(ctx).Exec(ctx, query, args...); err != nil {
		return shared.Storage("events: mark published", err)
	}
	return nil
}

// MarkFailed records a delivery failure, parking the event after maxAttempts.
func (o *PGOutbox) MarkFailed(ctx context.Context, evt Event, cause error) error {
	msg := cause.Error()
	_, err := o.conn.Querier(ctx).Exec(ctx, `UPDATE outbox_events
SET attempts = attempts + 1,
    last_error = $2,
    status = CASE WHEN attempts + 1 >= $3 THEN $4 ELSE status END
WHERE id = $1`, evt.ID, msg, maxAttempts, StatusFailed)
	if err != nil {
		return shared.Storage("events: mark failed", err)
	}
	return nil
}
