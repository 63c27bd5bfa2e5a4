// Package events carries domain events from committed transactions to the
// message broker through a transactional outbox.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event types emitted by the engine.
const (
	TypeJournalPosted     = "journal.posted"
	TypeJournalReversed   = "journal.reversed"
	TypeDocumentPosted    = "inventory.document.posted"
	TypePeriodClosed      = "period.closed"
	TypeOpeningBalanceSet = "period.opening_balance.set"
)

// Status tracks outbox delivery.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusPublished Status = "PUBLISHED"
	StatusFailed    Status = "FAILED"
)

// Event is one outbox row.
type Event struct {
	ID            uuid.UUID       `db:"id" json:"id"`
	CompanyID     int64           `db:"company_id" json:"companyId"`
	Type          string          `db:"event_type" json:"type"`
	AggregateType string          `db:"aggregate_type" json:"aggregateType"`
	AggregateID   string          `db:"aggregate_id" json:"aggregateId"`
	Payload       json.RawMessage `db:"payload" json:"payload"`
	Status        Status          `db:"status" json:"-"`
	Attempts      int             `db:"attempts" json:"-"`
	LastError     *string         `db:"last_error" json:"-"`
	OccurredAt    time.Time       `db:"occurred_at" json:"occurredAt"`
	PublishedAt   *time.Time      `db:"published_at" json:"-"`
}

// New builds a pending event.
func New(companyID int64, eventType, aggregateType, aggregateID string, payload any, at time.Time) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("events: marshal %s payload: %w", eventType, err)
	}
	return Event{
		ID:            uuid.New(),
		CompanyID:     companyID,
		Type:          eventType,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Payload:       raw,
		Status:        StatusPending,
		OccurredAt:    at.UTC(),
	}, nil
}

// Outbox appends events inside the caller's transaction.
type Outbox interface {
	Append(ctx context.Context, evt Event) error
}

// Emit builds and appends an event. A nil outbox is a no-op.
func Emit(ctx context.Context, outbox Outbox, companyID int64, eventType, aggregateType, aggregateID string, payload any, at time.Time) error {
	if outbox == nil {
		return nil
	}
	evt, err := New(companyID, eventType, aggregateType, aggregateID, payload, at)
	if err != nil {
		return err
	}
	return outbox.Append(ctx, evt)
}
