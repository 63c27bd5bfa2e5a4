package events

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/odyssey-erp/ledgercore/internal/platform/db"
)

// Publisher delivers events to the broker.
type Publisher interface {
	Publish(ctx context.Context, batch []Event) error
}

// RelayStore is the outbox side the relay needs.
type RelayStore interface {
	ClaimPending(ctx context.Context, limit int) ([]Event, error)
	MarkPublished(ctx context.Context, batch []Event, at time.Time) error
	MarkFailed(ctx context.Context, evt Event, cause error) error
}

// Relay moves pending outbox events to the publisher.
type Relay struct {
	store     RelayStore
	publisher Publisher
	tx        db.TxRunner
	batchSize int
	logger    *zap.Logger
	now       func() time.Time
}

// NewRelay constructs a relay. batchSize defaults to 100.
func NewRelay(store RelayStore, publisher Publisher, tx db.TxRunner, batchSize int, logger *zap.Logger) *Relay {
	if batchSize <= 0 {
		batchSize = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Relay{store: store, publisher: publisher, tx: tx, batchSize: batchSize, logger: logger.Named("outbox"), now: time.Now}
}

// ProcessBatch publishes one batch and returns how many events were delivered.
// A failed publish marks every claimed event as failed and is not an error.
func (r *Relay) ProcessBatch(ctx context.Context) (int, error) {
	delivered := 0
	err := r.tx.WithinTx(ctx, func(ctx context.Context) error {
		batch, err := r.store.ClaimPending(ctx, r.batchSize)
		if err != nil || len(batch) == 0 {
			return err
		}
		if err := r.publisher.Publish(ctx, batch); err != nil {
			r.logger.Warn("publish batch failed", zap.Int("events", len(batch)), zap.Error(err))
			for _, evt := range batch {
				if markErr := r.store.MarkFailed(ctx, evt, err); markErr != nil {
					return markErr
				}
			}
			return nil
		}
		delivered = len(batch)
		return r.store.MarkPublished(ctx, batch, r.now().UTC())
	})
	return delivered, err
}
