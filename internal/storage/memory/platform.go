package memory

import (
	"context"
	"slices"
	"sort"
	"time"

	"github.com/odyssey-erp/ledgercore/internal/events"
	"github.com/odyssey-erp/ledgercore/internal/shared"
)

// outboxMaxAttempts parks an event as FAILED, matching the PostgreSQL outbox.
const outboxMaxAttempts = 5

// Outbox implements events.Outbox and events.RelayStore.
type Outbox struct{ s *Store }

var (
	_ events.Outbox     = (*Outbox)(nil)
	_ events.RelayStore = (*Outbox)(nil)
)

func (o *Outbox) Append(ctx context.Context, evt events.Event) error {
	return o.s.do(ctx, func(st *state) error {
		evt.Status = events.StatusPending
		st.outbox = append(st.outbox, evt)
		return nil
	})
}

func (o *Outbox) ClaimPending(ctx context.Context, limit int) ([]events.Event, error) {
	var out []events.Event
	err := o.s.do(ctx, func(st *state) error {
		for _, evt := range st.outbox {
			if evt.Status == events.StatusPending {
				out = append(out, evt)
			}
		}
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].OccurredAt.Before(out[j].OccurredAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

func (o *Outbox) MarkPublished(ctx context.Context, batch []events.Event, at time.Time) error {
	return o.s.do(ctx, func(st *state) error {
		for _, evt := range batch {
			for i := range st.outbox {
				if st.outbox[i].ID == evt.ID {
					published := at
					st.outbox[i].Status = events.StatusPublished
					st.outbox[i].PublishedAt = &published
				}
			}
		}
		return nil
	})
}

func (o *Outbox) MarkFailed(ctx context.Context, evt events.Event, cause error) error {
	return o.s.do(ctx, func(st *state) error {
		for i := range st.outbox {
			if st.outbox[i].ID != evt.ID {
				continue
			}
			msg := cause.Error()
			st.outbox[i].Attempts++
			st.outbox[i].LastError = &msg
			if st.outbox[i].Attempts >= outboxMaxAttempts {
				st.outbox[i].Status = events.StatusFailed
			}
		}
		return nil
	})
}

// Events returns every stored event in append order.
func (o *Outbox) Events() []events.Event {
	var out []events.Event
	_ = o.s.do(context.Background(), func(st *state) error {
		out = slices.Clone(st.outbox)
		return nil
	})
	return out
}

// Audit implements shared.Auditor.
type Audit struct{ s *Store }

var _ shared.Auditor = (*Audit)(nil)

func (a *Audit) Record(ctx context.Context, log shared.AuditLog) error {
	if err := log.Validate(); err != nil {
		return err
	}
	return a.s.do(ctx, func(st *state) error {
		if log.At.IsZero() {
			log.At = a.s.stamp()
		}
		st.audit = append(st.audit, log)
		return nil
	})
}

// Logs returns the recorded audit entries.
func (a *Audit) Logs() []shared.AuditLog {
	var out []shared.AuditLog
	_ = a.s.do(context.Background(), func(st *state) error {
		out = slices.Clone(st.audit)
		return nil
	})
	return out
}

// Idempotency implements shared.IdempotencyGuard.
type Idempotency struct{ s *Store }

var _ shared.IdempotencyGuard = (*Idempotency)(nil)

func (i *Idempotency) Claim(ctx context.Context, companyID int64, module, key string) error {
	if key == "" || module == "" {
		return shared.Validation("idempotency key and module required")
	}
	return i.s.do(ctx, func(st *state) error {
		k := claimKey{companyID, module, key}
		if _, ok := st.claims[k]; ok {
			return shared.Conflict("request %s already processed", key)
		}
		st.claims[k] = struct{}{}
		return nil
	})
}
