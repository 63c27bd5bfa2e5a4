package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/ledgercore/internal/events"
	"github.com/odyssey-erp/ledgercore/internal/storage/memory"
)

type capture struct {
	err     error
	batches [][]events.Event
}

func (c *capture) Publish(_ context.Context, batch []events.Event) error {
	if c.err != nil {
		return c.err
	}
	c.batches = append(c.batches, batch)
	return nil
}

func TestNewEventIsPendingAndUTC(t *testing.T) {
	at := time.Date(2026, time.January, 5, 9, 0, 0, 0, time.FixedZone("WIB", 7*3600))
	evt, err := events.New(1, events.TypeJournalPosted, "journal_entry", "42", map[string]int64{"number": 3}, at)
	require.NoError(t, err)
	require.Equal(t, events.StatusPending, evt.Status)
	require.Equal(t, time.UTC, evt.OccurredAt.Location())
	require.Equal(t, at.Unix(), evt.OccurredAt.Unix())
	require.JSONEq(t, `{"number":3}`, string(evt.Payload))

	_, err = events.New(1, events.TypeJournalPosted, "journal_entry", "42", make(chan int), at)
	require.ErrorContains(t, err, "marshal journal.posted payload")
}

func TestEmitWithoutOutboxIsNoop(t *testing.T) {
	require.NoError(t, events.Emit(context.Background(), nil, 1, events.TypePeriodClosed, "fiscal_period", "1", nil, time.Now()))
}

func TestMessagesKeyByAggregate(t *testing.T) {
	evt, err := events.New(3, events.TypeDocumentPosted, "inventory_document", "RCV-202601-00001", map[string]string{"type": "RECEIPT"}, time.Now())
	require.NoError(t, err)

	msgs, err := events.Messages([]events.Event{evt})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, "inventory_document:RCV-202601-00001", string(msgs[0].Key))

	headers := map[string]string{}
	for _, h := range msgs[0].Headers {
		headers[h.Key] = string(h.Value)
	}
	require.Equal(t, map[string]string{
		"event-id":   evt.ID.String(),
		"event-type": events.TypeDocumentPosted,
		"company-id": "3",
	}, headers)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(msgs[0].Value, &decoded))
	require.Equal(t, events.TypeDocumentPosted, decoded["type"])
	require.NotContains(t, decoded, "Status")
}

func appendEvents(t *testing.T, store *memory.Store, n int) {
	t.Helper()
	base := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	for i := range n {
		err := events.Emit(context.Background(), store.Outbox(), 1, events.TypeJournalPosted, "journal_entry",
			string(rune('a'+i)), nil, base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
	}
}

func TestRelayPublishesOldestFirst(t *testing.T) {
	store := memory.New()
	appendEvents(t, store, 3)
	pub := &capture{}
	relay := events.NewRelay(store.Outbox(), pub, store, 2, nil)

	n, err := relay.ProcessBatch(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, "a", pub.batches[0][0].AggregateID)
	require.Equal(t, "b", pub.batches[0][1].AggregateID)

	n, err = relay.ProcessBatch(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)

	n, err = relay.ProcessBatch(context.Background())
	require.NoError(t, err)
	require.Zero(t, n)
	for _, evt := range store.Outbox().Events() {
		require.Equal(t, events.StatusPublished, evt.Status)
		require.NotNil(t, evt.PublishedAt)
	}
}

func TestRelayGivesUpAfterRepeatedFailures(t *testing.T) {
	store := memory.New()
	appendEvents(t, store, 1)
	relay := events.NewRelay(store.Outbox(), &capture{err: errors.New("broker down")}, store, 10, nil)

	for range 5 {
		n, err := relay.ProcessBatch(context.Background())
		require.NoError(t, err)
		require.Zero(t, n)
	}
	evt := store.Outbox().Events()[0]
	require.Equal(t, events.StatusFailed, evt.Status)
	require.Equal(t, 5, evt.Attempts)
	require.Equal(t, "broker down", *evt.LastError)

	n, err := events.NewRelay(store.Outbox(), events.NopPublisher{}, store, 10, nil).ProcessBatch(context.Background())
	require.NoError(t, err)
	require.Zero(t, n)
}
