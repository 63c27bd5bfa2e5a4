package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/ledgercore/internal/inventory"
	"github.com/odyssey-erp/ledgercore/internal/platform/db"
	"github.com/odyssey-erp/ledgercore/internal/shared"
	"github.com/odyssey-erp/ledgercore/internal/storage/memory"
)

func entry(key inventory.Key, qty int64) inventory.LedgerEntry {
	return inventory.LedgerEntry{
		CompanyID:     key.CompanyID,
		ItemID:        key.ItemID,
		WarehouseID:   key.WarehouseID,
		PostedAt:      time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		ReferenceType: inventory.RefReceipt,
		QtyDelta:      decimal.NewFromInt(qty),
	}
}

func TestWithinTxRollsBackOnError(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	key := inventory.Key{CompanyID: 1, ItemID: 2, WarehouseID: 3}

	boom := errors.New("boom")
	err := store.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := store.Stock().AppendEntry(ctx, entry(key, 5)); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Zero(t, store.Counts().StockEntries)

	err = store.WithinTx(ctx, func(ctx context.Context) error {
		_, err := store.Stock().AppendEntry(ctx, entry(key, 5))
		return err
	})
	require.NoError(t, err)
	require.Equal(t, 1, store.Counts().StockEntries)
}

func TestWithinTxRollsBackOnPanic(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	key := inventory.Key{CompanyID: 1, ItemID: 2, WarehouseID: 3}

	require.Panics(t, func() {
		_ = store.WithinTx(ctx, func(ctx context.Context) error {
			_, _ = store.Stock().AppendEntry(ctx, entry(key, 1))
			panic("unexpected")
		})
	})
	require.Zero(t, store.Counts().StockEntries)

	// The lock was released.
	_, err := store.Stock().AppendEntry(ctx, entry(key, 1))
	require.NoError(t, err)
}

func TestNestedTxJoinsOuter(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	key := inventory.Key{CompanyID: 1, ItemID: 2, WarehouseID: 3}

	err := store.WithinTx(ctx, func(ctx context.Context) error {
		require.NoError(t, store.WithinTx(ctx, func(ctx context.Context) error {
			_, err := store.Stock().AppendEntry(ctx, entry(key, 1))
			return err
		}))
		return shared.Validation("abort outer")
	})
	require.Equal(t, shared.KindValidation, shared.KindOf(err))
	require.Zero(t, store.Counts().StockEntries)
}

func TestAfterCommitHooksRunOnlyOnCommit(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	var ran []string
	_ = store.WithinTx(ctx, func(ctx context.Context) error {
		db.AfterCommit(ctx, func(context.Context) { ran = append(ran, "rolled back") })
		return errors.New("fail")
	})
	require.Empty(t, ran)

	err := store.WithinTx(ctx, func(ctx context.Context) error {
		db.AfterCommit(ctx, func(hookCtx context.Context) {
			require.False(t, db.InScope(hookCtx))
			// Hooks run after the lock is released, so they may use the store.
			_, err := store.Stock().ListKeys(hookCtx, 1)
			require.NoError(t, err)
			ran = append(ran, "committed")
		})
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"committed"}, ran)
}

func TestListEntriesCursorAndOffset(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	key := inventory.Key{CompanyID: 1, ItemID: 2, WarehouseID: 3}
	other := inventory.Key{CompanyID: 1, ItemID: 9, WarehouseID: 3}

	var ids []int64
	for i := int64(1); i <= 5; i++ {
		e, err := store.Stock().AppendEntry(ctx, entry(key, i))
		require.NoError(t, err)
		ids = append(ids, e.ID)
		_, err = store.Stock().AppendEntry(ctx, entry(other, i))
		require.NoError(t, err)
	}

	page, err := store.Stock().ListEntries(ctx, inventory.LedgerQuery{CompanyID: 1, ItemID: 2, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.Equal(t, ids[:2], []int64{page[0].ID, page[1].ID})

	page, err = store.Stock().ListEntries(ctx, inventory.LedgerQuery{CompanyID: 1, ItemID: 2, Cursor: ids[1], Limit: 2})
	require.NoError(t, err)
	require.Equal(t, ids[2:4], []int64{page[0].ID, page[1].ID})

	page, err = store.Stock().ListEntries(ctx, inventory.LedgerQuery{CompanyID: 1, ItemID: 2, Offset: 4})
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Equal(t, ids[4], page[0].ID)
}

func TestIdempotencyClaimIsTransactional(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	guard := store.Idempotency()

	_ = store.WithinTx(ctx, func(ctx context.Context) error {
		require.NoError(t, guard.Claim(ctx, 1, "inventory.document", "k1"))
		return errors.New("rollback")
	})
	require.NoError(t, guard.Claim(ctx, 1, "inventory.document", "k1"))

	err := guard.Claim(ctx, 1, "inventory.document", "k1")
	require.Equal(t, shared.KindConflict, shared.KindOf(err))
	require.NoError(t, guard.Claim(ctx, 2, "inventory.document", "k1"))
}
