package inventory_test

import (
	"context"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/ledgercore/internal/inventory"
	"github.com/odyssey-erp/ledgercore/internal/shared"
	"github.com/odyssey-erp/ledgercore/internal/storage/memory"
)

func newService(t *testing.T) (*inventory.Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	svc := inventory.NewService(store.Stock(), store, inventory.ServiceConfig{}, nil, nil)
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.WithNow(func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	})
	return svc, store
}

func receipt(key inventory.Key, qty, cost string) inventory.Movement {
	c := decimal.RequireFromString(cost)
	return inventory.Movement{Key: key, QtyDelta: decimal.RequireFromString(qty), UnitCost: &c, ReferenceType: inventory.RefReceipt, ReferenceID: "R"}
}

func TestApplyMovementsIsAtomic(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	a := inventory.Key{CompanyID: 1, ItemID: 1, WarehouseID: 1}
	b := inventory.Key{CompanyID: 1, ItemID: 2, WarehouseID: 1}

	_, err := svc.ApplyMovements(ctx, []inventory.Movement{
		receipt(a, "5", "2"),
		{Key: b, QtyDelta: decimal.NewFromInt(-1), ReferenceType: inventory.RefIssue},
	})
	require.Equal(t, shared.KindInsufficientStock, shared.KindOf(err))
	require.Zero(t, store.Counts().StockEntries)

	bal, err := svc.Balance(ctx, a)
	require.NoError(t, err)
	require.True(t, bal.Qty.IsZero())
}

func TestStockLedgerRunningTotals(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	key := inventory.Key{CompanyID: 1, ItemID: 1, WarehouseID: 1}

	_, err := svc.ApplyMovement(ctx, receipt(key, "10", "100"))
	require.NoError(t, err)
	_, err = svc.ApplyMovement(ctx, receipt(key, "5", "130"))
	require.NoError(t, err)
	_, err = svc.ApplyMovement(ctx, inventory.Movement{Key: key, QtyDelta: decimal.NewFromInt(-3), ReferenceType: inventory.RefIssue})
	require.NoError(t, err)

	var entries []inventory.LedgerEntry
	for e, err := range svc.ItemStockLedger(ctx, inventory.LedgerQuery{CompanyID: 1, ItemID: 1, Limit: 2}) {
		require.NoError(t, err)
		entries = append(entries, e)
	}
	require.Len(t, entries, 3)
	require.True(t, decimal.NewFromInt(12).Equal(entries[2].RunningQty))
	require.True(t, decimal.NewFromInt(1320).Equal(entries[2].RunningValue))
	require.True(t, decimal.NewFromInt(110).Equal(entries[2].RunningAvgCost))
	for i := 1; i < len(entries); i++ {
		require.False(t, entries[i].PostedAt.Before(entries[i-1].PostedAt))
	}

	page, err := svc.Page(ctx, inventory.LedgerQuery{CompanyID: 1, ItemID: 1, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Entries, 2)
	require.Equal(t, entries[1].ID, page.NextCursor)

	page, err = svc.Page(ctx, inventory.LedgerQuery{CompanyID: 1, ItemID: 1, Limit: 2, Cursor: page.NextCursor})
	require.NoError(t, err)
	require.Len(t, page.Entries, 1)
	require.Zero(t, page.NextCursor)
}

func TestReplayMatchesAndDetectsDrift(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	key := inventory.Key{CompanyID: 1, ItemID: 1, WarehouseID: 1}
	rng := rand.New(rand.NewPCG(3, 5))

	for i := 0; i < 60; i++ {
		bal, err := svc.Balance(ctx, key)
		require.NoError(t, err)
		if bal.Qty.IsPositive() && rng.IntN(2) == 0 {
			qty := decimal.NewFromInt(rng.Int64N(bal.Qty.IntPart()) + 1)
			_, err = svc.ApplyMovement(ctx, inventory.Movement{Key: key, QtyDelta: qty.Neg(), ReferenceType: inventory.RefIssue})
		} else {
			qty := decimal.NewFromInt(rng.Int64N(20) + 1)
			cost := decimal.New(rng.Int64N(1_000_000)+1, -4)
			_, err = svc.ApplyMovement(ctx, inventory.Movement{Key: key, QtyDelta: qty, UnitCost: &cost, ReferenceType: inventory.RefReceipt})
		}
		require.NoError(t, err)
	}

	report, err := svc.Replay(ctx, key)
	require.NoError(t, err)
	require.False(t, report.Drift)
	require.Equal(t, 60, report.Entries)
	require.True(t, report.Expected.Value.Equal(report.Actual.Value))

	bal, err := svc.Balance(ctx, key)
	require.NoError(t, err)
	bal.Value = bal.Value.Add(decimal.NewFromInt(1))
	require.NoError(t, store.Stock().SaveBalance(ctx, bal))

	report, err = svc.Replay(ctx, key)
	require.NoError(t, err)
	require.True(t, report.Drift)

	keys, err := svc.Keys(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, []inventory.Key{key}, keys)
}

func TestBalanceOfUnknownKeyIsZero(t *testing.T) {
	svc, _ := newService(t)
	bal, err := svc.Balance(context.Background(), inventory.Key{CompanyID: 1, ItemID: 4, WarehouseID: 2})
	require.NoError(t, err)
	require.True(t, bal.Qty.IsZero())

	_, err = svc.Balance(context.Background(), inventory.Key{CompanyID: 1})
	require.Equal(t, shared.KindValidation, shared.KindOf(err))
}
