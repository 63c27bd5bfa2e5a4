package inventory

import (
	"context"
	"iter"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/odyssey-erp/ledgercore/internal/observability"
	"github.com/odyssey-erp/ledgercore/internal/platform/db"
	"github.com/odyssey-erp/ledgercore/internal/shared"
)

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	AllowNegativeStock bool
}

// Service owns stock balances and the stock ledger.
type Service struct {
	repo    Repository
	tx      db.TxRunner
	policy  Policy
	metrics *observability.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewService builds Service. metrics and logger may be nil.
func NewService(repo Repository, tx db.TxRunner, cfg ServiceConfig, metrics *observability.Metrics, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:    repo,
		tx:      tx,
		policy:  Policy{AllowNegative: cfg.AllowNegativeStock},
		metrics: metrics,
		logger:  logger.Named("inventory"),
		now:     time.Now,
	}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Lock takes the row locks of keys in sorted order. Callers that derive one
// movement from another lock the whole set first and then apply movements
// one by one.
func (s *Service) Lock(ctx context.Context, keys []Key) error {
	for _, k := range keys {
		if err := validKey(k); err != nil {
			return err
		}
	}
	_, err := s.repo.LockBalances(ctx, sortKeys(keys))
	return err
}

// ApplyMovements locks every key in sorted order and then applies the
// movements in the given order. It joins the caller's transaction.
func (s *Service) ApplyMovements(ctx context.Context, movements []Movement) ([]LedgerEntry, error) {
	if len(movements) == 0 {
		return nil, nil
	}
	keys := make([]Key, 0, len(movements))
	for _, m := range movements {
		if err := validKey(m.Key); err != nil {
			return nil, err
		}
		keys = append(keys, m.Key)
	}
	var entries []LedgerEntry
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		balances, err := s.repo.LockBalances(ctx, sortKeys(keys))
		if err != nil {
			return err
		}
		entries = make([]LedgerEntry, 0, len(movements))
		for _, m := range movements {
			entry, next, err := s.apply(ctx, balances[m.Key], m)
			if err != nil {
				return err
			}
			balances[m.Key] = next
			entries = append(entries, entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.observe(ctx, entries)
	return entries, nil
}

// ApplyMovement applies a single movement under its key lock.
func (s *Service) ApplyMovement(ctx context.Context, m Movement) (LedgerEntry, error) {
	entries, err := s.ApplyMovements(ctx, []Movement{m})
	if err != nil {
		return LedgerEntry{}, err
	}
	return entries[0], nil
}

func (s *Service) apply(ctx context.Context, bal Balance, m Movement) (LedgerEntry, Balance, error) {
	if bal.Key == (Key{}) {
		bal.Key = m.Key
	}
	outcome, err := Apply(bal, m, s.policy)
	if err != nil {
		return LedgerEntry{}, Balance{}, err
	}
	at := s.now().UTC()
	// Entries of a key never go back in time so a replay by (posted_at, id)
	// sees them in application order.
	if at.Before(bal.UpdatedAt) {
		at = bal.UpdatedAt
	}
	next := outcome.Balance
	next.UpdatedAt = at
	entry, err := s.repo.AppendEntry(ctx, LedgerEntry{
		CompanyID:      m.Key.CompanyID,
		ItemID:         m.Key.ItemID,
		WarehouseID:    m.Key.WarehouseID,
		BinID:          m.Key.BinID,
		PostedAt:       at,
		ReferenceType:  m.ReferenceType,
		ReferenceID:    m.ReferenceID,
		Memo:           m.Memo,
		QtyDelta:       m.QtyDelta,
		UnitCost:       outcome.UnitCost,
		Value:          outcome.Value,
		RunningQty:     next.Qty,
		RunningAvgCost: next.AvgCost,
		RunningValue:   next.Value,
	})
	if err != nil {
		return LedgerEntry{}, Balance{}, err
	}
	if err := s.repo.SaveBalance(ctx, next); err != nil {
		return LedgerEntry{}, Balance{}, err
	}
	return entry, next, nil
}

func (s *Service) observe(ctx context.Context, entries []LedgerEntry) {
	db.AfterCommit(ctx, func(context.Context) {
		for _, e := range entries {
			s.metrics.StockMovement(string(e.ReferenceType))
		}
	})
}

// ItemStockLedger streams ledger entries page by page. Limit sets the page
// size; iteration stops at the first error.
func (s *Service) ItemStockLedger(ctx context.Context, q LedgerQuery) iter.Seq2[LedgerEntry, error] {
	return func(yield func(LedgerEntry, error) bool) {
		if err := validQuery(q); err != nil {
			yield(LedgerEntry{}, err)
			return
		}
		page := shared.PageRequest{Limit: q.Limit, Offset: q.Offset, Cursor: q.Cursor}.Normalize()
		q.Limit, q.Offset, q.Cursor = page.Limit, page.Offset, page.Cursor
		for {
			if err := ctx.Err(); err != nil {
				yield(LedgerEntry{}, err)
				return
			}
			batch, err := s.repo.ListEntries(ctx, q)
			if err != nil {
				yield(LedgerEntry{}, err)
				return
			}
			for _, e := range batch {
				if !yield(e, nil) {
					return
				}
			}
			if len(batch) < q.Limit {
				return
			}
			q.Cursor = batch[len(batch)-1].ID
			q.Offset = 0
		}
	}
}

// Page returns one window of the ledger with the cursor of the next window.
func (s *Service) Page(ctx context.Context, q LedgerQuery) (LedgerPage, error) {
	if err := validQuery(q); err != nil {
		return LedgerPage{}, err
	}
	page := shared.PageRequest{Limit: q.Limit, Offset: q.Offset, Cursor: q.Cursor}.Normalize()
	q.Limit, q.Offset, q.Cursor = page.Limit, page.Offset, page.Cursor
	entries, err := s.repo.ListEntries(ctx, q)
	if err != nil {
		return LedgerPage{}, err
	}
	out := LedgerPage{Entries: entries}
	if len(entries) == q.Limit {
		out.NextCursor = entries[len(entries)-1].ID
	}
	return out, nil
}

// Balance returns the balance of a key. A key without movements is zero.
func (s *Service) Balance(ctx context.Context, key Key) (Balance, error) {
	if err := validKey(key); err != nil {
		return Balance{}, err
	}
	bal, err := s.repo.GetBalance(ctx, key)
	if shared.KindOf(err) == shared.KindNotFound {
		return Balance{Key: key, Qty: decimal.Zero, AvgCost: decimal.Zero, Value: decimal.Zero}, nil
	}
	return bal, err
}

// Balances lists the balances of an item across warehouses and bins.
func (s *Service) Balances(ctx context.Context, companyID, itemID int64) ([]Balance, error) {
	if companyID <= 0 || itemID <= 0 {
		return nil, shared.Validation("inventory: company and item required")
	}
	return s.repo.ListBalances(ctx, companyID, itemID)
}

// Keys lists every stock key of a company.
func (s *Service) Keys(ctx context.Context, companyID int64) ([]Key, error) {
	return s.repo.ListKeys(ctx, companyID)
}

// Replay re-folds the ledger entries of key and compares the result with the
// stored balance.
func (s *Service) Replay(ctx context.Context, key Key) (ReplayReport, error) {
	actual, err := s.Balance(ctx, key)
	if err != nil {
		return ReplayReport{}, err
	}
	expected := Balance{Key: key, Qty: decimal.Zero, AvgCost: decimal.Zero, Value: decimal.Zero}
	report := ReplayReport{Key: key, Actual: actual}
	warehouse, bin := key.WarehouseID, key.BinID
	q := LedgerQuery{CompanyID: key.CompanyID, ItemID: key.ItemID, WarehouseID: &warehouse, BinID: &bin, Limit: 500}
	for e, err := range s.ItemStockLedger(ctx, q) {
		if err != nil {
			return ReplayReport{}, err
		}
		m := Movement{Key: key, QtyDelta: e.QtyDelta, ReferenceType: e.ReferenceType}
		if e.QtyDelta.IsPositive() {
			value, unit := e.Value, e.UnitCost
			m.Value, m.UnitCost = &value, &unit
		}
		outcome, err := Apply(expected, m, Policy{AllowNegative: true})
		if err != nil {
			return ReplayReport{}, err
		}
		expected = outcome.Balance
		expected.UpdatedAt = e.PostedAt
		if !expected.Qty.Equal(e.RunningQty) || !expected.Value.Equal(e.RunningValue) || !expected.AvgCost.Equal(e.RunningAvgCost) {
			report.Drift = true
		}
		report.Entries++
	}
	report.Expected = expected
	if !expected.Qty.Equal(actual.Qty) || !expected.Value.Equal(actual.Value) || !expected.AvgCost.Equal(actual.AvgCost) {
		report.Drift = true
	}
	if report.Drift {
		s.logger.Warn("stock drift", zap.String("key", key.String()),
			zap.String("expected_qty", expected.Qty.String()), zap.String("actual_qty", actual.Qty.String()),
			zap.String("expected_value", expected.Value.String()), zap.String("actual_value", actual.Value.String()))
	}
	return report, nil
}

func validKey(k Key) error {
	if k.CompanyID <= 0 || k.ItemID <= 0 || k.WarehouseID <= 0 || k.BinID < 0 {
		return shared.Validation("inventory: invalid stock key %s", k)
	}
	return nil
}

func validQuery(q LedgerQuery) error {
	if q.CompanyID <= 0 || q.ItemID <= 0 {
		return shared.Validation("inventory: company and item required")
	}
	if q.From != nil && q.To != nil && q.From.After(*q.To) {
		return shared.Validation("inventory: ledger range is inverted")
	}
	return nil
}
