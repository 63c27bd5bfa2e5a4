// Package fixture seeds an in-memory engine with a small chart of accounts,
// two open periods, two warehouses and two items. Importing it also turns on
// LEDGER_TEST_MODE so binaries skip runtime side effects under test.
package fixture

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/ledgercore/internal/accounting/accounts"
	"github.com/odyssey-erp/ledgercore/internal/accounting/mappings"
	"github.com/odyssey-erp/ledgercore/internal/accounting/periods"
	"github.com/odyssey-erp/ledgercore/internal/engine"
	"github.com/odyssey-erp/ledgercore/internal/inventory"
	"github.com/odyssey-erp/ledgercore/internal/inventory/documents"
	"github.com/odyssey-erp/ledgercore/internal/masterdata"
	"github.com/odyssey-erp/ledgercore/internal/shared"
	"github.com/odyssey-erp/ledgercore/internal/storage/memory"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("LEDGER_TEST_MODE") == "" {
			_ = os.Setenv("LEDGER_TEST_MODE", "1")
		}
	})
}

// CompanyID is the company every fixture row belongs to.
const CompanyID int64 = 1

// Actor is the user recorded on fixture operations.
const Actor int64 = 7

// Account codes of the seeded chart.
const (
	Cash           = "1100"
	Inventory      = "1200"
	LoanReceivable = "1300"
	Payables       = "2100"
	Capital        = "3100"
	Sales          = "4100"
	COGS           = "5100"
	AdjustmentLoss = "6100"
	AdjustmentGain = "7100"
)

// Clock is a deterministic clock that moves one second per reading.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// Now returns the current instant and advances the clock.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

// Books is a seeded engine.
type Books struct {
	Engine   *engine.Engine
	Store    *memory.Store
	Clock    *Clock
	January  periods.Period
	February periods.Period
	Main     masterdata.Warehouse
	Annex    masterdata.Warehouse
	Widget   masterdata.Item
	Gadget   masterdata.Item
	// Box is a unit of Widget worth 12 base units.
	Box int64

	accounts map[string]accounts.Account
}

// Option adjusts the engine configuration before wiring.
type Option func(*engine.Config)

// AllowNegativeStock lets issues drive balances below zero.
func AllowNegativeStock() Option {
	return func(cfg *engine.Config) { cfg.AllowNegativeStock = true }
}

// WithoutJournals disables the general ledger side of documents.
func WithoutJournals() Option {
	return func(cfg *engine.Config) { cfg.PostJournals = false }
}

// New builds and seeds the books.
func New(t testing.TB, opts ...Option) *Books {
	t.Helper()
	clock := &Clock{now: time.Date(2026, time.January, 1, 8, 0, 0, 0, time.UTC)}
	cfg := engine.Config{PostJournals: true, Now: clock.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	eng, store := engine.NewMemory(cfg)
	b := &Books{Engine: eng, Store: store, Clock: clock, accounts: map[string]accounts.Account{}}
	ctx := context.Background()

	b.seedChart(t, ctx)
	b.January = b.period(t, ctx, time.January)
	b.February = b.period(t, ctx, time.February)

	bindings := map[string]string{
		mappings.KeyStock:          Inventory,
		mappings.KeyReceiptAP:      Payables,
		mappings.KeyReceiptCash:    Cash,
		mappings.KeyIssueExpense:   COGS,
		mappings.KeyAdjustmentGain: AdjustmentGain,
		mappings.KeyAdjustmentLoss: AdjustmentLoss,
		mappings.KeyLoanReceivable: LoanReceivable,
	}
	for key, code := range bindings {
		_, err := eng.Mappings.Set(ctx, CompanyID, mappings.ModuleInventory, key, b.AccountID(code))
		require.NoError(t, err)
	}

	md := store.MasterData()
	b.Main = md.PutWarehouse(masterdata.Warehouse{CompanyID: CompanyID, Code: "MAIN", Name: "Main warehouse", IsActive: true})
	b.Annex = md.PutWarehouse(masterdata.Warehouse{CompanyID: CompanyID, Code: "ANNEX", Name: "Annex", IsActive: true})
	b.Widget = md.PutItem(masterdata.Item{CompanyID: CompanyID, SKU: "W-1", Name: "Widget", BaseUnitID: 1, IsActive: true})
	b.Gadget = md.PutItem(masterdata.Item{CompanyID: CompanyID, SKU: "G-1", Name: "Gadget", BaseUnitID: 1, IsActive: true})
	b.Box = 2
	md.PutConversion(masterdata.UnitConversion{ItemID: b.Widget.ID, UnitID: b.Box, Factor: decimal.NewFromInt(12)})
	return b
}

func (b *Books) seedChart(t testing.TB, ctx context.Context) {
	headers := []struct {
		code  string
		class accounts.Class
	}{
		{"1000", accounts.ClassAsset},
		{"2000", accounts.ClassLiability},
		{"3000", accounts.ClassEquity},
		{"4000", accounts.ClassRevenue},
		{"5000", accounts.ClassCOGS},
		{"6000", accounts.ClassExpense},
		{"7000", accounts.ClassOtherIncome},
	}
	parents := map[accounts.Class]int64{}
	for _, h := range headers {
		acc, err := b.Engine.Accounts.Create(ctx, accounts.CreateInput{
			CompanyID: CompanyID, Code: h.code, Name: string(h.class), Class: h.class, ActorID: Actor,
		})
		require.NoError(t, err)
		parents[h.class] = acc.ID
		b.accounts[h.code] = acc
	}
	leaves := []struct {
		code, name string
		class      accounts.Class
	}{
		{Cash, "Cash", accounts.ClassAsset},
		{Inventory, "Inventory", accounts.ClassAsset},
		{LoanReceivable, "Goods on loan", accounts.ClassAsset},
		{Payables, "Accounts payable", accounts.ClassLiability},
		{Capital, "Share capital", accounts.ClassEquity},
		{Sales, "Sales", accounts.ClassRevenue},
		{COGS, "Cost of goods sold", accounts.ClassCOGS},
		{AdjustmentLoss, "Stock write-off", accounts.ClassExpense},
		{AdjustmentGain, "Stock gain", accounts.ClassOtherIncome},
	}
	for _, l := range leaves {
		parent := parents[l.class]
		acc, err := b.Engine.Accounts.Create(ctx, accounts.CreateInput{
			CompanyID: CompanyID, Code: l.code, Name: l.name, Class: l.class,
			IsPosting: true, ParentID: &parent, ActorID: Actor,
		})
		require.NoError(t, err)
		b.accounts[l.code] = acc
	}
}

func (b *Books) period(t testing.TB, ctx context.Context, month time.Month) periods.Period {
	start := time.Date(2026, month, 1, 0, 0, 0, 0, time.UTC)
	p, err := b.Engine.Periods.Create(ctx, periods.CreateInput{
		CompanyID: CompanyID,
		Year:      2026,
		Month:     int(month),
		StartDate: start,
		EndDate:   shared.MonthEnd(start),
		ActorID:   Actor,
	})
	require.NoError(t, err)
	return p
}

// AccountID returns the id of a seeded account code.
func (b *Books) AccountID(code string) int64 {
	acc, ok := b.accounts[code]
	if !ok {
		panic("fixture: unknown account " + code)
	}
	return acc.ID
}

// Day returns a date in January 2026.
func Day(d int) time.Time {
	return time.Date(2026, time.January, d, 0, 0, 0, 0, time.UTC)
}

// D parses a decimal literal.
func D(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// Ptr returns a pointer to a decimal literal.
func Ptr(s string) *decimal.Decimal {
	d := D(s)
	return &d
}

// Key is the stock key of item in warehouse wh on the default bin.
func Key(wh masterdata.Warehouse, item masterdata.Item) inventory.Key {
	return inventory.Key{CompanyID: CompanyID, ItemID: item.ID, WarehouseID: wh.ID}
}

// Receive posts a receipt of qty at cost into wh.
func (b *Books) Receive(t testing.TB, wh masterdata.Warehouse, item masterdata.Item, qty, cost string) documents.Document {
	t.Helper()
	doc, err := b.Engine.Documents.Submit(context.Background(), documents.Request{
		DocumentType: documents.TypeReceipt,
		CompanyID:    CompanyID,
		WarehouseID:  wh.ID,
		Date:         Day(5),
		CreatedBy:    Actor,
		Lines:        []documents.RequestLine{{ItemID: item.ID, Qty: D(qty), UnitCost: Ptr(cost)}},
	})
	require.NoError(t, err)
	return doc
}

// Balance returns the stock balance of item in wh.
func (b *Books) Balance(t testing.TB, wh masterdata.Warehouse, item masterdata.Item) inventory.Balance {
	t.Helper()
	bal, err := b.Engine.Stock.Balance(context.Background(), Key(wh, item))
	require.NoError(t, err)
	return bal
}

// Net returns the debit-minus-credit balance of an account as of asOf.
func (b *Books) Net(t testing.TB, code string, asOf time.Time) decimal.Decimal {
	t.Helper()
	balances, err := b.Engine.Ledger.AllAccountBalances(context.Background(), CompanyID, asOf)
	require.NoError(t, err)
	id := b.AccountID(code)
	for _, bal := range balances {
		if bal.ID == id {
			return bal.Debit.Sub(bal.Credit)
		}
	}
	return decimal.Zero
}
