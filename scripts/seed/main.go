package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/odyssey-erp/ledgercore/internal/accounting/accounts"
	"github.com/odyssey-erp/ledgercore/internal/accounting/journals"
	"github.com/odyssey-erp/ledgercore/internal/accounting/mappings"
	"github.com/odyssey-erp/ledgercore/internal/accounting/periods"
	"github.com/odyssey-erp/ledgercore/internal/app"
	"github.com/odyssey-erp/ledgercore/internal/engine"
	"github.com/odyssey-erp/ledgercore/internal/inventory/documents"
	"github.com/odyssey-erp/ledgercore/internal/platform/db"
	"github.com/odyssey-erp/ledgercore/internal/platform/httpx"
	"github.com/odyssey-erp/ledgercore/internal/shared"
)

const (
	companyID int64 = 1
	seedActor int64 = 1
)

func main() {
	if app.InTestMode() {
		return
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}
	logger, err := app.NewLogger(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "init logger:", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: 4})
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	eng := engine.New(engine.PostgresRepositories(db.NewTxManager(pool, logger)), engine.Config{
		PostJournals: true,
		Logger:       logger,
	})
	s := &seeder{pool: pool, eng: eng, log: logger.Named("seed"), year: time.Now().UTC().Year()}

	// Phase 1: Master Data
	s.log.Info("seeding master data")
	md, err := s.seedMasterData(ctx)
	if err != nil {
		logger.Fatal("seed master data", zap.Error(err))
	}

	// Phase 2: Chart, periods and mappings
	s.log.Info("seeding chart of accounts")
	fresh, err := s.seedChart(ctx)
	if err != nil {
		logger.Fatal("seed chart", zap.Error(err))
	}
	s.log.Info("seeding fiscal periods", zap.Int("year", s.year))
	if err := s.seedPeriods(ctx); err != nil {
		logger.Fatal("seed periods", zap.Error(err))
	}
	s.log.Info("seeding account mappings")
	if err := s.seedMappings(ctx); err != nil {
		logger.Fatal("seed mappings", zap.Error(err))
	}

	// Phase 3: Opening transactions, only on a fresh chart so reruns stay idempotent
	if fresh {
		s.log.Info("seeding opening transactions")
		if err := s.seedTransactions(ctx, md); err != nil {
			logger.Fatal("seed transactions", zap.Error(err))
		}
	} else {
		s.log.Info("chart already present, skipping opening transactions")
	}

	s.log.Info("seed complete", zap.Time("at", time.Now()))
}

type seeder struct {
	pool     *pgxpool.Pool
	eng      *engine.Engine
	log      *zap.Logger
	year     int
	accounts map[string]int64
}

type masterData struct {
	main, annex     int64
	widget, gadget  int64
	widgetBoxUnitID int64
}

func unwrap[T any](op string, res httpx.Result[T]) (T, error) {
	if !res.Success {
		var zero T
		return zero, fmt.Errorf("%s: %s (status %d)", op, res.Error, res.StatusCode)
	}
	return *res.Data, nil
}

// =============================================================================
// MASTER DATA
// =============================================================================

func (s *seeder) seedMasterData(ctx context.Context) (masterData, error) {
	var md masterData
	warehouses := []struct {
		code, name string
		id         *int64
	}{
		{"MAIN", "Main warehouse", &md.main},
		{"ANNEX", "Annex", &md.annex},
	}
	for _, w := range warehouses {
		err := s.pool.QueryRow(ctx, `
			INSERT INTO warehouses (company_id, code, name, is_active)
			VALUES ($1, $2, $3, TRUE)
			ON CONFLICT (company_id, code) DO UPDATE SET name = EXCLUDED.name
			RETURNING id`, companyID, w.code, w.name).Scan(w.id)
		if err != nil {
			return md, fmt.Errorf("warehouse %s: %w", w.code, err)
		}
	}

	items := []struct {
		sku, name string
		id        *int64
	}{
		{"W-1", "Widget", &md.widget},
		{"G-1", "Gadget", &md.gadget},
	}
	for _, it := range items {
		err := s.pool.QueryRow(ctx, `
			INSERT INTO items (company_id, sku, name, base_unit_id, is_active)
			VALUES ($1, $2, $3, 1, TRUE)
			ON CONFLICT (company_id, sku) DO UPDATE SET name = EXCLUDED.name
			RETURNING id`, companyID, it.sku, it.name).Scan(it.id)
		if err != nil {
			return md, fmt.Errorf("item %s: %w", it.sku, err)
		}
	}

	md.widgetBoxUnitID = 2
	_, err := s.pool.Exec(ctx, `
		INSERT INTO item_units (item_id, unit_id, factor) VALUES ($1, $2, 12)
		ON CONFLICT (item_id, unit_id) DO NOTHING`, md.widget, md.widgetBoxUnitID)
	if err != nil {
		return md, fmt.Errorf("item units: %w", err)
	}
	return md, nil
}

// =============================================================================
// ACCOUNTING
// =============================================================================

var chart = []struct {
	code, name, parent string
	class              accounts.Class
}{
	{"1000", "Assets", "", accounts.ClassAsset},
	{"1100", "Cash", "1000", accounts.ClassAsset},
	{"1200", "Inventory", "1000", accounts.ClassAsset},
	{"1300", "Goods on loan", "1000", accounts.ClassAsset},
	{"2000", "Liabilities", "", accounts.ClassLiability},
	{"2100", "Accounts payable", "2000", accounts.ClassLiability},
	{"3000", "Equity", "", accounts.ClassEquity},
	{"3100", "Share capital", "3000", accounts.ClassEquity},
	{"4000", "Revenue", "", accounts.ClassRevenue},
	{"4100", "Sales", "4000", accounts.ClassRevenue},
	{"5000", "Cost of sales", "", accounts.ClassCOGS},
	{"5100", "Cost of goods sold", "5000", accounts.ClassCOGS},
	{"6000", "Operating expenses", "", accounts.ClassExpense},
	{"6100", "Stock write-off", "6000", accounts.ClassExpense},
	{"7000", "Other income", "", accounts.ClassOtherIncome},
	{"7100", "Stock gain", "7000", accounts.ClassOtherIncome},
}

// seedChart creates missing accounts and reports whether the chart was empty.
func (s *seeder) seedChart(ctx context.Context) (bool, error) {
	s.accounts = make(map[string]int64, len(chart))
	created := 0
	for _, row := range chart {
		if existing := s.eng.AccountByCode(ctx, companyID, row.code); existing.Success {
			s.accounts[row.code] = existing.Data.ID
			continue
		} else if existing.StatusCode != 404 {
			return false, fmt.Errorf("lookup %s: %s", row.code, existing.Error)
		}

		in := accounts.CreateInput{
			CompanyID: companyID,
			Code:      row.code,
			Name:      row.name,
			Class:     row.class,
			IsPosting: row.parent != "",
			ActorID:   seedActor,
		}
		if row.parent != "" {
			parent := s.accounts[row.parent]
			in.ParentID = &parent
		}
		acc, err := unwrap("create account "+row.code, s.eng.CreateAccount(ctx, in))
		if err != nil {
			return false, err
		}
		s.accounts[row.code] = acc.ID
		created++
	}
	return created == len(chart), nil
}

func (s *seeder) seedPeriods(ctx context.Context) error {
	for month := time.January; month <= time.December; month++ {
		start := time.Date(s.year, month, 1, 0, 0, 0, 0, time.UTC)
		if s.eng.PeriodFor(ctx, companyID, start).Success {
			continue
		}
		_, err := unwrap(fmt.Sprintf("create period %d-%02d", s.year, month), s.eng.CreatePeriod(ctx, periods.CreateInput{
			CompanyID: companyID,
			Year:      s.year,
			Month:     int(month),
			StartDate: start,
			EndDate:   shared.MonthEnd(start),
			ActorID:   seedActor,
		}))
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *seeder) seedMappings(ctx context.Context) error {
	bindings := map[string]string{
		mappings.KeyStock:          "1200",
		mappings.KeyReceiptAP:      "2100",
		mappings.KeyReceiptCash:    "1100",
		mappings.KeyIssueExpense:   "5100",
		mappings.KeyAdjustmentGain: "7100",
		mappings.KeyAdjustmentLoss: "6100",
		mappings.KeyLoanReceivable: "1300",
	}
	for key, code := range bindings {
		if _, err := unwrap("map "+key, s.eng.SetMapping(ctx, companyID, mappings.ModuleInventory, key, s.accounts[code])); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func (s *seeder) seedTransactions(ctx context.Context, md masterData) error {
	opening := time.Date(s.year, time.January, 2, 0, 0, 0, 0, time.UTC)
	capital := decimal.NewFromInt(50000)
	entry, err := unwrap("capital injection", s.eng.PostJournal(ctx, journals.PostingInput{
		CompanyID:  companyID,
		Date:       opening,
		SourceType: journals.SourceManual,
		SourceID:   "seed-capital",
		Memo:       "Initial capital",
		ActorID:    seedActor,
		Lines: []journals.PostingLineInput{
			{AccountID: s.accounts["1100"], Debit: capital},
			{AccountID: s.accounts["3100"], Credit: capital},
		},
	}))
	if err != nil {
		return err
	}
	s.log.Info("posted capital injection", zap.Int64("entry_number", entry.Number))

	receiptDate := time.Date(s.year, time.January, 5, 0, 0, 0, 0, time.UTC)
	widgetCost := decimal.RequireFromString("42.50")
	gadgetCost := decimal.RequireFromString("7.25")
	receipt, err := unwrap("opening receipt", s.eng.SubmitDocument(ctx, documents.Request{
		DocumentType: documents.TypeReceipt,
		CompanyID:    companyID,
		WarehouseID:  md.main,
		Date:         receiptDate,
		Settlement:   documents.SettlementAP,
		Memo:         "Opening stock",
		CreatedBy:    seedActor,
		Lines: []documents.RequestLine{
			{ItemID: md.widget, UnitID: md.widgetBoxUnitID, Qty: decimal.NewFromInt(10), UnitCost: &widgetCost},
			{ItemID: md.gadget, Qty: decimal.NewFromInt(200), UnitCost: &gadgetCost},
		},
	}))
	if err != nil {
		return err
	}
	s.log.Info("posted opening receipt", zap.String("number", receipt.Number))

	transfer, err := unwrap("annex transfer", s.eng.SubmitDocument(ctx, documents.Request{
		DocumentType:    documents.TypeTransfer,
		CompanyID:       companyID,
		WarehouseID:     md.main,
		DestWarehouseID: md.annex,
		Date:            receiptDate,
		CreatedBy:       seedActor,
		Lines:           []documents.RequestLine{{ItemID: md.gadget, Qty: decimal.NewFromInt(50)}},
	}))
	if err != nil {
		return err
	}
	s.log.Info("posted transfer", zap.String("number", transfer.Number))

	report, err := unwrap("integrity check", s.eng.CheckIntegrity(ctx, companyID, receiptDate))
	if err != nil {
		return err
	}
	if !report.Clean() {
		return errors.New("seeded books failed verification")
	}
	return nil
}
