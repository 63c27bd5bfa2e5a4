// Package engine wires the accounting and inventory services into a single
// facade whose operations return the outbound result envelope.
package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/odyssey-erp/ledgercore/internal/accounting/accounts"
	"github.com/odyssey-erp/ledgercore/internal/accounting/journals"
	"github.com/odyssey-erp/ledgercore/internal/accounting/ledger"
	"github.com/odyssey-erp/ledgercore/internal/accounting/mappings"
	"github.com/odyssey-erp/ledgercore/internal/accounting/periods"
	"github.com/odyssey-erp/ledgercore/internal/accounting/reports"
	"github.com/odyssey-erp/ledgercore/internal/events"
	"github.com/odyssey-erp/ledgercore/internal/inventory"
	"github.com/odyssey-erp/ledgercore/internal/inventory/documents"
	"github.com/odyssey-erp/ledgercore/internal/masterdata"
	"github.com/odyssey-erp/ledgercore/internal/observability"
	"github.com/odyssey-erp/ledgercore/internal/platform/db"
	"github.com/odyssey-erp/ledgercore/internal/shared"
	"github.com/odyssey-erp/ledgercore/internal/storage/memory"
)

// Repositories groups the storage ports the engine runs on.
type Repositories struct {
	Tx          db.TxRunner
	Accounts    accounts.Repository
	Periods     periods.Repository
	Journals    journals.Repository
	Ledger      ledger.Store
	Mappings    mappings.Repository
	Stock       inventory.Repository
	Documents   documents.Repository
	MasterData  masterdata.Lookup
	Outbox      events.Outbox
	Audit       shared.Auditor
	Idempotency shared.IdempotencyGuard
}

// PostgresRepositories binds every port to PostgreSQL through tx.
func PostgresRepositories(tx *db.TxManager) Repositories {
	return Repositories{
		Tx:          tx,
		Accounts:    accounts.NewRepository(tx),
		Periods:     periods.NewRepository(tx),
		Journals:    journals.NewRepository(tx),
		Ledger:      ledger.NewStore(tx),
		Mappings:    mappings.NewRepository(tx),
		Stock:       inventory.NewRepository(tx),
		Documents:   documents.NewRepository(tx),
		MasterData:  masterdata.NewLookup(tx),
		Outbox:      events.NewPGOutbox(tx),
		Audit:       shared.NewAuditLogger(tx),
		Idempotency: shared.NewIdempotencyStore(tx),
	}
}

// MemoryRepositories binds every port to the in-process store.
func MemoryRepositories(store *memory.Store) Repositories {
	return Repositories{
		Tx:          store,
		Accounts:    store.Accounts(),
		Periods:     store.Periods(),
		Journals:    store.Journals(),
		Ledger:      store.Ledger(),
		Mappings:    store.Mappings(),
		Stock:       store.Stock(),
		Documents:   store.Documents(),
		MasterData:  store.MasterData(),
		Outbox:      store.Outbox(),
		Audit:       store.Audit(),
		Idempotency: store.Idempotency(),
	}
}

// Config carries the runtime switches and shared collaborators.
type Config struct {
	AllowNegativeStock bool
	PostJournals       bool
	// Cache memoizes ending balances. Nil disables caching.
	Cache   *ledger.Cache
	Metrics *observability.Metrics
	Logger  *zap.Logger
	Now     func() time.Time
}

// Engine is the facade over every core service.
type Engine struct {
	Accounts  *accounts.Service
	Periods   *periods.Service
	Journals  *journals.Service
	Ledger    *ledger.Service
	Reports   *reports.Service
	Mappings  *mappings.Service
	Stock     *inventory.Service
	Master    *masterdata.Resolver
	Documents *documents.Processor

	logger *zap.Logger
}

// New wires the services on top of repos.
func New(repos Repositories, cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	acc := accounts.NewService(repos.Accounts, repos.Tx, repos.Audit, logger)
	led := ledger.NewService(repos.Ledger, acc, cfg.Cache, logger)
	acc.SetInvalidator(led)
	per := periods.NewService(repos.Periods, repos.Tx, acc,
		periods.WithOutbox(repos.Outbox),
		periods.WithAudit(repos.Audit),
		periods.WithInvalidator(led),
		periods.WithLogger(logger))
	jrn := journals.NewService(repos.Journals, repos.Tx, acc, per,
		journals.WithOutbox(repos.Outbox),
		journals.WithAudit(repos.Audit),
		journals.WithInvalidator(led),
		journals.WithMetrics(cfg.Metrics),
		journals.WithLogger(logger))
	mapSvc := mappings.NewService(repos.Mappings, acc)
	stock := inventory.NewService(repos.Stock, repos.Tx,
		inventory.ServiceConfig{AllowNegativeStock: cfg.AllowNegativeStock}, cfg.Metrics, logger)
	master := masterdata.NewResolver(repos.MasterData)
	docs := documents.NewProcessor(repos.Documents, repos.Tx, stock, jrn, mapSvc, per, master,
		documents.Config{PostJournals: cfg.PostJournals},
		documents.WithOutbox(repos.Outbox),
		documents.WithAudit(repos.Audit),
		documents.WithIdempotency(repos.Idempotency),
		documents.WithMetrics(cfg.Metrics),
		documents.WithLogger(logger))

	per.RegisterBlocker(journals.NewDraftBlocker(repos.Journals))
	per.RegisterBlocker(documents.NewUnpostedBlocker(repos.Documents))

	if cfg.Now != nil {
		per.WithNow(cfg.Now)
		jrn.WithNow(cfg.Now)
		stock.WithNow(cfg.Now)
		docs.WithNow(cfg.Now)
	}

	return &Engine{
		Accounts:  acc,
		Periods:   per,
		Journals:  jrn,
		Ledger:    led,
		Reports:   reports.NewService(led, acc, logger),
		Mappings:  mapSvc,
		Stock:     stock,
		Master:    master,
		Documents: docs,
		logger:    logger.Named("engine"),
	}
}

// NewMemory builds an engine over a fresh in-process store.
func NewMemory(cfg Config) (*Engine, *memory.Store) {
	store := memory.New()
	if cfg.Now != nil {
		store.WithNow(cfg.Now)
	}
	return New(MemoryRepositories(store), cfg), store
}

// Integrity runs both consistency checks for a company: every posted entry
// balances and the ledger fold agrees with the aggregate.
func (e *Engine) Integrity(ctx context.Context, companyID int64, asOf time.Time) (IntegrityReport, error) {
	drift, err := e.Ledger.Verify(ctx, companyID, asOf)
	if err != nil {
		return IntegrityReport{}, err
	}
	unbalanced, err := e.Journals.Unbalanced(ctx, companyID)
	if err != nil {
		return IntegrityReport{}, err
	}
	return IntegrityReport{CompanyID: companyID, AsOf: shared.DateOnly(asOf), Drift: drift, Unbalanced: unbalanced}, nil
}

// IntegrityReport lists the accounts and entries that failed a check.
type IntegrityReport struct {
	CompanyID  int64     `json:"companyId"`
	AsOf       time.Time `json:"asOf"`
	Drift      []int64   `json:"drift,omitempty"`
	Unbalanced []int64   `json:"unbalanced,omitempty"`
}

// Clean reports whether no check failed.
func (r IntegrityReport) Clean() bool {
	return len(r.Drift) == 0 && len(r.Unbalanced) == 0
}
