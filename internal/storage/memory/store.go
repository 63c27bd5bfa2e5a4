// Package memory is an in-process implementation of every repository port.
// A single mutex serialises transactions; a failed transaction restores the
// snapshot taken when it began.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/odyssey-erp/ledgercore/internal/accounting/accounts"
	"github.com/odyssey-erp/ledgercore/internal/accounting/journals"
	"github.com/odyssey-erp/ledgercore/internal/accounting/mappings"
	"github.com/odyssey-erp/ledgercore/internal/accounting/periods"
	"github.com/odyssey-erp/ledgercore/internal/events"
	"github.com/odyssey-erp/ledgercore/internal/inventory"
	"github.com/odyssey-erp/ledgercore/internal/inventory/documents"
	"github.com/odyssey-erp/ledgercore/internal/masterdata"
	"github.com/odyssey-erp/ledgercore/internal/platform/db"
	"github.com/odyssey-erp/ledgercore/internal/shared"
)

type txKey struct{}

type openingKey struct {
	companyID, periodID, accountID int64
}

type docSeqKey struct {
	companyID   int64
	prefix      string
	year, month int
}

type mappingKey struct {
	companyID   int64
	module, key string
}

type claimKey struct {
	companyID   int64
	module, key string
}

type state struct {
	seq         int64
	accounts    map[int64]accounts.Account
	periods     map[int64]periods.Period
	openings    map[openingKey]periods.OpeningBalance
	entries     map[int64]journals.JournalEntry
	journalSeq  map[int64]int64
	balances    map[inventory.Key]inventory.Balance
	stock       []inventory.LedgerEntry
	documents   map[int64]documents.Document
	docSeq      map[docSeqKey]int64
	mappings    map[mappingKey]mappings.AccountMapping
	items       map[int64]masterdata.Item
	warehouses  map[int64]masterdata.Warehouse
	conversions map[[2]int64]masterdata.UnitConversion
	outbox      []events.Event
	audit       []shared.AuditLog
	claims      map[claimKey]struct{}
}

func newState() *state {
	return &state{
		accounts:    map[int64]accounts.Account{},
		periods:     map[int64]periods.Period{},
		openings:    map[openingKey]periods.OpeningBalance{},
		entries:     map[int64]journals.JournalEntry{},
		journalSeq:  map[int64]int64{},
		balances:    map[inventory.Key]inventory.Balance{},
		documents:   map[int64]documents.Document{},
		docSeq:      map[docSeqKey]int64{},
		mappings:    map[mappingKey]mappings.AccountMapping{},
		items:       map[int64]masterdata.Item{},
		warehouses:  map[int64]masterdata.Warehouse{},
		conversions: map[[2]int64]masterdata.UnitConversion{},
		claims:      map[claimKey]struct{}{},
	}
}

// clone copies every table. Rows are values and stored line slices are never
// mutated in place, so copying the maps is enough.
func (st *state) clone() *state {
	return &state{
		seq:         st.seq,
		accounts:    maps.Clone(st.accounts),
		periods:     maps.Clone(st.periods),
		openings:    maps.Clone(st.openings),
		entries:     maps.Clone(st.entries),
		journalSeq:  maps.Clone(st.journalSeq),
		balances:    maps.Clone(st.balances),
		stock:       slices.Clone(st.stock),
		documents:   maps.Clone(st.documents),
		docSeq:      maps.Clone(st.docSeq),
		mappings:    maps.Clone(st.mappings),
		items:       maps.Clone(st.items),
		warehouses:  maps.Clone(st.warehouses),
		conversions: maps.Clone(st.conversions),
		outbox:      slices.Clone(st.outbox),
		audit:       slices.Clone(st.audit),
		claims:      maps.Clone(st.claims),
	}
}

func (st *state) nextID() int64 {
	st.seq++
	return st.seq
}

// Store holds all tables and implements db.TxRunner.
type Store struct {
	mu  sync.Mutex
	st  *state
	now func() time.Time
}

var _ db.TxRunner = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{st: newState(), now: time.Now}
}

// WithNow overrides the clock used for row timestamps.
func (s *Store) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithinTx runs fn with exclusive access to the store. Nested calls join the
// outer transaction. After-commit hooks run once the lock is released.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.inTx(ctx) {
		return fn(ctx)
	}
	txCtx, scope := db.BeginScope(context.WithValue(ctx, txKey{}, s))
	if err := s.run(txCtx, fn); err != nil {
		return err
	}
	scope.Committed(ctx)
	return nil
}

func (s *Store) run(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	s.mu.Lock()
	snapshot := s.st.clone()
	defer func() {
		if r := recover(); r != nil {
			s.st = snapshot
			s.mu.Unlock()
			panic(r)
		}
		if err != nil {
			s.st = snapshot
		}
		s.mu.Unlock()
	}()
	return fn(ctx)
}

func (s *Store) inTx(ctx context.Context) bool {
	owner, ok := ctx.Value(txKey{}).(*Store)
	return ok && owner == s
}

// do runs fn against the tables, joining the transaction in ctx when there
// is one and locking the store otherwise.
func (s *Store) do(ctx context.Context, fn func(st *state) error) error {
	if !s.inTx(ctx) {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	return fn(s.st)
}

func (s *Store) stamp() time.Time { return s.now().UTC() }

// Accounts returns the chart of accounts repository.
func (s *Store) Accounts() *Accounts { return &Accounts{s: s} }

// Periods returns the fiscal period repository.
func (s *Store) Periods() *Periods { return &Periods{s: s} }

// Journals returns the journal repository.
func (s *Store) Journals() *Journals { return &Journals{s: s} }

// Ledger returns the ledger projection store.
func (s *Store) Ledger() *Ledger { return &Ledger{s: s} }

// Mappings returns the system account mapping repository.
func (s *Store) Mappings() *Mappings { return &Mappings{s: s} }

// Stock returns the stock ledger repository.
func (s *Store) Stock() *Stock { return &Stock{s: s} }

// Documents returns the inventory document repository.
func (s *Store) Documents() *Documents { return &Documents{s: s} }

// MasterData returns the master data lookup.
func (s *Store) MasterData() *MasterData { return &MasterData{s: s} }

// Outbox returns the event outbox.
func (s *Store) Outbox() *Outbox { return &Outbox{s: s} }

// Audit returns the audit log.
func (s *Store) Audit() *Audit { return &Audit{s: s} }

// Idempotency returns the idempotency key store.
func (s *Store) Idempotency() *Idempotency { return &Idempotency{s: s} }

// Counts reports row counts of the append-mostly tables.
type Counts struct {
	Entries      int
	StockEntries int
	Documents    int
	Events       int
}

// Counts returns the current row counts.
func (s *Store) Counts() Counts {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Counts{
		Entries:      len(s.st.entries),
		StockEntries: len(s.st.stock),
		Documents:    len(s.st.documents),
		Events:       len(s.st.outbox),
	}
}
