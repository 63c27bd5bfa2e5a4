package documents

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/odyssey-erp/ledgercore/internal/accounting/journals"
	"github.com/odyssey-erp/ledgercore/internal/accounting/periods"
	"github.com/odyssey-erp/ledgercore/internal/events"
	"github.com/odyssey-erp/ledgercore/internal/inventory"
	"github.com/odyssey-erp/ledgercore/internal/masterdata"
	"github.com/odyssey-erp/ledgercore/internal/observability"
	"github.com/odyssey-erp/ledgercore/internal/platform/db"
	"github.com/odyssey-erp/ledgercore/internal/shared"
)

const idempotencyModule = "inventory.document"

// Stock is the stock ledger used to move quantities and value.
type Stock interface {
	Lock(ctx context.Context, keys []inventory.Key) error
	ApplyMovements(ctx context.Context, movements []inventory.Movement) ([]inventory.LedgerEntry, error)
	ApplyMovement(ctx context.Context, m inventory.Movement) (inventory.LedgerEntry, error)
	Balance(ctx context.Context, key inventory.Key) (inventory.Balance, error)
}

// Journals posts the financial side of a document.
type Journals interface {
	CreateAndPost(ctx context.Context, in journals.PostingInput) (journals.JournalEntry, error)
}

// AccountResolver maps system account keys to ledger accounts.
type AccountResolver interface {
	Resolve(ctx context.Context, companyID int64, module, key string) (int64, error)
}

// PeriodGate returns the OPEN period covering a date.
type PeriodGate interface {
	EnsureOpen(ctx context.Context, companyID int64, date time.Time) (periods.Period, error)
}

// MasterData resolves items and warehouses and converts quantities into
// the item's base unit.
type MasterData interface {
	Item(ctx context.Context, companyID, itemID int64) (masterdata.Item, error)
	Warehouse(ctx context.Context, companyID, warehouseID int64) (masterdata.Warehouse, error)
	ToBase(ctx context.Context, item masterdata.Item, unitID int64, qty decimal.Decimal) (decimal.Decimal, error)
}

// Config toggles optional behaviour.
type Config struct {
	// PostJournals pairs every document with financial effect with a
	// journal entry.
	PostJournals bool
}

// Processor validates documents and applies them to the stock ledger and
// the general ledger in one transaction.
type Processor struct {
	repo        Repository
	tx          db.TxRunner
	stock       Stock
	journals    Journals
	accounts    AccountResolver
	periods     PeriodGate
	master      MasterData
	cfg         Config
	outbox      events.Outbox
	audit       shared.Auditor
	idempotency shared.IdempotencyGuard
	metrics     *observability.Metrics
	logger      *zap.Logger
	now         func() time.Time
}

// Option customises the Processor.
type Option func(*Processor)

// WithOutbox emits document events through outbox.
func WithOutbox(outbox events.Outbox) Option { return func(p *Processor) { p.outbox = outbox } }

// WithAudit records document postings.
func WithAudit(audit shared.Auditor) Option { return func(p *Processor) { p.audit = audit } }

// WithIdempotency rejects requests whose idempotency key was already used.
func WithIdempotency(guard shared.IdempotencyGuard) Option {
	return func(p *Processor) { p.idempotency = guard }
}

// WithMetrics counts processed documents.
func WithMetrics(m *observability.Metrics) Option { return func(p *Processor) { p.metrics = m } }

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Processor) {
		if logger != nil {
			p.logger = logger.Named("documents")
		}
	}
}

// NewProcessor wires the document processor.
func NewProcessor(repo Repository, tx db.TxRunner, stock Stock, jrn Journals, accounts AccountResolver,
	gate PeriodGate, master MasterData, cfg Config, opts ...Option) *Processor {
	p := &Processor{
		repo:     repo,
		tx:       tx,
		stock:    stock,
		journals: jrn,
		accounts: accounts,
		periods:  gate,
		master:   master,
		cfg:      cfg,
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WithNow overrides the clock for deterministic tests.
func (p *Processor) WithNow(now func() time.Time) {
	if now != nil {
		p.now = now
	}
}

// Submit validates and applies a document. Counts are stored as DRAFT; every
// other type is posted right away. Nothing is kept when any step fails.
func (p *Processor) Submit(ctx context.Context, req Request) (Document, error) {
	if err := req.Validate(); err != nil {
		p.fail(req.DocumentType, err)
		return Document{}, err
	}
	req.Date = shared.DateOnly(req.Date)
	started := time.Now()
	var doc Document
	err := p.tx.WithinTx(ctx, func(ctx context.Context) error {
		if req.IdempotencyKey != "" && p.idempotency != nil {
			if err := p.idempotency.Claim(ctx, req.CompanyID, idempotencyModule, req.IdempotencyKey); err != nil {
				return err
			}
		}
		if _, err := p.periods.EnsureOpen(ctx, req.CompanyID, req.Date); err != nil {
			return err
		}
		lines, err := p.resolve(ctx, req)
		if err != nil {
			return err
		}
		var loan *Document
		if req.DocumentType == TypeLoanReturn {
			if loan, err = p.lockLoan(ctx, req.CompanyID, req.LoanDocumentID); err != nil {
				return err
			}
		}
		draft, err := p.newDocument(ctx, req, lines)
		if err != nil {
			return err
		}
		if draft.Type == TypeCount {
			if err := distinctCountKeys(draft); err != nil {
				return err
			}
			doc, err = p.repo.Insert(ctx, draft)
			return err
		}

		var gl ledgerPosting
		switch draft.Type {
		case TypeReceipt:
			gl, err = p.receive(ctx, &draft)
		case TypeIssue, TypeLoanIssue:
			gl, err = p.issue(ctx, &draft)
		case TypeTransfer:
			err = p.transfer(ctx, &draft)
		case TypeAdjustment:
			gl, err = p.adjust(ctx, &draft, inventory.RefAdjustment)
		case TypeLoanReturn:
			gl, err = p.returnLoan(ctx, &draft, loan)
		}
		if err != nil {
			return err
		}
		if err := draft.post(req.CreatedBy, p.now().UTC()); err != nil {
			return err
		}
		if doc, err = p.repo.Insert(ctx, draft); err != nil {
			return err
		}
		if loan != nil {
			if err := p.repo.Save(ctx, *loan); err != nil {
				return err
			}
		}
		return p.finish(ctx, &doc, gl, req.CreatedBy)
	})
	if err != nil {
		p.fail(req.DocumentType, err)
		return Document{}, err
	}
	p.done(ctx, doc, started, "inventory.document."+lowerStatus(doc.Status))
	return doc, nil
}

// Get returns a document with its lines.
func (p *Processor) Get(ctx context.Context, companyID, id int64) (Document, error) {
	return p.repo.Get(ctx, companyID, id)
}

// resolve checks master data and converts every line into base units.
func (p *Processor) resolve(ctx context.Context, req Request) ([]Line, error) {
	if _, err := p.master.Warehouse(ctx, req.CompanyID, req.WarehouseID); err != nil {
		return nil, err
	}
	if req.DocumentType == TypeTransfer && req.DestWarehouseID != req.WarehouseID {
		if _, err := p.master.Warehouse(ctx, req.CompanyID, req.DestWarehouseID); err != nil {
			return nil, err
		}
	}
	lines := make([]Line, 0, len(req.Lines))
	for i, in := range req.Lines {
		item, err := p.master.Item(ctx, req.CompanyID, in.ItemID)
		if err != nil {
			return nil, err
		}
		qty, err := p.master.ToBase(ctx, item, in.UnitID, in.Qty)
		if err != nil {
			return nil, err
		}
		if !in.Qty.IsZero() && qty.IsZero() {
			return nil, shared.Validation("inventory: line %d quantity rounds to zero in the base unit", i+1)
		}
		line := Line{
			LineNo:     i + 1,
			ItemID:     item.ID,
			UnitID:     in.UnitID,
			BinID:      in.BinID,
			DestBinID:  in.DestBinID,
			Qty:        qty,
			LoanLineNo: in.LoanLineNo,
		}
		if in.UnitCost != nil {
			cost := *in.UnitCost
			if !qty.IsZero() && !qty.Equal(in.Qty) {
				cost = shared.RoundCost(cost.Mul(in.Qty).Div(qty))
			}
			line.UnitCost = decimal.NewNullDecimal(cost)
		}
		if req.DocumentType == TypeCount {
			line.CountedQty, line.Qty = qty, decimal.Zero
		}
		lines = append(lines, line)
	}
	return lines, nil
}

func (p *Processor) newDocument(ctx context.Context, req Request, lines []Line) (Document, error) {
	seq, err := p.repo.NextNumber(ctx, req.CompanyID, req.DocumentType.Prefix(), req.Date.Year(), int(req.Date.Month()))
	if err != nil {
		return Document{}, err
	}
	doc := Document{
		CompanyID:   req.CompanyID,
		Type:        req.DocumentType,
		Number:      FormatNumber(req.DocumentType, req.Date, seq),
		Date:        req.Date,
		WarehouseID: req.WarehouseID,
		ReasonCode:  req.ReasonCode,
		Memo:        req.Memo,
		Settlement:  req.Settlement,
		Status:      StatusDraft,
		CreatedBy:   req.CreatedBy,
		Outstanding: req.DocumentType == TypeLoanIssue,
		Lines:       lines,
	}
	if req.DocumentType == TypeTransfer {
		dest := req.DestWarehouseID
		doc.DestWarehouseID = &dest
	}
	if req.DocumentType == TypeLoanReturn {
		loanID := req.LoanDocumentID
		doc.LoanOf = &loanID
	}
	return doc, nil
}

// FormatNumber renders a document number such as RCV-202401-00001.
func FormatNumber(t Type, date time.Time, seq int64) string {
	return fmt.Sprintf("%s-%04d%02d-%05d", t.Prefix(), date.Year(), int(date.Month()), seq)
}

func (p *Processor) key(doc *Document, l Line) inventory.Key {
	return inventory.Key{CompanyID: doc.CompanyID, ItemID: l.ItemID, WarehouseID: doc.WarehouseID, BinID: l.BinID}
}

func (p *Processor) movement(doc *Document, l Line, qty decimal.Decimal) inventory.Movement {
	m := inventory.Movement{
		Key:           p.key(doc, l),
		QtyDelta:      qty,
		ReferenceType: typeMeta[doc.Type].reference,
		ReferenceID:   doc.Number,
		Memo:          doc.Memo,
	}
	if qty.IsPositive() && l.UnitCost.Valid {
		cost := l.UnitCost.Decimal
		m.UnitCost = &cost
	}
	return m
}

func (p *Processor) receive(ctx context.Context, doc *Document) (ledgerPosting, error) {
	movements := make([]inventory.Movement, 0, len(doc.Lines))
	for _, l := range doc.Lines {
		movements = append(movements, p.movement(doc, l, l.Qty))
	}
	entries, err := p.stock.ApplyMovements(ctx, movements)
	if err != nil {
		return ledgerPosting{}, err
	}
	credit := mappingKeyReceipt(doc.Settlement)
	var gl ledgerPosting
	for i := range doc.Lines {
		record(&doc.Lines[i], entries[i])
		gl.add(stockKey, credit, entries[i].Value)
	}
	return gl, nil
}

func (p *Processor) issue(ctx context.Context, doc *Document) (ledgerPosting, error) {
	movements := make([]inventory.Movement, 0, len(doc.Lines))
	for _, l := range doc.Lines {
		movements = append(movements, p.movement(doc, l, l.Qty.Neg()))
	}
	entries, err := p.stock.ApplyMovements(ctx, movements)
	if err != nil {
		return ledgerPosting{}, err
	}
	debit := issueExpenseKey
	if doc.Type == TypeLoanIssue {
		debit = loanReceivableKey
	}
	var gl ledgerPosting
	for i := range doc.Lines {
		record(&doc.Lines[i], entries[i])
		gl.add(debit, stockKey, entries[i].Value.Neg())
	}
	return gl, nil
}

// transfer moves each line out of the source and into the destination at
// the exact value that left the source.
func (p *Processor) transfer(ctx context.Context, doc *Document) error {
	keys := make([]inventory.Key, 0, 2*len(doc.Lines))
	for _, l := range doc.Lines {
		keys = append(keys, p.key(doc, l), p.destKey(doc, l))
	}
	if err := p.stock.Lock(ctx, keys); err != nil {
		return err
	}
	for i, l := range doc.Lines {
		out, err := p.stock.ApplyMovement(ctx, p.movement(doc, l, l.Qty.Neg()))
		if err != nil {
			return err
		}
		value, unit := out.Value.Neg(), out.UnitCost
		in := inventory.Movement{
			Key:           p.destKey(doc, l),
			QtyDelta:      l.Qty,
			UnitCost:      &unit,
			Value:         &value,
			ReferenceType: inventory.RefTransfer,
			ReferenceID:   doc.Number,
			Memo:          doc.Memo,
		}
		if _, err := p.stock.ApplyMovement(ctx, in); err != nil {
			return err
		}
		record(&doc.Lines[i], out)
	}
	return nil
}

func (p *Processor) destKey(doc *Document, l Line) inventory.Key {
	return inventory.Key{CompanyID: doc.CompanyID, ItemID: l.ItemID, WarehouseID: *doc.DestWarehouseID, BinID: l.DestBinID}
}

// adjust applies signed deltas. Gains debit stock against the gain account
// and losses credit stock against the loss account.
func (p *Processor) adjust(ctx context.Context, doc *Document, ref inventory.ReferenceType) (ledgerPosting, error) {
	movements := make([]inventory.Movement, 0, len(doc.Lines))
	index := make([]int, 0, len(doc.Lines))
	for i, l := range doc.Lines {
		if l.Qty.IsZero() {
			continue
		}
		m := p.movement(doc, l, l.Qty)
		m.ReferenceType = ref
		movements = append(movements, m)
		index = append(index, i)
	}
	entries, err := p.stock.ApplyMovements(ctx, movements)
	if err != nil {
		return ledgerPosting{}, err
	}
	var gl ledgerPosting
	for n, i := range index {
		record(&doc.Lines[i], entries[n])
		if v := entries[n].Value; v.IsPositive() {
			gl.add(stockKey, adjustmentGainKey, v)
		} else {
			gl.add(adjustmentLossKey, stockKey, v.Neg())
		}
	}
	return gl, nil
}

// record copies the costing result of a movement onto its line.
func record(l *Line, e inventory.LedgerEntry) {
	l.UnitCost = decimal.NewNullDecimal(e.UnitCost)
	l.Value = e.Value
}

// finish posts the paired journal entry and emits the posted event.
func (p *Processor) finish(ctx context.Context, doc *Document, gl ledgerPosting, actorID int64) error {
	source := typeMeta[doc.Type].source
	if p.cfg.PostJournals && source != "" && !gl.empty() {
		in, err := gl.input(ctx, p.accounts, doc, source, actorID)
		if err != nil {
			return err
		}
		entry, err := p.journals.CreateAndPost(ctx, in)
		if err != nil {
			return err
		}
		doc.JournalEntryID = &entry.ID
		if err := p.repo.Save(ctx, *doc); err != nil {
			return err
		}
	}
	return events.Emit(ctx, p.outbox, doc.CompanyID, events.TypeDocumentPosted, "inventory_document",
		strconv.FormatInt(doc.ID, 10), doc, p.now())
}

func (p *Processor) fail(t Type, err error) {
	if shared.IsBusiness(err) {
		p.logger.Debug("document rejected", zap.String("type", string(t)), zap.Error(err))
		p.metrics.DocumentProcessed(string(t), "rejected")
		return
	}
	p.metrics.DocumentProcessed(string(t), "failed")
}

func (p *Processor) done(ctx context.Context, doc Document, started time.Time, action string) {
	db.AfterCommit(ctx, func(context.Context) {
		p.metrics.ObservePosting("inventory.document", started)
		p.metrics.DocumentProcessed(string(doc.Type), lowerStatus(doc.Status))
		p.logger.Debug("document processed",
			zap.Int64("company_id", doc.CompanyID),
			zap.String("number", doc.Number),
			zap.String("status", string(doc.Status)))
	})
	if p.audit == nil {
		return
	}
	log := shared.AuditLog{
		CompanyID: doc.CompanyID,
		ActorID:   doc.CreatedBy,
		Action:    action,
		Entity:    "inventory_document",
		EntityID:  strconv.FormatInt(doc.ID, 10),
		Meta:      map[string]any{"number": doc.Number, "type": doc.Type, "lines": len(doc.Lines)},
	}
	if doc.PostedBy != nil {
		log.ActorID = *doc.PostedBy
	}
	db.AfterCommit(ctx, func(ctx context.Context) {
		if err := p.audit.Record(ctx, log); err != nil {
			p.logger.Warn("audit record failed", zap.String("action", action), zap.Error(err))
		}
	})
}

func lowerStatus(s Status) string {
	switch s {
	case StatusPosted:
		return "posted"
	case StatusVoid:
		return "void"
	default:
		return "draft"
	}
}

// UnpostedBlocker keeps a period open while it holds DRAFT documents.
type UnpostedBlocker struct {
	repo Repository
}

// NewUnpostedBlocker wraps repo as a period close precondition.
func NewUnpostedBlocker(repo Repository) UnpostedBlocker { return UnpostedBlocker{repo: repo} }

func (UnpostedBlocker) Name() string { return "draft inventory documents" }

func (b UnpostedBlocker) CountOpen(ctx context.Context, companyID int64, start, end time.Time) (int, error) {
	return b.repo.CountDrafts(ctx, companyID, start, end)
}
