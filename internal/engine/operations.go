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
	"github.com/odyssey-erp/ledgercore/internal/inventory"
	"github.com/odyssey-erp/ledgercore/internal/inventory/documents"
	"github.com/odyssey-erp/ledgercore/internal/platform/httpx"
	"github.com/odyssey-erp/ledgercore/internal/shared"
)

// Empty is the payload of operations that return nothing.
type Empty struct{}

func respond[T any](e *Engine, op string, data T, err error) httpx.Result[T] {
	if err != nil {
		e.logFailure(op, err)
	}
	return httpx.From(data, err)
}

func (e *Engine) logFailure(op string, err error) {
	if shared.IsBusiness(err) {
		e.logger.Debug("operation rejected", zap.String("op", op), zap.Error(err))
		return
	}
	e.logger.Error("operation failed", zap.String("op", op), zap.Error(err))
}

// CreateAccount registers an account.
func (e *Engine) CreateAccount(ctx context.Context, in accounts.CreateInput) httpx.Result[accounts.Account] {
	acc, err := e.Accounts.Create(ctx, in)
	return respond(e, "account.create", acc, err)
}

// UpdateAccount applies a partial update to an account.
func (e *Engine) UpdateAccount(ctx context.Context, companyID, id int64, in accounts.UpdateInput) httpx.Result[accounts.Account] {
	acc, err := e.Accounts.Update(ctx, companyID, id, in)
	return respond(e, "account.update", acc, err)
}

// DeleteAccount removes an unused leaf account.
func (e *Engine) DeleteAccount(ctx context.Context, companyID, id, actorID int64) httpx.Result[Empty] {
	err := e.Accounts.Delete(ctx, companyID, id, actorID)
	return respond(e, "account.delete", Empty{}, err)
}

// GetAccount returns an account by id.
func (e *Engine) GetAccount(ctx context.Context, companyID, id int64) httpx.Result[accounts.Account] {
	acc, err := e.Accounts.Get(ctx, companyID, id)
	return respond(e, "account.get", acc, err)
}

// AccountByCode returns an account by code.
func (e *Engine) AccountByCode(ctx context.Context, companyID int64, code string) httpx.Result[accounts.Account] {
	acc, err := e.Accounts.GetByCode(ctx, companyID, code)
	return respond(e, "account.by_code", acc, err)
}

// AccountTree returns the chart of accounts hierarchy.
func (e *Engine) AccountTree(ctx context.Context, companyID int64) httpx.Result[[]*accounts.Node] {
	tree, err := e.Accounts.Tree(ctx, companyID)
	return respond(e, "account.tree", tree, err)
}

// CreatePeriod opens a fiscal period.
func (e *Engine) CreatePeriod(ctx context.Context, in periods.CreateInput) httpx.Result[periods.Period] {
	p, err := e.Periods.Create(ctx, in)
	return respond(e, "period.create", p, err)
}

// ClosePeriod closes a fiscal period.
func (e *Engine) ClosePeriod(ctx context.Context, companyID, periodID, actorID int64) httpx.Result[periods.Period] {
	p, err := e.Periods.Close(ctx, companyID, periodID, actorID)
	return respond(e, "period.close", p, err)
}

// PeriodFor returns the period covering date regardless of status.
func (e *Engine) PeriodFor(ctx context.Context, companyID int64, date time.Time) httpx.Result[periods.Period] {
	p, err := e.Periods.FindByDate(ctx, companyID, date)
	return respond(e, "period.find", p, err)
}

// SetOpeningBalance upserts an opening balance row.
func (e *Engine) SetOpeningBalance(ctx context.Context, in periods.OpeningBalanceInput) httpx.Result[periods.OpeningBalance] {
	ob, err := e.Periods.SetOpeningBalance(ctx, in)
	return respond(e, "period.opening_balance", ob, err)
}

// PostJournal creates and posts an entry in one step.
func (e *Engine) PostJournal(ctx context.Context, in journals.PostingInput) httpx.Result[journals.JournalEntry] {
	entry, err := e.Journals.CreateAndPost(ctx, in)
	return respond(e, "journal.post", entry, err)
}

// CreateDraftJournal stores an unposted entry.
func (e *Engine) CreateDraftJournal(ctx context.Context, in journals.PostingInput) httpx.Result[journals.JournalEntry] {
	entry, err := e.Journals.CreateDraft(ctx, in)
	return respond(e, "journal.draft", entry, err)
}

// PostDraftJournal posts a stored draft.
func (e *Engine) PostDraftJournal(ctx context.Context, companyID, id, actorID int64) httpx.Result[journals.JournalEntry] {
	entry, err := e.Journals.PostDraft(ctx, companyID, id, actorID)
	return respond(e, "journal.post_draft", entry, err)
}

// ReverseJournal posts the mirror of a posted entry.
func (e *Engine) ReverseJournal(ctx context.Context, in journals.ReverseInput) httpx.Result[journals.JournalEntry] {
	entry, err := e.Journals.Reverse(ctx, in)
	return respond(e, "journal.reverse", entry, err)
}

// GetJournal returns an entry with its lines.
func (e *Engine) GetJournal(ctx context.Context, companyID, id int64) httpx.Result[journals.JournalEntry] {
	entry, err := e.Journals.Get(ctx, companyID, id)
	return respond(e, "journal.get", entry, err)
}

// AccountLedger returns the running ledger of an account.
func (e *Engine) AccountLedger(ctx context.Context, companyID, accountID int64, from, to time.Time) httpx.Result[ledger.AccountLedger] {
	l, err := e.Ledger.AccountLedger(ctx, companyID, accountID, from, to)
	return respond(e, "ledger.account", l, err)
}

// AllAccountBalances returns every account's ending balance as of asOf.
func (e *Engine) AllAccountBalances(ctx context.Context, companyID int64, asOf time.Time) httpx.Result[[]ledger.AccountBalance] {
	b, err := e.Ledger.AllAccountBalances(ctx, companyID, asOf)
	return respond(e, "ledger.balances", b, err)
}

// BalanceSheet builds the statement of financial position.
func (e *Engine) BalanceSheet(ctx context.Context, companyID int64, asOf time.Time) httpx.Result[reports.BalanceSheet] {
	bs, err := e.Reports.BalanceSheet(ctx, companyID, asOf)
	return respond(e, "report.balance_sheet", bs, err)
}

// IncomeStatement builds the profit and loss statement.
func (e *Engine) IncomeStatement(ctx context.Context, companyID int64, from, to time.Time) httpx.Result[reports.IncomeStatement] {
	is, err := e.Reports.IncomeStatement(ctx, companyID, from, to)
	return respond(e, "report.income_statement", is, err)
}

// TrialBalance builds the trial balance.
func (e *Engine) TrialBalance(ctx context.Context, companyID int64, from, to time.Time) httpx.Result[reports.TrialBalance] {
	tb, err := e.Reports.TrialBalance(ctx, companyID, from, to)
	return respond(e, "report.trial_balance", tb, err)
}

// SetMapping binds a system account key.
func (e *Engine) SetMapping(ctx context.Context, companyID int64, module, key string, accountID int64) httpx.Result[mappings.AccountMapping] {
	m, err := e.Mappings.Set(ctx, companyID, module, key, accountID)
	return respond(e, "mapping.set", m, err)
}

// SubmitDocument validates and applies an inventory document.
func (e *Engine) SubmitDocument(ctx context.Context, req documents.Request) httpx.Result[documents.Document] {
	doc, err := e.Documents.Submit(ctx, req)
	return respond(e, "document.submit", doc, err)
}

// GetDocument returns a document with its lines.
func (e *Engine) GetDocument(ctx context.Context, companyID, id int64) httpx.Result[documents.Document] {
	doc, err := e.Documents.Get(ctx, companyID, id)
	return respond(e, "document.get", doc, err)
}

// RecordCount stores counted quantities on a draft count.
func (e *Engine) RecordCount(ctx context.Context, companyID, countID int64, entries []documents.CountEntry) httpx.Result[documents.Document] {
	doc, err := e.Documents.RecordCount(ctx, companyID, countID, entries)
	return respond(e, "count.record", doc, err)
}

// PostCount posts a draft count.
func (e *Engine) PostCount(ctx context.Context, companyID, countID, actorID int64) httpx.Result[documents.Document] {
	doc, err := e.Documents.PostCount(ctx, companyID, countID, actorID)
	return respond(e, "count.post", doc, err)
}

// VoidCount voids a draft count.
func (e *Engine) VoidCount(ctx context.Context, companyID, countID, actorID int64) httpx.Result[documents.Document] {
	doc, err := e.Documents.VoidCount(ctx, companyID, countID, actorID)
	return respond(e, "count.void", doc, err)
}

// LoanStatus reports the outstanding quantities of a loan.
func (e *Engine) LoanStatus(ctx context.Context, companyID, loanID int64) httpx.Result[documents.LoanStatus] {
	st, err := e.Documents.LoanStatus(ctx, companyID, loanID)
	return respond(e, "loan.status", st, err)
}

// StockBalance returns the balance of one stock key.
func (e *Engine) StockBalance(ctx context.Context, key inventory.Key) httpx.Result[inventory.Balance] {
	b, err := e.Stock.Balance(ctx, key)
	return respond(e, "stock.balance", b, err)
}

// ItemBalances returns every location balance of an item.
func (e *Engine) ItemBalances(ctx context.Context, companyID, itemID int64) httpx.Result[[]inventory.Balance] {
	b, err := e.Stock.Balances(ctx, companyID, itemID)
	return respond(e, "stock.balances", b, err)
}

// StockLedger returns one page of the item stock ledger.
func (e *Engine) StockLedger(ctx context.Context, q inventory.LedgerQuery) httpx.Result[inventory.LedgerPage] {
	page, err := e.Stock.Page(ctx, q)
	return respond(e, "stock.ledger", page, err)
}

// ReplayStock refolds the ledger of a key and compares it with the balance.
func (e *Engine) ReplayStock(ctx context.Context, key inventory.Key) httpx.Result[inventory.ReplayReport] {
	rep, err := e.Stock.Replay(ctx, key)
	return respond(e, "stock.replay", rep, err)
}

// CheckIntegrity runs the general ledger consistency checks.
func (e *Engine) CheckIntegrity(ctx context.Context, companyID int64, asOf time.Time) httpx.Result[IntegrityReport] {
	rep, err := e.Integrity(ctx, companyID, asOf)
	return respond(e, "ledger.integrity", rep, err)
}
