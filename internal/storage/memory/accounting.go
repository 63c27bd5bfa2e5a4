package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledgercore/internal/accounting/accounts"
	"github.com/odyssey-erp/ledgercore/internal/accounting/journals"
	"github.com/odyssey-erp/ledgercore/internal/accounting/ledger"
	"github.com/odyssey-erp/ledgercore/internal/accounting/mappings"
	"github.com/odyssey-erp/ledgercore/internal/accounting/periods"
	"github.com/odyssey-erp/ledgercore/internal/shared"
)

// Accounts implements accounts.Repository.
type Accounts struct{ s *Store }

var _ accounts.Repository = (*Accounts)(nil)

func (r *Accounts) Insert(ctx context.Context, acc accounts.Account) (accounts.Account, error) {
	err := r.s.do(ctx, func(st *state) error {
		for _, other := range st.accounts {
			if other.CompanyID == acc.CompanyID && other.Code == acc.Code {
				return shared.Conflict("accounting: account code %s already exists", acc.Code)
			}
		}
		acc.ID = st.nextID()
		acc.CreatedAt = r.s.stamp()
		acc.UpdatedAt = acc.CreatedAt
		st.accounts[acc.ID] = acc
		return nil
	})
	return acc, err
}

func (r *Accounts) Update(ctx context.Context, acc accounts.Account) (accounts.Account, error) {
	var out accounts.Account
	err := r.s.do(ctx, func(st *state) error {
		cur, ok := st.accounts[acc.ID]
		if !ok || cur.CompanyID != acc.CompanyID {
			return shared.NotFound("account", acc.ID)
		}
		for _, other := range st.accounts {
			if other.ID != acc.ID && other.CompanyID == acc.CompanyID && other.Code == acc.Code {
				return shared.Conflict("accounting: account code %s already exists", acc.Code)
			}
		}
		acc.CreatedAt = cur.CreatedAt
		acc.UpdatedAt = r.s.stamp()
		st.accounts[acc.ID] = acc
		out = acc
		return nil
	})
	return out, err
}

func (r *Accounts) Delete(ctx context.Context, companyID, id int64) error {
	return r.s.do(ctx, func(st *state) error {
		acc, ok := st.accounts[id]
		if !ok || acc.CompanyID != companyID {
			return shared.NotFound("account", id)
		}
		delete(st.accounts, id)
		return nil
	})
}

func (r *Accounts) Get(ctx context.Context, companyID, id int64) (accounts.Account, error) {
	var out accounts.Account
	err := r.s.do(ctx, func(st *state) error {
		acc, ok := st.accounts[id]
		if !ok || acc.CompanyID != companyID {
			return shared.NotFound("account", id)
		}
		out = acc
		return nil
	})
	return out, err
}

func (r *Accounts) GetByCode(ctx context.Context, companyID int64, code string) (accounts.Account, error) {
	var out accounts.Account
	err := r.s.do(ctx, func(st *state) error {
		for _, acc := range st.accounts {
			if acc.CompanyID == companyID && acc.Code == code {
				out = acc
				return nil
			}
		}
		return shared.NotFound("account", code)
	})
	return out, err
}

func (r *Accounts) List(ctx context.Context, companyID int64) ([]accounts.Account, error) {
	return r.filter(ctx, func(acc accounts.Account) bool { return acc.CompanyID == companyID })
}

func (r *Accounts) ListByIDs(ctx context.Context, companyID int64, ids []int64) ([]accounts.Account, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	want := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	return r.filter(ctx, func(acc accounts.Account) bool {
		_, ok := want[acc.ID]
		return ok && acc.CompanyID == companyID
	})
}

func (r *Accounts) filter(ctx context.Context, keep func(accounts.Account) bool) ([]accounts.Account, error) {
	var out []accounts.Account
	err := r.s.do(ctx, func(st *state) error {
		for _, acc := range st.accounts {
			if keep(acc) {
				out = append(out, acc)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, err
}

func (r *Accounts) HasChildren(ctx context.Context, companyID, id int64) (bool, error) {
	var found bool
	err := r.s.do(ctx, func(st *state) error {
		for _, acc := range st.accounts {
			if acc.CompanyID == companyID && acc.ParentID != nil && *acc.ParentID == id {
				found = true
				return nil
			}
		}
		return nil
	})
	return found, err
}

func (r *Accounts) HasPostings(ctx context.Context, companyID, id int64) (bool, error) {
	var found bool
	err := r.s.do(ctx, func(st *state) error {
		for _, e := range st.entries {
			if e.CompanyID != companyID {
				continue
			}
			for _, l := range e.Lines {
				if l.AccountID == id {
					found = true
					return nil
				}
			}
		}
		for k := range st.openings {
			if k.companyID == companyID && k.accountID == id {
				found = true
				return nil
			}
		}
		return nil
	})
	return found, err
}

// Periods implements periods.Repository. Row locks are implied by the
// store-wide transaction lock.
type Periods struct{ s *Store }

var _ periods.Repository = (*Periods)(nil)

func (r *Periods) Insert(ctx context.Context, p periods.Period) (periods.Period, error) {
	err := r.s.do(ctx, func(st *state) error {
		p.ID = st.nextID()
		p.StartDate, p.EndDate = shared.DateOnly(p.StartDate), shared.DateOnly(p.EndDate)
		p.CreatedAt = r.s.stamp()
		p.UpdatedAt = p.CreatedAt
		st.periods[p.ID] = p
		return nil
	})
	return p, err
}

func (r *Periods) Get(ctx context.Context, companyID, id int64) (periods.Period, error) {
	var out periods.Period
	err := r.s.do(ctx, func(st *state) error {
		p, ok := st.periods[id]
		if !ok || p.CompanyID != companyID {
			return shared.NotFound("fiscal period", id)
		}
		out = p
		return nil
	})
	return out, err
}

func (r *Periods) GetForUpdate(ctx context.Context, companyID, id int64) (periods.Period, error) {
	return r.Get(ctx, companyID, id)
}

func (r *Periods) FindByDate(ctx context.Context, companyID int64, date time.Time) (periods.Period, error) {
	list, err := r.List(ctx, companyID)
	if err != nil {
		return periods.Period{}, err
	}
	for _, p := range list {
		if p.Contains(date) {
			return p, nil
		}
	}
	return periods.Period{}, shared.NotFound("fiscal period", date.Format(time.DateOnly))
}

func (r *Periods) FindByDateForShare(ctx context.Context, companyID int64, date time.Time) (periods.Period, error) {
	return r.FindByDate(ctx, companyID, date)
}

func (r *Periods) Overlapping(ctx context.Context, companyID int64, start, end time.Time) ([]periods.Period, error) {
	list, err := r.List(ctx, companyID)
	if err != nil {
		return nil, err
	}
	var out []periods.Period
	for _, p := range list {
		if p.Overlaps(start, end) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *Periods) List(ctx context.Context, companyID int64) ([]periods.Period, error) {
	var out []periods.Period
	err := r.s.do(ctx, func(st *state) error {
		for _, p := range st.periods {
			if p.CompanyID == companyID {
				out = append(out, p)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out, err
}

func (r *Periods) MarkClosed(ctx context.Context, p periods.Period) error {
	return r.s.do(ctx, func(st *state) error {
		cur, ok := st.periods[p.ID]
		if !ok || cur.CompanyID != p.CompanyID {
			return shared.NotFound("fiscal period", p.ID)
		}
		cur.Status, cur.ClosedAt, cur.ClosedBy = p.Status, p.ClosedAt, p.ClosedBy
		cur.UpdatedAt = r.s.stamp()
		st.periods[p.ID] = cur
		return nil
	})
}

func (r *Periods) UpsertOpening(ctx context.Context, ob periods.OpeningBalance) (periods.OpeningBalance, error) {
	err := r.s.do(ctx, func(st *state) error {
		ob.UpdatedAt = r.s.stamp()
		st.openings[openingKey{ob.CompanyID, ob.PeriodID, ob.AccountID}] = ob
		return nil
	})
	return ob, err
}

func (r *Periods) ListOpenings(ctx context.Context, companyID, periodID int64) ([]periods.OpeningBalance, error) {
	var out []periods.OpeningBalance
	err := r.s.do(ctx, func(st *state) error {
		for k, ob := range st.openings {
			if k.companyID == companyID && k.periodID == periodID {
				out = append(out, ob)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	return out, err
}

// checkJournalNumber mirrors the journal_entries constraints: drafts carry
// number 0 and posted numbers are unique per company.
func (st *state) checkJournalNumber(entry journals.JournalEntry) error {
	if entry.Status != journals.StatusPosted {
		if entry.Number != 0 {
			return shared.Validation("accounting: draft journal entries carry no number")
		}
		return nil
	}
	if entry.Number <= 0 {
		return shared.Validation("accounting: posted journal entry needs a number")
	}
	for _, other := range st.entries {
		if other.ID != entry.ID && other.CompanyID == entry.CompanyID && other.Status == journals.StatusPosted && other.Number == entry.Number {
			return shared.Conflict("accounting: journal number %d already used", entry.Number)
		}
	}
	return nil
}

// Journals implements journals.Repository.
type Journals struct{ s *Store }

var _ journals.Repository = (*Journals)(nil)

func (r *Journals) NextNumber(ctx context.Context, companyID int64) (int64, error) {
	var next int64
	err := r.s.do(ctx, func(st *state) error {
		st.journalSeq[companyID]++
		next = st.journalSeq[companyID]
		return nil
	})
	return next, err
}

func (r *Journals) Insert(ctx context.Context, entry journals.JournalEntry) (journals.JournalEntry, error) {
	err := r.s.do(ctx, func(st *state) error {
		if err := st.checkJournalNumber(entry); err != nil {
			return err
		}
		entry.ID = st.nextID()
		entry.CreatedAt = r.s.stamp()
		lines := make([]journals.JournalLine, len(entry.Lines))
		for i, l := range entry.Lines {
			l.ID = st.nextID()
			l.EntryID = entry.ID
			lines[i] = l
		}
		entry.Lines = lines
		st.entries[entry.ID] = entry
		return nil
	})
	return copyEntry(entry), err
}

func (r *Journals) Get(ctx context.Context, companyID, id int64) (journals.JournalEntry, error) {
	var out journals.JournalEntry
	err := r.s.do(ctx, func(st *state) error {
		e, ok := st.entries[id]
		if !ok || e.CompanyID != companyID {
			return shared.NotFound("journal entry", id)
		}
		out = copyEntry(e)
		return nil
	})
	return out, err
}

func (r *Journals) GetForUpdate(ctx context.Context, companyID, id int64) (journals.JournalEntry, error) {
	return r.Get(ctx, companyID, id)
}

func (r *Journals) MarkPosted(ctx context.Context, entry journals.JournalEntry) error {
	return r.s.do(ctx, func(st *state) error {
		cur, ok := st.entries[entry.ID]
		if !ok || cur.CompanyID != entry.CompanyID || cur.Status != journals.StatusDraft {
			return shared.AlreadyPosted("accounting: journal entry %d is no longer a draft", entry.ID)
		}
		if err := st.checkJournalNumber(entry); err != nil {
			return err
		}
		cur.Status, cur.Number, cur.PostedAt, cur.PostedBy = entry.Status, entry.Number, entry.PostedAt, entry.PostedBy
		st.entries[entry.ID] = cur
		return nil
	})
}

func (r *Journals) FindReversal(ctx context.Context, companyID, originalID int64) (int64, bool, error) {
	var id int64
	var found bool
	err := r.s.do(ctx, func(st *state) error {
		for _, e := range st.entries {
			if e.CompanyID == companyID && e.ReversalOf != nil && *e.ReversalOf == originalID {
				id, found = e.ID, true
				return nil
			}
		}
		return nil
	})
	return id, found, err
}

func (r *Journals) CountDrafts(ctx context.Context, companyID int64, start, end time.Time) (int, error) {
	var n int
	err := r.s.do(ctx, func(st *state) error {
		for _, e := range st.entries {
			if e.CompanyID == companyID && e.Status == journals.StatusDraft && within(e.Date, start, end) {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r *Journals) Unbalanced(ctx context.Context, companyID int64) ([]int64, error) {
	var out []int64
	err := r.s.do(ctx, func(st *state) error {
		for _, e := range st.entries {
			if e.CompanyID != companyID || e.Status != journals.StatusPosted {
				continue
			}
			if debit, credit := e.Totals(); !debit.Equal(credit) {
				out = append(out, e.ID)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, err
}

// Corrupt overwrites a stored line. It exists so integrity checks can be
// exercised against a ledger that no longer balances.
func (r *Journals) Corrupt(companyID, entryID int64, lineNo int, debit, credit decimal.Decimal) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.st.entries[entryID]
	if !ok || e.CompanyID != companyID {
		return
	}
	e = copyEntry(e)
	for i := range e.Lines {
		if e.Lines[i].LineNo == lineNo {
			e.Lines[i].Debit, e.Lines[i].Credit = debit, credit
		}
	}
	r.s.st.entries[entryID] = e
}

func copyEntry(e journals.JournalEntry) journals.JournalEntry {
	e.Lines = append([]journals.JournalLine(nil), e.Lines...)
	return e
}

func within(d, start, end time.Time) bool {
	d = shared.DateOnly(d)
	return !d.Before(shared.DateOnly(start)) && !d.After(shared.DateOnly(end))
}

// Ledger implements ledger.Store over the journal and period tables.
type Ledger struct{ s *Store }

var _ ledger.Store = (*Ledger)(nil)

func (r *Ledger) Postings(ctx context.Context, q ledger.Query) ([]ledger.Posting, error) {
	var out []ledger.Posting
	err := r.s.do(ctx, func(st *state) error {
		for _, e := range st.entries {
			if e.CompanyID != q.CompanyID || e.Status != journals.StatusPosted || e.Date.After(q.To) {
				continue
			}
			for _, l := range e.Lines {
				if q.AccountID != 0 && l.AccountID != q.AccountID {
					continue
				}
				out = append(out, ledger.Posting{
					EntryID:     e.ID,
					EntryNumber: e.Number,
					LineNo:      l.LineNo,
					Date:        e.Date,
					AccountID:   l.AccountID,
					SourceType:  string(e.SourceType),
					Memo:        l.Memo,
					Debit:       l.Debit,
					Credit:      l.Credit,
				})
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		switch {
		case !a.Date.Equal(b.Date):
			return a.Date.Before(b.Date)
		case a.EntryNumber != b.EntryNumber:
			return a.EntryNumber < b.EntryNumber
		default:
			return a.LineNo < b.LineNo
		}
	})
	return out, err
}

func (r *Ledger) Anchors(ctx context.Context, q ledger.Query) ([]ledger.Anchor, error) {
	var out []ledger.Anchor
	err := r.s.do(ctx, func(st *state) error {
		for k, ob := range st.openings {
			if k.companyID != q.CompanyID || (q.AccountID != 0 && k.accountID != q.AccountID) {
				continue
			}
			p, ok := st.periods[k.periodID]
			if !ok || p.StartDate.After(q.To) {
				continue
			}
			out = append(out, ledger.Anchor{AccountID: k.accountID, PeriodID: k.periodID, Start: p.StartDate, Debit: ob.Debit, Credit: ob.Credit})
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].AccountID != out[j].AccountID {
			return out[i].AccountID < out[j].AccountID
		}
		return out[i].Start.Before(out[j].Start)
	})
	return out, err
}

func (r *Ledger) Activity(ctx context.Context, companyID int64, from, to time.Time) ([]ledger.Activity, error) {
	totals := map[int64]*ledger.Activity{}
	err := r.s.do(ctx, func(st *state) error {
		for _, e := range st.entries {
			if e.CompanyID != companyID || e.Status != journals.StatusPosted || !within(e.Date, from, to) {
				continue
			}
			for _, l := range e.Lines {
				a, ok := totals[l.AccountID]
				if !ok {
					a = &ledger.Activity{AccountID: l.AccountID, Debit: decimal.Zero, Credit: decimal.Zero}
					totals[l.AccountID] = a
				}
				a.Debit = a.Debit.Add(l.Debit)
				a.Credit = a.Credit.Add(l.Credit)
			}
		}
		return nil
	})
	out := make([]ledger.Activity, 0, len(totals))
	for _, a := range totals {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	return out, err
}

// AggregateNet sums lines after each account's latest anchor without
// ordering them, mirroring the aggregate query of the PostgreSQL store.
func (r *Ledger) AggregateNet(ctx context.Context, companyID int64, asOf time.Time) (map[int64]decimal.Decimal, error) {
	out := map[int64]decimal.Decimal{}
	err := r.s.do(ctx, func(st *state) error {
		type anchor struct {
			start time.Time
			base  decimal.Decimal
		}
		anchors := map[int64]anchor{}
		for k, ob := range st.openings {
			if k.companyID != companyID {
				continue
			}
			p, ok := st.periods[k.periodID]
			if !ok || p.StartDate.After(asOf) {
				continue
			}
			if cur, ok := anchors[k.accountID]; ok && !p.StartDate.After(cur.start) {
				continue
			}
			anchors[k.accountID] = anchor{start: p.StartDate, base: ob.Debit.Sub(ob.Credit)}
		}
		for id, a := range anchors {
			out[id] = a.base
		}
		for _, e := range st.entries {
			if e.CompanyID != companyID || e.Status != journals.StatusPosted || e.Date.After(asOf) {
				continue
			}
			for _, l := range e.Lines {
				if a, ok := anchors[l.AccountID]; ok && e.Date.Before(a.start) {
					continue
				}
				out[l.AccountID] = out[l.AccountID].Add(l.Debit.Sub(l.Credit))
			}
		}
		return nil
	})
	return out, err
}

// Mappings implements mappings.Repository.
type Mappings struct{ s *Store }

var _ mappings.Repository = (*Mappings)(nil)

func (r *Mappings) Get(ctx context.Context, companyID int64, module, key string) (mappings.AccountMapping, error) {
	if module == "" || key == "" {
		return mappings.AccountMapping{}, shared.Validation("accounting: module and key required")
	}
	var out mappings.AccountMapping
	err := r.s.do(ctx, func(st *state) error {
		m, ok := st.mappings[mappingKey{companyID, moduleName(module), key}]
		if !ok {
			return mappings.Missing(module, key)
		}
		out = m
		return nil
	})
	return out, err
}

func (r *Mappings) Upsert(ctx context.Context, m mappings.AccountMapping) (mappings.AccountMapping, error) {
	err := r.s.do(ctx, func(st *state) error {
		m.Module = moduleName(m.Module)
		k := mappingKey{m.CompanyID, m.Module, m.Key}
		now := r.s.stamp()
		m.CreatedAt, m.UpdatedAt = now, now
		if cur, ok := st.mappings[k]; ok {
			m.CreatedAt = cur.CreatedAt
		}
		st.mappings[k] = m
		return nil
	})
	return m, err
}

func (r *Mappings) List(ctx context.Context, companyID int64, module string) ([]mappings.AccountMapping, error) {
	var out []mappings.AccountMapping
	err := r.s.do(ctx, func(st *state) error {
		for k, m := range st.mappings {
			if k.companyID == companyID && k.module == moduleName(module) {
				out = append(out, m)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, err
}

func moduleName(module string) string {
	return strings.ToLower(strings.TrimSpace(module))
}
