package ledger

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/odyssey-erp/ledgercore/internal/accounting/accounts"
	"github.com/odyssey-erp/ledgercore/internal/shared"
)

// AccountSource lists the chart of accounts.
type AccountSource interface {
	Get(ctx context.Context, companyID, id int64) (accounts.Account, error)
	List(ctx context.Context, companyID int64) ([]accounts.Account, error)
}

// Service answers ledger and balance queries.
type Service struct {
	store    Store
	accounts AccountSource
	cache    *Cache
	logger   *zap.Logger
}

// NewService wires the projection. cache may be nil.
func NewService(store Store, source AccountSource, cache *Cache, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, accounts: source, cache: cache, logger: logger.Named("ledger")}
}

// AccountLedger returns the running ledger of one account between from and to
// inclusive.
func (s *Service) AccountLedger(ctx context.Context, companyID, accountID int64, from, to time.Time) (AccountLedger, error) {
	from, to = shared.DateOnly(from), shared.DateOnly(to)
	if from.After(to) {
		return AccountLedger{}, shared.Validation("accounting: ledger range %s..%s is inverted", from.Format(time.DateOnly), to.Format(time.DateOnly))
	}
	acc, err := s.accounts.Get(ctx, companyID, accountID)
	if err != nil {
		return AccountLedger{}, err
	}
	q := Query{CompanyID: companyID, AccountID: accountID, To: to}
	postings, err := s.store.Postings(ctx, q)
	if err != nil {
		return AccountLedger{}, err
	}
	anchors, err := s.store.Anchors(ctx, q)
	if err != nil {
		return AccountLedger{}, err
	}

	out := AccountLedger{
		Account:     acc,
		From:        from,
		To:          to,
		Opening:     decimal.Zero,
		Lines:       make([]Line, 0, len(postings)),
		TotalDebit:  decimal.Zero,
		TotalCredit: decimal.Zero,
	}
	net := fold(anchors, postings, func(st step) {
		d := st.date()
		if d.Before(from) || (st.anchor != nil && d.Equal(from)) {
			out.Opening = Signed(acc, st.net)
			return
		}
		if st.anchor != nil {
			out.Lines = append(out.Lines, Line{
				Date:       d,
				SourceType: "OPENING",
				Opening:    true,
				Debit:      st.anchor.Debit,
				Credit:     st.anchor.Credit,
				Balance:    Signed(acc, st.net),
			})
			return
		}
		p := st.posting
		out.Lines = append(out.Lines, Line{
			Date:        d,
			EntryID:     p.EntryID,
			EntryNumber: p.EntryNumber,
			LineNo:      p.LineNo,
			SourceType:  p.SourceType,
			Memo:        p.Memo,
			Debit:       p.Debit,
			Credit:      p.Credit,
			Balance:     Signed(acc, st.net),
		})
		out.TotalDebit = out.TotalDebit.Add(p.Debit)
		out.TotalCredit = out.TotalCredit.Add(p.Credit)
	})
	out.Closing = Signed(acc, net)
	return out, nil
}

// AllAccountBalances returns the ending balance of every account as of asOf,
// ordered by account code. Accounts without activity carry zero.
func (s *Service) AllAccountBalances(ctx context.Context, companyID int64, asOf time.Time) ([]AccountBalance, error) {
	asOf = shared.DateOnly(asOf)
	return s.cache.balances(ctx, companyID, asOf, func(ctx context.Context) ([]AccountBalance, error) {
		return s.computeBalances(ctx, companyID, asOf)
	})
}

func (s *Service) computeBalances(ctx context.Context, companyID int64, asOf time.Time) ([]AccountBalance, error) {
	list, err := s.accounts.List(ctx, companyID)
	if err != nil {
		return nil, err
	}
	q := Query{CompanyID: companyID, To: asOf}
	postings, err := s.store.Postings(ctx, q)
	if err != nil {
		return nil, err
	}
	anchors, err := s.store.Anchors(ctx, q)
	if err != nil {
		return nil, err
	}
	nets := netByAccount(anchors, postings)
	out := make([]AccountBalance, 0, len(list))
	for _, acc := range list {
		net, ok := nets[acc.ID]
		if !ok {
			net = decimal.Zero
		}
		out = append(out, newBalance(acc, net))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

// Activity returns per-account debit and credit totals of lines dated within
// from..to inclusive.
func (s *Service) Activity(ctx context.Context, companyID int64, from, to time.Time) ([]Activity, error) {
	from, to = shared.DateOnly(from), shared.DateOnly(to)
	if from.After(to) {
		return nil, shared.Validation("accounting: activity range %s..%s is inverted", from.Format(time.DateOnly), to.Format(time.DateOnly))
	}
	return s.store.Activity(ctx, companyID, from, to)
}

// Verify compares the fold with the store's aggregate and returns the
// accounts whose balances disagree.
func (s *Service) Verify(ctx context.Context, companyID int64, asOf time.Time) ([]int64, error) {
	asOf = shared.DateOnly(asOf)
	folded, err := s.computeBalances(ctx, companyID, asOf)
	if err != nil {
		return nil, err
	}
	aggregate, err := s.store.AggregateNet(ctx, companyID, asOf)
	if err != nil {
		return nil, err
	}
	var drift []int64
	for _, b := range folded {
		want, ok := aggregate[b.ID]
		if !ok {
			want = decimal.Zero
		}
		got := b.Debit.Sub(b.Credit)
		if !got.Equal(want) {
			drift = append(drift, b.ID)
			s.logger.Warn("balance drift",
				zap.Int64("company_id", companyID),
				zap.String("account", b.Code),
				zap.String("fold", got.String()),
				zap.String("aggregate", want.String()))
		}
	}
	return drift, nil
}

// Invalidate drops memoized balances of the company.
func (s *Service) Invalidate(ctx context.Context, companyID int64) error {
	return s.cache.Invalidate(ctx, companyID)
}
