package reports

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/ledgercore/internal/accounting/accounts"
	"github.com/odyssey-erp/ledgercore/internal/accounting/ledger"
	"github.com/odyssey-erp/ledgercore/internal/platform/db"
	"github.com/odyssey-erp/ledgercore/internal/shared"
)

// BalanceSource exposes ledger projections.
type BalanceSource interface {
	AllAccountBalances(ctx context.Context, companyID int64, asOf time.Time) ([]ledger.AccountBalance, error)
	Activity(ctx context.Context, companyID int64, from, to time.Time) ([]ledger.Activity, error)
}

// TreeSource exposes the chart of accounts hierarchy.
type TreeSource interface {
	Tree(ctx context.Context, companyID int64) ([]*accounts.Node, error)
}

// Service builds statements.
type Service struct {
	balances BalanceSource
	tree     TreeSource
	logger   *zap.Logger
}

// NewService wires the statement builder.
func NewService(balances BalanceSource, tree TreeSource, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{balances: balances, tree: tree, logger: logger.Named("reports")}
}

// BalanceSheet aggregates balances as of asOf into assets, liabilities and
// equity. An imbalance is reported through Warnings.
func (s *Service) BalanceSheet(ctx context.Context, companyID int64, asOf time.Time) (BalanceSheet, error) {
	asOf = shared.DateOnly(asOf)
	var (
		roots    []*accounts.Node
		balances []ledger.AccountBalance
	)
	err := gather(ctx,
		func(ctx context.Context) (err error) { roots, err = s.tree.Tree(ctx, companyID); return err },
		func(ctx context.Context) (err error) {
			balances, err = s.balances.AllAccountBalances(ctx, companyID, asOf)
			return err
		},
	)
	if err != nil {
		return BalanceSheet{}, err
	}
	nets := netsOf(balances)

	bs := BalanceSheet{
		CompanyID:   companyID,
		AsOf:        asOf,
		Assets:      buildSection("Assets", accounts.ClassAsset, roots, nets),
		Liabilities: buildSection("Liabilities", accounts.ClassLiability, roots, nets),
		Equity:      buildSection("Equity", accounts.ClassEquity, roots, nets),
	}
	earnings := decimal.Zero
	for _, b := range balances {
		if !b.Class.IsBalanceSheet() {
			earnings = earnings.Add(b.Credit).Sub(b.Debit)
		}
	}
	bs.CurrentEarnings = earnings
	bs.Equity.Rows = append(bs.Equity.Rows, Row{Code: "", Name: "Current earnings", Computed: true, Amount: earnings})
	bs.Equity.Total = bs.Equity.Total.Add(earnings)
	bs.TotalLiabilitiesAndEquity = bs.Liabilities.Total.Add(bs.Equity.Total)
	bs.Balanced = bs.Assets.Total.Equal(bs.TotalLiabilitiesAndEquity)
	if !bs.Balanced {
		bs.Warnings = append(bs.Warnings, fmt.Sprintf("assets %s do not equal liabilities and equity %s (difference %s)",
			bs.Assets.Total, bs.TotalLiabilitiesAndEquity, bs.Assets.Total.Sub(bs.TotalLiabilitiesAndEquity)))
		s.logger.Warn("balance sheet out of balance",
			zap.Int64("company_id", companyID),
			zap.String("as_of", asOf.Format(time.DateOnly)),
			zap.String("difference", bs.Assets.Total.Sub(bs.TotalLiabilitiesAndEquity).String()))
	}
	bs.Warnings = append(bs.Warnings, misplaced(roots)...)
	return bs, nil
}

// IncomeStatement summarises activity of lines dated within from..to.
func (s *Service) IncomeStatement(ctx context.Context, companyID int64, from, to time.Time) (IncomeStatement, error) {
	from, to = shared.DateOnly(from), shared.DateOnly(to)
	if from.After(to) {
		return IncomeStatement{}, shared.Validation("accounting: income statement range %s..%s is inverted",
			from.Format(time.DateOnly), to.Format(time.DateOnly))
	}
	var (
		roots    []*accounts.Node
		activity []ledger.Activity
	)
	err := gather(ctx,
		func(ctx context.Context) (err error) { roots, err = s.tree.Tree(ctx, companyID); return err },
		func(ctx context.Context) (err error) {
			activity, err = s.balances.Activity(ctx, companyID, from, to)
			return err
		},
	)
	if err != nil {
		return IncomeStatement{}, err
	}
	nets := make(map[int64]decimal.Decimal, len(activity))
	for _, a := range activity {
		nets[a.AccountID] = a.Debit.Sub(a.Credit)
	}

	is := IncomeStatement{
		CompanyID:         companyID,
		From:              from,
		To:                to,
		Revenue:           buildSection("Revenue", accounts.ClassRevenue, roots, nets),
		COGS:              buildSection("Cost of goods sold", accounts.ClassCOGS, roots, nets),
		OperatingExpenses: buildSection("Operating expenses", accounts.ClassExpense, roots, nets),
		OtherIncome:       buildSection("Other income", accounts.ClassOtherIncome, roots, nets),
		OtherExpenses:     buildSection("Other expenses", accounts.ClassOtherExpense, roots, nets),
	}
	is.GrossProfit = is.Revenue.Total.Sub(is.COGS.Total)
	is.OperatingIncome = is.GrossProfit.Sub(is.OperatingExpenses.Total)
	is.NetIncome = is.OperatingIncome.Add(is.OtherIncome.Total).Sub(is.OtherExpenses.Total)
	return is, nil
}

// TrialBalance lists opening, period activity and closing per posting account.
func (s *Service) TrialBalance(ctx context.Context, companyID int64, from, to time.Time) (TrialBalance, error) {
	from, to = shared.DateOnly(from), shared.DateOnly(to)
	if from.After(to) {
		return TrialBalance{}, shared.Validation("accounting: trial balance range %s..%s is inverted",
			from.Format(time.DateOnly), to.Format(time.DateOnly))
	}
	var (
		opening, closing []ledger.AccountBalance
		activity         []ledger.Activity
	)
	err := gather(ctx,
		func(ctx context.Context) (err error) {
			opening, err = s.balances.AllAccountBalances(ctx, companyID, from.AddDate(0, 0, -1))
			return err
		},
		func(ctx context.Context) (err error) {
			closing, err = s.balances.AllAccountBalances(ctx, companyID, to)
			return err
		},
		func(ctx context.Context) (err error) {
			activity, err = s.balances.Activity(ctx, companyID, from, to)
			return err
		},
	)
	if err != nil {
		return TrialBalance{}, err
	}
	return buildTrialBalance(companyID, from, to, opening, closing, activity), nil
}

func buildTrialBalance(companyID int64, from, to time.Time, opening, closing []ledger.AccountBalance, activity []ledger.Activity) TrialBalance {
	openNets := netsOf(opening)
	moves := make(map[int64]ledger.Activity, len(activity))
	for _, a := range activity {
		moves[a.AccountID] = a
	}
	groups := make(map[accounts.Class]*TrialBalanceGroup)
	tb := TrialBalance{
		CompanyID:    companyID,
		From:         from,
		To:           to,
		TotalOpening: decimal.Zero,
		TotalDebit:   decimal.Zero,
		TotalCredit:  decimal.Zero,
		TotalClosing: decimal.Zero,
	}
	for _, b := range closing {
		if !b.IsPosting {
			continue
		}
		mv, ok := moves[b.ID]
		if !ok {
			mv = ledger.Activity{AccountID: b.ID, Debit: decimal.Zero, Credit: decimal.Zero}
		}
		row := TrialBalanceAccount{
			AccountID: b.ID,
			Code:      b.Code,
			Name:      b.Name,
			Opening:   openNets[b.ID],
			Debit:     mv.Debit,
			Credit:    mv.Credit,
			Closing:   b.Debit.Sub(b.Credit),
		}
		if row.Opening.IsZero() && row.Debit.IsZero() && row.Credit.IsZero() && row.Closing.IsZero() {
			continue
		}
		if !row.Opening.Add(row.Debit).Sub(row.Credit).Equal(row.Closing) {
			tb.Warnings = append(tb.Warnings, fmt.Sprintf("account %s was reset by an opening balance within the range", b.Code))
		}
		grp, ok := groups[b.Class]
		if !ok {
			grp = &TrialBalanceGroup{Class: b.Class, Opening: decimal.Zero, Debit: decimal.Zero, Credit: decimal.Zero, Closing: decimal.Zero}
			groups[b.Class] = grp
		}
		grp.Accounts = append(grp.Accounts, row)
		grp.Opening = grp.Opening.Add(row.Opening)
		grp.Debit = grp.Debit.Add(row.Debit)
		grp.Credit = grp.Credit.Add(row.Credit)
		grp.Closing = grp.Closing.Add(row.Closing)
	}
	for _, class := range classOrder {
		grp, ok := groups[class]
		if !ok {
			continue
		}
		tb.Groups = append(tb.Groups, *grp)
		tb.TotalOpening = tb.TotalOpening.Add(grp.Opening)
		tb.TotalDebit = tb.TotalDebit.Add(grp.Debit)
		tb.TotalCredit = tb.TotalCredit.Add(grp.Credit)
		tb.TotalClosing = tb.TotalClosing.Add(grp.Closing)
	}
	if !tb.TotalDebit.Equal(tb.TotalCredit) {
		tb.Warnings = append(tb.Warnings, fmt.Sprintf("period debits %s do not equal credits %s", tb.TotalDebit, tb.TotalCredit))
	}
	return tb
}

func netsOf(balances []ledger.AccountBalance) map[int64]decimal.Decimal {
	out := make(map[int64]decimal.Decimal, len(balances))
	for _, b := range balances {
		out[b.ID] = b.Debit.Sub(b.Credit)
	}
	return out
}

// gather runs loaders concurrently, or in order inside a transaction: a
// pgx.Tx serves one query at a time.
func gather(ctx context.Context, loaders ...func(context.Context) error) error {
	if db.InScope(ctx) {
		for _, load := range loaders {
			if err := load(ctx); err != nil {
				return err
			}
		}
		return nil
	}
	g, ctx := errgroup.WithContext(ctx)
	for _, load := range loaders {
		g.Go(func() error { return load(ctx) })
	}
	return g.Wait()
}
