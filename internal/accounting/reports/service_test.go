package reports_test

import (
	"bytes"
	"context"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/odyssey-erp/ledgercore/internal/accounting/journals"
	"github.com/odyssey-erp/ledgercore/internal/accounting/reports"
	"github.com/odyssey-erp/ledgercore/internal/shared"
	"github.com/odyssey-erp/ledgercore/internal/testing/fixture"
)

func post(t *testing.T, b *fixture.Books, day int, debitCode, creditCode, amount string) {
	t.Helper()
	_, err := b.Engine.Journals.CreateAndPost(context.Background(), journals.PostingInput{
		CompanyID:  fixture.CompanyID,
		Date:       fixture.Day(day),
		SourceType: journals.SourceManual,
		ActorID:    fixture.Actor,
		Lines: []journals.PostingLineInput{
			{AccountID: b.AccountID(debitCode), Debit: fixture.D(amount)},
			{AccountID: b.AccountID(creditCode), Credit: fixture.D(amount)},
		},
	})
	require.NoError(t, err)
}

// trade seeds a month of activity: capital, a purchase on credit, a sale,
// its cost and two stock adjustments.
func trade(t *testing.T, b *fixture.Books) {
	post(t, b, 2, fixture.Cash, fixture.Capital, "1000")
	post(t, b, 3, fixture.Inventory, fixture.Payables, "200")
	post(t, b, 10, fixture.Cash, fixture.Sales, "300")
	post(t, b, 10, fixture.COGS, fixture.Inventory, "120")
	post(t, b, 20, fixture.Inventory, fixture.AdjustmentGain, "10")
	post(t, b, 21, fixture.AdjustmentLoss, fixture.Cash, "5")
}

func find(t *testing.T, sec reports.Section, code string) reports.Row {
	t.Helper()
	for _, row := range sec.Rows {
		if row.Code == code {
			return row
		}
	}
	t.Fatalf("row %s not found in %s", code, sec.Label)
	return reports.Row{}
}

func TestBalanceSheet(t *testing.T) {
	b := fixture.New(t)
	trade(t, b)

	bs, err := b.Engine.Reports.BalanceSheet(context.Background(), fixture.CompanyID, fixture.Day(31))
	require.NoError(t, err)
	require.True(t, bs.Balanced)
	require.Empty(t, bs.Warnings)
	require.True(t, fixture.D("1385").Equal(bs.Assets.Total))
	require.True(t, fixture.D("200").Equal(bs.Liabilities.Total))
	require.True(t, fixture.D("185").Equal(bs.CurrentEarnings))
	require.True(t, fixture.D("1185").Equal(bs.Equity.Total))
	require.True(t, fixture.D("1385").Equal(bs.TotalLiabilitiesAndEquity))

	header := find(t, bs.Assets, "1000")
	require.False(t, header.IsPosting)
	require.Zero(t, header.Depth)
	require.True(t, fixture.D("1385").Equal(header.Amount))
	require.True(t, fixture.D("1295").Equal(find(t, bs.Assets, fixture.Cash).Amount))
	require.True(t, fixture.D("90").Equal(find(t, bs.Assets, fixture.Inventory).Amount))

	last := bs.Equity.Rows[len(bs.Equity.Rows)-1]
	require.True(t, last.Computed)
	require.True(t, fixture.D("185").Equal(last.Amount))

	early, err := b.Engine.Reports.BalanceSheet(context.Background(), fixture.CompanyID, fixture.Day(2))
	require.NoError(t, err)
	require.True(t, fixture.D("1000").Equal(early.Assets.Total))
	require.True(t, early.CurrentEarnings.IsZero())
}

func TestBalanceSheetIdentityHoldsForRandomActivity(t *testing.T) {
	b := fixture.New(t)
	rng := rand.New(rand.NewPCG(21, 8))
	codes := []string{
		fixture.Cash, fixture.Inventory, fixture.LoanReceivable, fixture.Payables, fixture.Capital,
		fixture.Sales, fixture.COGS, fixture.AdjustmentLoss, fixture.AdjustmentGain,
	}
	for i := 0; i < 50; i++ {
		amount := decimal.New(rng.Int64N(1_000_000)+1, -2).String()
		post(t, b, rng.IntN(31)+1, codes[rng.IntN(len(codes))], codes[rng.IntN(len(codes))], amount)
	}
	for _, day := range []int{1, 10, 20, 31} {
		bs, err := b.Engine.Reports.BalanceSheet(context.Background(), fixture.CompanyID, fixture.Day(day))
		require.NoError(t, err)
		require.True(t, bs.Balanced, "day %d: %v", day, bs.Warnings)

		is, err := b.Engine.Reports.IncomeStatement(context.Background(), fixture.CompanyID, fixture.Day(1), fixture.Day(day))
		require.NoError(t, err)
		require.True(t, bs.CurrentEarnings.Equal(is.NetIncome), "day %d", day)
	}
}

func TestIncomeStatement(t *testing.T) {
	b := fixture.New(t)
	trade(t, b)

	is, err := b.Engine.Reports.IncomeStatement(context.Background(), fixture.CompanyID, fixture.Day(1), fixture.Day(31))
	require.NoError(t, err)
	require.True(t, fixture.D("300").Equal(is.Revenue.Total))
	require.True(t, fixture.D("120").Equal(is.COGS.Total))
	require.True(t, fixture.D("180").Equal(is.GrossProfit))
	require.True(t, fixture.D("5").Equal(is.OperatingExpenses.Total))
	require.True(t, fixture.D("175").Equal(is.OperatingIncome))
	require.True(t, fixture.D("10").Equal(is.OtherIncome.Total))
	require.True(t, is.OtherExpenses.Total.IsZero())
	require.True(t, fixture.D("185").Equal(is.NetIncome))

	window, err := b.Engine.Reports.IncomeStatement(context.Background(), fixture.CompanyID, fixture.Day(15), fixture.Day(31))
	require.NoError(t, err)
	require.True(t, window.Revenue.Total.IsZero())
	require.True(t, fixture.D("5").Equal(window.NetIncome))

	_, err = b.Engine.Reports.IncomeStatement(context.Background(), fixture.CompanyID, fixture.Day(31), fixture.Day(1))
	require.Equal(t, shared.KindValidation, shared.KindOf(err))
}

func TestTrialBalance(t *testing.T) {
	b := fixture.New(t)
	trade(t, b)

	tb, err := b.Engine.Reports.TrialBalance(context.Background(), fixture.CompanyID, fixture.Day(10), fixture.Day(31))
	require.NoError(t, err)
	require.Empty(t, tb.Warnings)
	require.True(t, tb.TotalDebit.Equal(tb.TotalCredit))
	require.True(t, tb.TotalOpening.IsZero())
	require.True(t, tb.TotalClosing.IsZero())

	var cash reports.TrialBalanceAccount
	for _, grp := range tb.Groups {
		for _, acc := range grp.Accounts {
			require.NotEqual(t, fixture.LoanReceivable, acc.Code, "untouched accounts are omitted")
			if acc.Code == fixture.Cash {
				cash = acc
			}
		}
	}
	require.True(t, fixture.D("1000").Equal(cash.Opening))
	require.True(t, fixture.D("300").Equal(cash.Debit))
	require.True(t, fixture.D("5").Equal(cash.Credit))
	require.True(t, fixture.D("1295").Equal(cash.Closing))
	require.Equal(t, "ASSET", string(tb.Groups[0].Class))
}

func TestRenderer(t *testing.T) {
	en := reports.NewRenderer(language.English)
	require.Equal(t, "1,234,567.50", en.Amount(fixture.D("1234567.5")))
	require.Equal(t, "(12.30)", en.Amount(fixture.D("-12.3")))
	require.Equal(t, "0.00", en.Amount(decimal.Zero))

	de := reports.NewRenderer(language.German)
	require.Equal(t, "1.234.567,50", de.Amount(fixture.D("1234567.5")))

	b := fixture.New(t)
	trade(t, b)
	bs, err := b.Engine.Reports.BalanceSheet(context.Background(), fixture.CompanyID, fixture.Day(31))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, en.BalanceSheet(&buf, bs))
	out := buf.String()
	require.Contains(t, out, "Balance sheet as of 2026-01-31")
	require.Contains(t, out, "1100 Cash")
	require.Contains(t, out, "1,385.00")
	require.Contains(t, out, "Current earnings")

	buf.Reset()
	tb, err := b.Engine.Reports.TrialBalance(context.Background(), fixture.CompanyID, fixture.Day(1), time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NoError(t, en.TrialBalance(&buf, tb))
	require.Contains(t, buf.String(), "Trial balance 2026-01-01 to 2026-01-31")
}
