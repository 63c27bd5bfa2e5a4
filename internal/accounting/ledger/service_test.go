package ledger_test

import (
	"context"
	"math/rand/v2"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/ledgercore/internal/accounting/accounts"
	"github.com/odyssey-erp/ledgercore/internal/accounting/journals"
	"github.com/odyssey-erp/ledgercore/internal/accounting/ledger"
	"github.com/odyssey-erp/ledgercore/internal/accounting/periods"
	"github.com/odyssey-erp/ledgercore/internal/engine"
	"github.com/odyssey-erp/ledgercore/internal/shared"
	"github.com/odyssey-erp/ledgercore/internal/testing/fixture"
)

var leaves = []string{
	fixture.Cash, fixture.Inventory, fixture.LoanReceivable, fixture.Payables, fixture.Capital,
	fixture.Sales, fixture.COGS, fixture.AdjustmentLoss, fixture.AdjustmentGain,
}

func post(t *testing.T, b *fixture.Books, date time.Time, debitCode, creditCode, amount string) journals.JournalEntry {
	t.Helper()
	entry, err := b.Engine.Journals.CreateAndPost(context.Background(), journals.PostingInput{
		CompanyID:  fixture.CompanyID,
		Date:       date,
		SourceType: journals.SourceManual,
		ActorID:    fixture.Actor,
		Lines: []journals.PostingLineInput{
			{AccountID: b.AccountID(debitCode), Debit: fixture.D(amount)},
			{AccountID: b.AccountID(creditCode), Credit: fixture.D(amount)},
		},
	})
	require.NoError(t, err)
	return entry
}

func feb(d int) time.Time { return time.Date(2026, time.February, d, 0, 0, 0, 0, time.UTC) }

func TestFoldAgreesWithAggregate(t *testing.T) {
	b := fixture.New(t)
	ctx := context.Background()
	rng := rand.New(rand.NewPCG(17, 4))

	for i := 0; i < 40; i++ {
		date := fixture.Day(rng.IntN(31) + 1)
		if rng.IntN(3) == 0 {
			date = feb(rng.IntN(28) + 1)
		}
		var lines []journals.PostingLineInput
		total := decimal.Zero
		for n := rng.IntN(3) + 1; n > 0; n-- {
			amt := decimal.New(rng.Int64N(100_000)+1, -2)
			total = total.Add(amt)
			lines = append(lines, journals.PostingLineInput{AccountID: b.AccountID(leaves[rng.IntN(len(leaves))]), Debit: amt})
		}
		lines = append(lines, journals.PostingLineInput{AccountID: b.AccountID(leaves[rng.IntN(len(leaves))]), Credit: total})
		_, err := b.Engine.Journals.CreateAndPost(ctx, journals.PostingInput{
			CompanyID: fixture.CompanyID, Date: date, SourceType: journals.SourceManual, ActorID: fixture.Actor, Lines: lines,
		})
		require.NoError(t, err)
	}
	for _, code := range []string{fixture.Cash, fixture.Capital} {
		_, err := b.Engine.Periods.SetOpeningBalance(ctx, periods.OpeningBalanceInput{
			CompanyID: fixture.CompanyID, PeriodID: b.February.ID, AccountID: b.AccountID(code),
			Debit: fixture.D("250.00"), ActorID: fixture.Actor,
		})
		require.NoError(t, err)
	}

	for _, asOf := range []time.Time{fixture.Day(15), fixture.Day(31), feb(1), feb(28)} {
		drift, err := b.Engine.Ledger.Verify(ctx, fixture.CompanyID, asOf)
		require.NoError(t, err)
		require.Empty(t, drift, "as of %s", asOf.Format(time.DateOnly))
	}

	balances, err := b.Engine.Ledger.AllAccountBalances(ctx, fixture.CompanyID, fixture.Day(31))
	require.NoError(t, err)
	debit, credit := decimal.Zero, decimal.Zero
	for _, bal := range balances {
		debit = debit.Add(bal.Debit)
		credit = credit.Add(bal.Credit)
	}
	require.True(t, debit.Equal(credit), "debit %s credit %s", debit, credit)
}

func TestAccountLedgerAgreesWithBalances(t *testing.T) {
	b := fixture.New(t)
	ctx := context.Background()
	rng := rand.New(rand.NewPCG(23, 9))

	for i := 0; i < 30; i++ {
		date := fixture.Day(rng.IntN(31) + 1)
		if rng.IntN(2) == 0 {
			date = feb(rng.IntN(28) + 1)
		}
		debit := leaves[rng.IntN(len(leaves))]
		credit := leaves[rng.IntN(len(leaves))]
		for credit == debit {
			credit = leaves[rng.IntN(len(leaves))]
		}
		post(t, b, date, debit, credit, decimal.New(rng.Int64N(50_000)+1, -2).String())
	}
	anchors := []periods.OpeningBalanceInput{
		{AccountID: b.AccountID(fixture.Cash), Debit: fixture.D("300")},
		{AccountID: b.AccountID(fixture.Capital), Credit: fixture.D("300")},
		{AccountID: b.AccountID(fixture.Sales), Debit: fixture.D("12.50")},
	}
	for _, in := range anchors {
		in.CompanyID, in.PeriodID, in.ActorID = fixture.CompanyID, b.February.ID, fixture.Actor
		_, err := b.Engine.Periods.SetOpeningBalance(ctx, in)
		require.NoError(t, err)
	}

	windows := []struct{ from, to time.Time }{
		{fixture.Day(1), fixture.Day(31)},
		{fixture.Day(10), feb(10)},
		{feb(1), feb(28)},
		{feb(2), feb(20)},
		{fixture.Day(1), feb(28)},
	}
	for _, w := range windows {
		balances, err := b.Engine.Ledger.AllAccountBalances(ctx, fixture.CompanyID, w.to)
		require.NoError(t, err)
		before, err := b.Engine.Ledger.AllAccountBalances(ctx, fixture.CompanyID, w.from.AddDate(0, 0, -1))
		require.NoError(t, err)
		closing := map[int64]decimal.Decimal{}
		for _, bal := range balances {
			closing[bal.ID] = bal.Balance
		}
		opening := map[int64]decimal.Decimal{}
		for _, bal := range before {
			opening[bal.ID] = bal.Balance
		}

		for _, code := range leaves {
			id := b.AccountID(code)
			led, err := b.Engine.Ledger.AccountLedger(ctx, fixture.CompanyID, id, w.from, w.to)
			require.NoError(t, err)
			label := code + " " + w.from.Format(time.DateOnly) + ".." + w.to.Format(time.DateOnly)

			require.True(t, closing[id].Equal(led.Closing), "%s: closing %s, balances %s", label, led.Closing, closing[id])
			if !w.from.Equal(b.February.StartDate) {
				require.True(t, opening[id].Equal(led.Opening), "%s: opening %s, balances %s", label, led.Opening, opening[id])
			}

			running := led.Opening
			for _, line := range led.Lines {
				movement := ledger.Signed(led.Account, line.Debit.Sub(line.Credit))
				if line.Opening {
					running = movement
				} else {
					running = running.Add(movement)
				}
				require.True(t, running.Equal(line.Balance), "%s: line balance %s, expected %s", label, line.Balance, running)
			}
			require.True(t, running.Equal(led.Closing), "%s: last line %s, closing %s", label, running, led.Closing)
		}
	}
}

func TestOpeningBalanceAnchorsRunningBalance(t *testing.T) {
	b := fixture.New(t)
	ctx := context.Background()

	post(t, b, fixture.Day(10), fixture.Cash, fixture.Capital, "100")
	_, err := b.Engine.Periods.SetOpeningBalance(ctx, periods.OpeningBalanceInput{
		CompanyID: fixture.CompanyID, PeriodID: b.February.ID, AccountID: b.AccountID(fixture.Cash),
		Debit: fixture.D("40"), ActorID: fixture.Actor,
	})
	require.NoError(t, err)
	post(t, b, feb(3), fixture.Cash, fixture.Sales, "10")

	require.True(t, fixture.D("100").Equal(b.Net(t, fixture.Cash, fixture.Day(31))))
	require.True(t, fixture.D("40").Equal(b.Net(t, fixture.Cash, feb(1))))
	require.True(t, fixture.D("50").Equal(b.Net(t, fixture.Cash, feb(28))))

	full, err := b.Engine.Ledger.AccountLedger(ctx, fixture.CompanyID, b.AccountID(fixture.Cash), fixture.Day(1), feb(28))
	require.NoError(t, err)
	require.True(t, full.Opening.IsZero())
	require.Len(t, full.Lines, 3)
	require.True(t, fixture.D("100").Equal(full.Lines[0].Balance))
	require.True(t, full.Lines[1].Opening)
	require.True(t, fixture.D("40").Equal(full.Lines[1].Balance))
	require.True(t, fixture.D("50").Equal(full.Lines[2].Balance))
	require.True(t, fixture.D("110").Equal(full.TotalDebit))
	require.True(t, fixture.D("50").Equal(full.Closing))

	february, err := b.Engine.Ledger.AccountLedger(ctx, fixture.CompanyID, b.AccountID(fixture.Cash), feb(1), feb(28))
	require.NoError(t, err)
	require.True(t, fixture.D("40").Equal(february.Opening))
	require.Len(t, february.Lines, 1)
	require.True(t, fixture.D("10").Equal(february.TotalDebit))
	require.True(t, fixture.D("50").Equal(february.Closing))

	sales, err := b.Engine.Ledger.AccountLedger(ctx, fixture.CompanyID, b.AccountID(fixture.Sales), feb(1), feb(28))
	require.NoError(t, err)
	require.True(t, fixture.D("10").Equal(sales.Closing), "credit-normal accounts read positive")
}

func TestOpeningBalanceRules(t *testing.T) {
	b := fixture.New(t)
	ctx := context.Background()

	_, err := b.Engine.Periods.SetOpeningBalance(ctx, periods.OpeningBalanceInput{
		CompanyID: fixture.CompanyID, PeriodID: b.February.ID, AccountID: b.AccountID(fixture.Cash),
		Debit: fixture.D("1"), Credit: fixture.D("1"),
	})
	require.Equal(t, shared.KindValidation, shared.KindOf(err))

	_, err = b.Engine.Periods.SetOpeningBalance(ctx, periods.OpeningBalanceInput{
		CompanyID: fixture.CompanyID, PeriodID: b.February.ID, AccountID: b.AccountID("1000"), Debit: fixture.D("1"),
	})
	require.Equal(t, shared.KindValidation, shared.KindOf(err))

	_, err = b.Engine.Periods.Close(ctx, fixture.CompanyID, b.January.ID, fixture.Actor)
	require.NoError(t, err)
	_, err = b.Engine.Periods.SetOpeningBalance(ctx, periods.OpeningBalanceInput{
		CompanyID: fixture.CompanyID, PeriodID: b.January.ID, AccountID: b.AccountID(fixture.Cash), Debit: fixture.D("1"),
	})
	require.Equal(t, shared.KindPeriodClosed, shared.KindOf(err))
}

func TestAccountLedgerRejectsInvertedRange(t *testing.T) {
	b := fixture.New(t)
	_, err := b.Engine.Ledger.AccountLedger(context.Background(), fixture.CompanyID, b.AccountID(fixture.Cash), fixture.Day(9), fixture.Day(8))
	require.Equal(t, shared.KindValidation, shared.KindOf(err))

	_, err = b.Engine.Ledger.AccountLedger(context.Background(), fixture.CompanyID, 9999, fixture.Day(1), fixture.Day(8))
	require.Equal(t, shared.KindNotFound, shared.KindOf(err))
}

func TestCacheServesUntilInvalidated(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := ledger.NewCache(client, time.Minute)
	b := fixture.New(t, func(cfg *engine.Config) { cfg.Cache = cache })
	ctx := context.Background()

	first := post(t, b, fixture.Day(3), fixture.Cash, fixture.Capital, "100")
	require.True(t, fixture.D("100").Equal(b.Net(t, fixture.Cash, fixture.Day(31))))
	ver, err := cache.Version(ctx, fixture.CompanyID)
	require.NoError(t, err)
	require.EqualValues(t, 1, ver)

	// Writes that bypass the services are not seen until the next invalidation.
	b.Store.Journals().Corrupt(fixture.CompanyID, first.ID, 1, fixture.D("150"), decimal.Zero)
	require.True(t, fixture.D("100").Equal(b.Net(t, fixture.Cash, fixture.Day(31))))

	post(t, b, fixture.Day(4), fixture.Cash, fixture.Capital, "5")
	require.True(t, fixture.D("155").Equal(b.Net(t, fixture.Cash, fixture.Day(31))))
	ver, err = cache.Version(ctx, fixture.CompanyID)
	require.NoError(t, err)
	require.EqualValues(t, 2, ver)
}

func TestAccountChangesInvalidateCachedBalances(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := ledger.NewCache(client, time.Minute)
	b := fixture.New(t, func(cfg *engine.Config) { cfg.Cache = cache })
	ctx := context.Background()

	post(t, b, fixture.Day(3), fixture.Cash, fixture.Capital, "100")
	before, err := b.Engine.Ledger.AllAccountBalances(ctx, fixture.CompanyID, fixture.Day(31))
	require.NoError(t, err)
	ver, err := cache.Version(ctx, fixture.CompanyID)
	require.NoError(t, err)

	_, err = b.Engine.Accounts.Update(ctx, fixture.CompanyID, b.AccountID(fixture.Cash), accounts.UpdateInput{Code: ptr("1110")})
	require.NoError(t, err)
	next, err := cache.Version(ctx, fixture.CompanyID)
	require.NoError(t, err)
	require.Equal(t, ver+1, next)

	after, err := b.Engine.Ledger.AllAccountBalances(ctx, fixture.CompanyID, fixture.Day(31))
	require.NoError(t, err)
	require.Len(t, after, len(before))
	codes := map[int64]string{}
	for _, bal := range after {
		codes[bal.ID] = bal.Code
	}
	require.Equal(t, "1110", codes[b.AccountID(fixture.Cash)])

	spare, err := b.Engine.Accounts.Create(ctx, accounts.CreateInput{
		CompanyID: fixture.CompanyID, Code: "1900", Name: "Suspense", Class: accounts.ClassAsset,
		IsPosting: true, ParentID: ptr(b.AccountID("1000")),
	})
	require.NoError(t, err)
	require.NoError(t, b.Engine.Accounts.Delete(ctx, fixture.CompanyID, spare.ID, fixture.Actor))
	last, err := cache.Version(ctx, fixture.CompanyID)
	require.NoError(t, err)
	require.Equal(t, next+1, last)
}

func ptr[T any](v T) *T { return &v }

func TestNilCacheIsPassThrough(t *testing.T) {
	var cache *ledger.Cache
	ver, err := cache.Version(context.Background(), 1)
	require.NoError(t, err)
	require.Zero(t, ver)
	require.NoError(t, cache.Invalidate(context.Background(), 1))
}
