package periods_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/ledgercore/internal/accounting/journals"
	"github.com/odyssey-erp/ledgercore/internal/accounting/periods"
	"github.com/odyssey-erp/ledgercore/internal/events"
	"github.com/odyssey-erp/ledgercore/internal/shared"
	"github.com/odyssey-erp/ledgercore/internal/testing/fixture"
)

func TestCreateRejectsOverlapAndInvertedRange(t *testing.T) {
	b := fixture.New(t)
	ctx := context.Background()

	_, err := b.Engine.Periods.Create(ctx, periods.CreateInput{
		CompanyID: fixture.CompanyID, Year: 2026, Month: 2,
		StartDate: time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 2, 14, 0, 0, 0, 0, time.UTC),
	})
	require.Equal(t, shared.KindConflict, shared.KindOf(err))

	_, err = b.Engine.Periods.Create(ctx, periods.CreateInput{
		CompanyID: fixture.CompanyID, Year: 2026, Month: 3,
		StartDate: time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	require.Equal(t, shared.KindValidation, shared.KindOf(err))

	_, err = b.Engine.Periods.Create(ctx, periods.CreateInput{CompanyID: fixture.CompanyID, Year: 2026, Month: 13})
	require.Equal(t, shared.KindValidation, shared.KindOf(err))

	march, err := b.Engine.Periods.Create(ctx, periods.CreateInput{
		CompanyID: fixture.CompanyID, Year: 2026, Month: 3,
		StartDate: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Equal(t, "2026-03", march.Code())
	require.Equal(t, periods.StatusOpen, march.Status)

	list, err := b.Engine.Periods.List(ctx, fixture.CompanyID)
	require.NoError(t, err)
	require.Len(t, list, 3)
}

func TestFindByDateAndEnsureOpen(t *testing.T) {
	b := fixture.New(t)
	ctx := context.Background()

	p, err := b.Engine.Periods.FindByDate(ctx, fixture.CompanyID, time.Date(2026, 1, 31, 23, 59, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, b.January.ID, p.ID)
	require.True(t, p.Contains(fixture.Day(1)))

	_, err = b.Engine.Periods.FindByDate(ctx, fixture.CompanyID, time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC))
	require.Equal(t, shared.KindNotFound, shared.KindOf(err))

	_, err = b.Engine.Periods.EnsureOpen(ctx, fixture.CompanyID, time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC))
	require.Equal(t, shared.KindPeriodClosed, shared.KindOf(err))
}

func TestCloseIsTerminalAndEmitsEvent(t *testing.T) {
	b := fixture.New(t)
	ctx := context.Background()

	closed, err := b.Engine.Periods.Close(ctx, fixture.CompanyID, b.January.ID, fixture.Actor)
	require.NoError(t, err)
	require.True(t, closed.IsClosed())
	require.NotNil(t, closed.ClosedAt)
	require.Equal(t, fixture.Actor, *closed.ClosedBy)

	_, err = b.Engine.Periods.Close(ctx, fixture.CompanyID, b.January.ID, fixture.Actor)
	require.Equal(t, shared.KindConflict, shared.KindOf(err))

	_, err = b.Engine.Periods.EnsureOpen(ctx, fixture.CompanyID, fixture.Day(15))
	require.Equal(t, shared.KindPeriodClosed, shared.KindOf(err))

	_, err = b.Engine.Periods.Close(ctx, fixture.CompanyID, 9999, fixture.Actor)
	require.Equal(t, shared.KindNotFound, shared.KindOf(err))

	var found bool
	for _, evt := range b.Store.Outbox().Events() {
		if evt.Type == events.TypePeriodClosed {
			found = true
		}
	}
	require.True(t, found)
}

func TestCloseDoesNotInterleaveWithPostings(t *testing.T) {
	b := fixture.New(t)
	ctx := context.Background()

	const posters = 30
	entries := make([]journals.JournalEntry, posters)
	errs := make([]error, posters)
	var closed periods.Period
	var g errgroup.Group
	for i := 0; i < posters; i++ {
		g.Go(func() error {
			entries[i], errs[i] = b.Engine.Journals.CreateAndPost(ctx, journals.PostingInput{
				CompanyID:  fixture.CompanyID,
				Date:       fixture.Day(i%28 + 1),
				SourceType: journals.SourceManual,
				ActorID:    fixture.Actor,
				Lines: []journals.PostingLineInput{
					{AccountID: b.AccountID(fixture.Cash), Debit: fixture.D("10")},
					{AccountID: b.AccountID(fixture.Capital), Credit: fixture.D("10")},
				},
			})
			return nil
		})
		if i == posters/2 {
			g.Go(func() error {
				var err error
				closed, err = b.Engine.Periods.Close(ctx, fixture.CompanyID, b.January.ID, fixture.Actor)
				return err
			})
		}
	}
	require.NoError(t, g.Wait())
	require.NotNil(t, closed.ClosedAt)

	var accepted int64
	for i, err := range errs {
		if err != nil {
			require.Equal(t, shared.KindPeriodClosed, shared.KindOf(err), "posting %d", i)
			continue
		}
		accepted++
		require.True(t, entries[i].PostedAt.Before(*closed.ClosedAt), "posting %d landed after the close", i)
	}
	require.True(t, decimal.NewFromInt(10*accepted).Equal(b.Net(t, fixture.Cash, fixture.Day(31))))

	_, err := b.Engine.Journals.CreateAndPost(ctx, journals.PostingInput{
		CompanyID:  fixture.CompanyID,
		Date:       fixture.Day(3),
		SourceType: journals.SourceManual,
		ActorID:    fixture.Actor,
		Lines: []journals.PostingLineInput{
			{AccountID: b.AccountID(fixture.Cash), Debit: fixture.D("1")},
			{AccountID: b.AccountID(fixture.Capital), Credit: fixture.D("1")},
		},
	})
	require.Equal(t, shared.KindPeriodClosed, shared.KindOf(err))
}

func TestOpeningBalancesListed(t *testing.T) {
	b := fixture.New(t)
	ctx := context.Background()

	_, err := b.Engine.Periods.SetOpeningBalance(ctx, periods.OpeningBalanceInput{
		CompanyID: fixture.CompanyID, PeriodID: b.February.ID, AccountID: b.AccountID(fixture.Cash), Debit: fixture.D("12.345"),
	})
	require.NoError(t, err)
	saved, err := b.Engine.Periods.SetOpeningBalance(ctx, periods.OpeningBalanceInput{
		CompanyID: fixture.CompanyID, PeriodID: b.February.ID, AccountID: b.AccountID(fixture.Cash), Debit: fixture.D("20"),
	})
	require.NoError(t, err)
	require.True(t, fixture.D("20").Equal(saved.Debit))

	list, err := b.Engine.Periods.OpeningBalances(ctx, fixture.CompanyID, b.February.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.True(t, fixture.D("20").Equal(list[0].Debit))

	_, err = b.Engine.Periods.OpeningBalances(ctx, fixture.CompanyID, 9999)
	require.Equal(t, shared.KindNotFound, shared.KindOf(err))
}
