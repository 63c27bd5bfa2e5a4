package documents_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/ledgercore/internal/inventory/documents"
	"github.com/odyssey-erp/ledgercore/internal/testing/fixture"
)

func TestConcurrentMovementsOnOneKeySerialise(t *testing.T) {
	b := fixture.New(t)
	ctx := context.Background()
	b.Receive(t, b.Main, b.Widget, "100", "10")

	const workers = 25
	posted := make([]documents.Document, 2*workers)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			req := issue(b, documents.TypeReceipt, "5")
			req.Lines[0].UnitCost = fixture.Ptr("10")
			doc, err := b.Engine.Documents.Submit(gctx, req)
			posted[2*i] = doc
			return err
		})
		g.Go(func() error {
			doc, err := b.Engine.Documents.Submit(gctx, issue(b, documents.TypeIssue, "3"))
			posted[2*i+1] = doc
			return err
		})
	}
	require.NoError(t, g.Wait())

	numbers := map[string]bool{}
	for _, doc := range posted {
		require.Equal(t, documents.StatusPosted, doc.Status)
		numbers[doc.Number] = true
	}
	require.Len(t, numbers, 2*workers)

	bal := b.Balance(t, b.Main, b.Widget)
	require.True(t, fixture.D("150").Equal(bal.Qty), "qty %s", bal.Qty)
	require.True(t, fixture.D("1500").Equal(bal.Value), "value %s", bal.Value)
	require.True(t, fixture.D("10").Equal(bal.AvgCost), "avg %s", bal.AvgCost)

	require.True(t, bal.Value.Equal(b.Net(t, fixture.Inventory, fixture.Day(31))))
	require.True(t, fixture.D("750").Equal(b.Net(t, fixture.COGS, fixture.Day(31))))

	report, err := b.Engine.Stock.Replay(ctx, fixture.Key(b.Main, b.Widget))
	require.NoError(t, err)
	require.False(t, report.Drift)
	require.Equal(t, 1+2*workers, report.Entries)

	integrity, err := b.Engine.Integrity(ctx, fixture.CompanyID, fixture.Day(31))
	require.NoError(t, err)
	require.True(t, integrity.Clean())
}
