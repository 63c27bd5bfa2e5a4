package documents_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/ledgercore/internal/inventory/documents"
	"github.com/odyssey-erp/ledgercore/internal/shared"
	"github.com/odyssey-erp/ledgercore/internal/testing/fixture"
)

func loanReturn(b *fixture.Books, loanID int64, qty string) documents.Request {
	return documents.Request{
		DocumentType:   documents.TypeLoanReturn,
		CompanyID:      fixture.CompanyID,
		WarehouseID:    b.Main.ID,
		Date:           fixture.Day(25),
		CreatedBy:      fixture.Actor,
		LoanDocumentID: loanID,
		Lines:          []documents.RequestLine{{ItemID: b.Widget.ID, Qty: fixture.D(qty), LoanLineNo: 1}},
	}
}

func TestLoanReturnClearsReceivable(t *testing.T) {
	b := fixture.New(t)
	ctx := context.Background()
	b.Receive(t, b.Main, b.Widget, "3", "33.333333")

	loan, err := b.Engine.Documents.Submit(ctx, issue(b, documents.TypeLoanIssue, "3"))
	require.NoError(t, err)
	require.True(t, loan.Outstanding)
	require.True(t, fixture.D("-100").Equal(loan.Lines[0].Value))
	require.True(t, fixture.D("100").Equal(b.Net(t, fixture.LoanReceivable, fixture.Day(31))))

	first, err := b.Engine.Documents.Submit(ctx, loanReturn(b, loan.ID, "1"))
	require.NoError(t, err)
	require.True(t, fixture.D("33.33").Equal(first.Lines[0].Value))
	require.Equal(t, loan.ID, *first.LoanOf)

	status, err := b.Engine.Documents.LoanStatus(ctx, fixture.CompanyID, loan.ID)
	require.NoError(t, err)
	require.False(t, status.FullyReturned)
	require.True(t, fixture.D("2").Equal(status.Lines[0].Outstanding))
	require.True(t, fixture.D("1").Equal(status.Lines[0].ReturnedQty))

	_, err = b.Engine.Documents.Submit(ctx, loanReturn(b, loan.ID, "3"))
	require.Equal(t, shared.KindValidation, shared.KindOf(err))

	last, err := b.Engine.Documents.Submit(ctx, loanReturn(b, loan.ID, "2"))
	require.NoError(t, err)
	require.True(t, fixture.D("66.67").Equal(last.Lines[0].Value))

	status, err = b.Engine.Documents.LoanStatus(ctx, fixture.CompanyID, loan.ID)
	require.NoError(t, err)
	require.True(t, status.FullyReturned)
	require.True(t, status.Lines[0].Outstanding.IsZero())

	require.True(t, b.Net(t, fixture.LoanReceivable, fixture.Day(31)).IsZero())
	bal := b.Balance(t, b.Main, b.Widget)
	require.True(t, fixture.D("3").Equal(bal.Qty))
	require.True(t, fixture.D("100").Equal(bal.Value))

	_, err = b.Engine.Documents.Submit(ctx, loanReturn(b, loan.ID, "1"))
	require.Equal(t, shared.KindConflict, shared.KindOf(err))
}

func TestLoanReturnChecksReference(t *testing.T) {
	b := fixture.New(t)
	ctx := context.Background()
	receipt := b.Receive(t, b.Main, b.Widget, "5", "2")

	_, err := b.Engine.Documents.Submit(ctx, loanReturn(b, receipt.ID, "1"))
	require.Equal(t, shared.KindValidation, shared.KindOf(err))

	_, err = b.Engine.Documents.Submit(ctx, loanReturn(b, 9999, "1"))
	require.Equal(t, shared.KindNotFound, shared.KindOf(err))

	loan, err := b.Engine.Documents.Submit(ctx, issue(b, documents.TypeLoanIssue, "2"))
	require.NoError(t, err)

	wrongItem := loanReturn(b, loan.ID, "1")
	wrongItem.Lines[0].ItemID = b.Gadget.ID
	_, err = b.Engine.Documents.Submit(ctx, wrongItem)
	require.Equal(t, shared.KindValidation, shared.KindOf(err))

	wrongLine := loanReturn(b, loan.ID, "1")
	wrongLine.Lines[0].LoanLineNo = 4
	_, err = b.Engine.Documents.Submit(ctx, wrongLine)
	require.Equal(t, shared.KindValidation, shared.KindOf(err))

	_, err = b.Engine.Documents.LoanStatus(ctx, fixture.CompanyID, receipt.ID)
	require.Equal(t, shared.KindValidation, shared.KindOf(err))
}
