package accounts_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/ledgercore/internal/accounting/accounts"
	"github.com/odyssey-erp/ledgercore/internal/accounting/journals"
	"github.com/odyssey-erp/ledgercore/internal/shared"
	"github.com/odyssey-erp/ledgercore/internal/testing/fixture"
)

func ptr[T any](v T) *T { return &v }

func TestCreateAccount(t *testing.T) {
	b := fixture.New(t)
	ctx := context.Background()
	parent := b.AccountID("1000")

	acc, err := b.Engine.Accounts.Create(ctx, accounts.CreateInput{
		CompanyID: fixture.CompanyID, Code: " 1400 ", Name: "Prepaid", Class: accounts.ClassAsset,
		IsPosting: true, ParentID: &parent,
	})
	require.NoError(t, err)
	require.Equal(t, "1400", acc.Code)
	require.Equal(t, accounts.Debit, acc.NormalSide)
	require.Equal(t, accounts.StatusActive, acc.Status)

	contra, err := b.Engine.Accounts.Create(ctx, accounts.CreateInput{
		CompanyID: fixture.CompanyID, Code: "1500", Name: "Allowance", Class: accounts.ClassAsset,
		NormalSide: accounts.Credit, IsPosting: true, ParentID: &parent,
	})
	require.NoError(t, err)
	require.Equal(t, accounts.Credit, contra.NormalSide)

	cases := []struct {
		name string
		in   accounts.CreateInput
		kind shared.Kind
	}{
		{"duplicate code", accounts.CreateInput{CompanyID: fixture.CompanyID, Code: "1400", Name: "Again", Class: accounts.ClassAsset}, shared.KindConflict},
		{"unknown class", accounts.CreateInput{CompanyID: fixture.CompanyID, Code: "9000", Name: "X", Class: "SUSPENSE"}, shared.KindValidation},
		{"missing name", accounts.CreateInput{CompanyID: fixture.CompanyID, Code: "9001", Class: accounts.ClassAsset}, shared.KindValidation},
		{"posting parent", accounts.CreateInput{CompanyID: fixture.CompanyID, Code: "9002", Name: "X", Class: accounts.ClassAsset, ParentID: ptr(b.AccountID(fixture.Cash))}, shared.KindValidation},
		{"unknown parent", accounts.CreateInput{CompanyID: fixture.CompanyID, Code: "9003", Name: "X", Class: accounts.ClassAsset, ParentID: ptr(int64(9999))}, shared.KindNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := b.Engine.Accounts.Create(ctx, tc.in)
			require.Equal(t, tc.kind, shared.KindOf(err), "%v", err)
		})
	}
}

func TestUpdateAccount(t *testing.T) {
	b := fixture.New(t)
	ctx := context.Background()

	_, err := b.Engine.Accounts.Update(ctx, fixture.CompanyID, b.AccountID("1000"), accounts.UpdateInput{ParentID: ptr(b.AccountID("1000"))})
	require.Equal(t, shared.KindValidation, shared.KindOf(err))

	sub, err := b.Engine.Accounts.Create(ctx, accounts.CreateInput{
		CompanyID: fixture.CompanyID, Code: "1050", Name: "Current assets", Class: accounts.ClassAsset, ParentID: ptr(b.AccountID("1000")),
	})
	require.NoError(t, err)
	_, err = b.Engine.Accounts.Update(ctx, fixture.CompanyID, b.AccountID("1000"), accounts.UpdateInput{ParentID: &sub.ID})
	require.Equal(t, shared.KindValidation, shared.KindOf(err), "cycle")

	_, err = b.Engine.Accounts.Update(ctx, fixture.CompanyID, sub.ID, accounts.UpdateInput{Code: ptr(fixture.Cash)})
	require.Equal(t, shared.KindConflict, shared.KindOf(err))

	_, err = b.Engine.Accounts.Update(ctx, fixture.CompanyID, b.AccountID("1000"), accounts.UpdateInput{IsPosting: ptr(true)})
	require.Equal(t, shared.KindValidation, shared.KindOf(err), "header with children")

	renamed, err := b.Engine.Accounts.Update(ctx, fixture.CompanyID, b.AccountID(fixture.Cash), accounts.UpdateInput{
		Name: ptr("Cash at bank"), ParentID: &sub.ID,
	})
	require.NoError(t, err)
	require.Equal(t, "Cash at bank", renamed.Name)
	require.Equal(t, sub.ID, *renamed.ParentID)

	roots, err := b.Engine.Accounts.Tree(ctx, fixture.CompanyID)
	require.NoError(t, err)
	require.Equal(t, "1000", roots[0].Account.Code)
	var depth = -1
	roots[0].Walk(func(n *accounts.Node, d int) {
		if n.Account.Code == fixture.Cash {
			depth = d
		}
	})
	require.Equal(t, 2, depth)
}

func TestPostedAccountsAreProtected(t *testing.T) {
	b := fixture.New(t)
	ctx := context.Background()
	_, err := b.Engine.Journals.CreateAndPost(ctx, journals.PostingInput{
		CompanyID: fixture.CompanyID, Date: fixture.Day(3), SourceType: journals.SourceManual, ActorID: fixture.Actor,
		Lines: []journals.PostingLineInput{
			{AccountID: b.AccountID(fixture.Cash), Debit: decimal.NewFromInt(10)},
			{AccountID: b.AccountID(fixture.Capital), Credit: decimal.NewFromInt(10)},
		},
	})
	require.NoError(t, err)

	err = b.Engine.Accounts.Delete(ctx, fixture.CompanyID, b.AccountID(fixture.Cash), fixture.Actor)
	require.Equal(t, shared.KindConflict, shared.KindOf(err))

	err = b.Engine.Accounts.Delete(ctx, fixture.CompanyID, b.AccountID("1000"), fixture.Actor)
	require.Equal(t, shared.KindConflict, shared.KindOf(err))

	_, err = b.Engine.Accounts.Update(ctx, fixture.CompanyID, b.AccountID(fixture.Cash), accounts.UpdateInput{IsPosting: ptr(false)})
	require.Equal(t, shared.KindConflict, shared.KindOf(err))

	_, err = b.Engine.Accounts.Update(ctx, fixture.CompanyID, b.AccountID(fixture.Cash), accounts.UpdateInput{NormalSide: ptr(accounts.Credit)})
	require.Equal(t, shared.KindConflict, shared.KindOf(err))
	cash, err := b.Engine.Accounts.Get(ctx, fixture.CompanyID, b.AccountID(fixture.Cash))
	require.NoError(t, err)
	require.Equal(t, accounts.Debit, cash.NormalSide)

	flipped, err := b.Engine.Accounts.Update(ctx, fixture.CompanyID, b.AccountID(fixture.Sales), accounts.UpdateInput{NormalSide: ptr(accounts.Debit)})
	require.NoError(t, err)
	require.Equal(t, accounts.Debit, flipped.NormalSide)

	spare, err := b.Engine.Accounts.Create(ctx, accounts.CreateInput{
		CompanyID: fixture.CompanyID, Code: "1900", Name: "Suspense", Class: accounts.ClassAsset,
		IsPosting: true, ParentID: ptr(b.AccountID("1000")),
	})
	require.NoError(t, err)
	require.NoError(t, b.Engine.Accounts.Delete(ctx, fixture.CompanyID, spare.ID, fixture.Actor))
	_, err = b.Engine.Accounts.Get(ctx, fixture.CompanyID, spare.ID)
	require.Equal(t, shared.KindNotFound, shared.KindOf(err))
}

func TestInactiveAccountRejectsPostings(t *testing.T) {
	b := fixture.New(t)
	ctx := context.Background()
	_, err := b.Engine.Accounts.Update(ctx, fixture.CompanyID, b.AccountID(fixture.Sales), accounts.UpdateInput{Status: ptr(accounts.StatusInactive)})
	require.NoError(t, err)

	_, err = b.Engine.Accounts.RequirePostable(ctx, fixture.CompanyID, []int64{b.AccountID(fixture.Cash), b.AccountID(fixture.Sales)})
	require.Equal(t, shared.KindValidation, shared.KindOf(err))

	found, err := b.Engine.Accounts.RequirePostable(ctx, fixture.CompanyID, []int64{b.AccountID(fixture.Cash), b.AccountID(fixture.Cash)})
	require.NoError(t, err)
	require.Len(t, found, 1)
}

func TestBuildTreeOrphansBecomeRoots(t *testing.T) {
	missing := int64(99)
	roots := accounts.BuildTree([]accounts.Account{
		{ID: 3, Code: "3000"},
		{ID: 1, Code: "1000"},
		{ID: 2, Code: "1100", ParentID: ptr(int64(1)), IsPosting: true},
		{ID: 4, Code: "0500", ParentID: &missing, IsPosting: true},
	})
	require.Len(t, roots, 3)
	require.Equal(t, []string{"0500", "1000", "3000"}, []string{roots[0].Account.Code, roots[1].Account.Code, roots[2].Account.Code})
	require.Len(t, roots[1].PostingDescendants(), 1)
}
