package documents

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledgercore/internal/accounting/journals"
	"github.com/odyssey-erp/ledgercore/internal/accounting/mappings"
)

const (
	stockKey          = mappings.KeyStock
	issueExpenseKey   = mappings.KeyIssueExpense
	adjustmentGainKey = mappings.KeyAdjustmentGain
	adjustmentLossKey = mappings.KeyAdjustmentLoss
	loanReceivableKey = mappings.KeyLoanReceivable
)

func mappingKeyReceipt(s Settlement) string {
	if s == SettlementCash {
		return mappings.KeyReceiptCash
	}
	return mappings.KeyReceiptAP
}

// ledgerPosting accumulates debit/credit pairs by system account key.
type ledgerPosting struct {
	pairs []glPair
}

type glPair struct {
	debit, credit string
	amount        decimal.Decimal
}

// add books amount from debit to credit. Non-positive amounts are dropped.
func (g *ledgerPosting) add(debit, credit string, amount decimal.Decimal) {
	if !amount.IsPositive() {
		return
	}
	for i := range g.pairs {
		if g.pairs[i].debit == debit && g.pairs[i].credit == credit {
			g.pairs[i].amount = g.pairs[i].amount.Add(amount)
			return
		}
	}
	g.pairs = append(g.pairs, glPair{debit: debit, credit: credit, amount: amount})
}

func (g ledgerPosting) empty() bool { return len(g.pairs) == 0 }

// input resolves the mapped accounts and builds a balanced posting.
func (g ledgerPosting) input(ctx context.Context, accounts AccountResolver, doc *Document, source journals.SourceType, actorID int64) (journals.PostingInput, error) {
	resolved := map[string]int64{}
	resolve := func(key string) (int64, error) {
		if id, ok := resolved[key]; ok {
			return id, nil
		}
		id, err := accounts.Resolve(ctx, doc.CompanyID, mappings.ModuleInventory, key)
		if err != nil {
			return 0, err
		}
		resolved[key] = id
		return id, nil
	}
	warehouse := doc.WarehouseID
	in := journals.PostingInput{
		CompanyID:  doc.CompanyID,
		Date:       doc.Date,
		SourceType: source,
		SourceID:   doc.Number,
		Memo:       doc.Number,
		ActorID:    actorID,
	}
	if doc.Memo != "" {
		in.Memo = doc.Number + " " + doc.Memo
	}
	for _, pair := range g.pairs {
		debit, err := resolve(pair.debit)
		if err != nil {
			return journals.PostingInput{}, err
		}
		credit, err := resolve(pair.credit)
		if err != nil {
			return journals.PostingInput{}, err
		}
		in.Lines = append(in.Lines,
			journals.PostingLineInput{AccountID: debit, Debit: pair.amount, WarehouseID: &warehouse},
			journals.PostingLineInput{AccountID: credit, Credit: pair.amount, WarehouseID: &warehouse},
		)
	}
	return in, nil
}
