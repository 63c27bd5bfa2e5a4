package documents

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledgercore/internal/shared"
)

// lockLoan locks the loan issue a return refers to.
func (p *Processor) lockLoan(ctx context.Context, companyID, loanID int64) (*Document, error) {
	loan, err := p.repo.GetForUpdate(ctx, companyID, loanID)
	if err != nil {
		return nil, err
	}
	if loan.Type != TypeLoanIssue || loan.Status != StatusPosted {
		return nil, shared.Validation("inventory: document %s is not a posted loan", loan.Number)
	}
	if !loan.Outstanding {
		return nil, shared.Conflict("inventory: loan %s is fully returned", loan.Number)
	}
	return &loan, nil
}

// returnLoan brings stock back at each loan line's issue cost. Returning the
// last open quantity of a line returns the rest of its value so the
// receivable clears exactly.
func (p *Processor) returnLoan(ctx context.Context, doc *Document, loan *Document) (ledgerPosting, error) {
	var gl ledgerPosting
	for i := range doc.Lines {
		l := &doc.Lines[i]
		src, ok := loan.line(l.LoanLineNo)
		if !ok {
			return ledgerPosting{}, shared.Validation("inventory: loan %s has no line %d", loan.Number, l.LoanLineNo)
		}
		if src.ItemID != l.ItemID {
			return ledgerPosting{}, shared.Validation("inventory: line %d returns a different item than loan line %d", l.LineNo, src.LineNo)
		}
		open := src.OutstandingQty()
		if l.Qty.GreaterThan(open) {
			return ledgerPosting{}, shared.Validation("inventory: line %d returns %s but only %s is outstanding on loan line %d",
				l.LineNo, l.Qty, open, src.LineNo)
		}
		unit := src.UnitCost.Decimal
		value := shared.RoundMoney(l.Qty.Mul(unit))
		if l.Qty.Equal(open) {
			value = src.Value.Neg().Sub(src.ReturnedValue)
		}
		m := p.movement(doc, *l, l.Qty)
		m.UnitCost, m.Value = &unit, &value
		entry, err := p.stock.ApplyMovement(ctx, m)
		if err != nil {
			return ledgerPosting{}, err
		}
		record(l, entry)
		src.ReturnedQty = src.ReturnedQty.Add(l.Qty)
		src.ReturnedValue = src.ReturnedValue.Add(entry.Value)
		gl.add(stockKey, loanReceivableKey, entry.Value)
	}
	loan.Outstanding = !loan.fullyReturned()
	return gl, nil
}

// LoanStatus reports the outstanding quantity of every line of a loan.
func (p *Processor) LoanStatus(ctx context.Context, companyID, loanID int64) (LoanStatus, error) {
	loan, err := p.repo.Get(ctx, companyID, loanID)
	if err != nil {
		return LoanStatus{}, err
	}
	if loan.Type != TypeLoanIssue {
		return LoanStatus{}, shared.Validation("inventory: document %s is not a loan", loan.Number)
	}
	out := LoanStatus{DocumentID: loan.ID, Number: loan.Number, FullyReturned: !loan.Outstanding}
	for _, l := range loan.Lines {
		out.Lines = append(out.Lines, LoanLineStatus{
			LineNo:      l.LineNo,
			ItemID:      l.ItemID,
			IssuedQty:   l.Qty,
			ReturnedQty: l.ReturnedQty,
			Outstanding: decimal.Max(l.OutstandingQty(), decimal.Zero),
		})
	}
	return out, nil
}
