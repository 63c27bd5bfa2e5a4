package inventory

import (
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledgercore/internal/shared"
)

// Policy tunes the costing rules.
type Policy struct {
	AllowNegative bool
}

// Outcome is the result of applying one movement to a balance.
type Outcome struct {
	Balance  Balance
	UnitCost decimal.Decimal
	// Value is signed: positive inbound, negative outbound.
	Value decimal.Decimal
}

// Apply folds a movement into bal using the moving weighted average. It is
// pure; the caller persists the outcome.
//
// Inbound adds round2(q*unitCost) to the carried value and recomputes the
// average. Outbound removes round2(|q|*avg), or the whole remaining value
// when the key is emptied, and leaves the average unchanged.
func Apply(bal Balance, m Movement, policy Policy) (Outcome, error) {
	q := m.QtyDelta
	if q.IsZero() {
		return Outcome{}, shared.Validation("inventory: movement on %s has zero quantity", m.Key)
	}
	if !q.Equal(shared.RoundQty(q)) {
		return Outcome{}, shared.Validation("inventory: quantity %s exceeds %d decimal places", q, shared.QtyScale)
	}
	if q.IsPositive() {
		return inbound(bal, m)
	}
	return outbound(bal, m, policy)
}

func inbound(bal Balance, m Movement) (Outcome, error) {
	q := m.QtyDelta
	var unit, value decimal.Decimal
	switch {
	case m.Value != nil:
		if m.Value.IsNegative() {
			return Outcome{}, shared.Validation("inventory: inbound value %s is negative", m.Value)
		}
		value = shared.RoundMoney(*m.Value)
		unit = shared.RoundCost(value.Div(q))
		if m.UnitCost != nil {
			unit = shared.RoundCost(*m.UnitCost)
		}
	case m.UnitCost != nil:
		if m.UnitCost.IsNegative() {
			return Outcome{}, shared.Validation("inventory: unit cost %s is negative", m.UnitCost)
		}
		unit = shared.RoundCost(*m.UnitCost)
		value = shared.RoundMoney(q.Mul(unit))
	default:
		if !bal.Qty.IsPositive() {
			return Outcome{}, shared.Validation("inventory: %s has no stock to take a cost from", m.Key)
		}
		unit = bal.AvgCost
		value = shared.RoundMoney(q.Mul(unit))
	}

	next := bal
	next.Qty = bal.Qty.Add(q)
	next.Value = bal.Value.Add(value)
	switch {
	case next.Qty.IsZero():
		next.Value = decimal.Zero
		next.AvgCost = decimal.Zero
	case bal.Qty.IsNegative():
		next.AvgCost = unit
		next.Value = shared.RoundMoney(next.Qty.Mul(unit))
	case bal.Qty.IsZero():
		next.AvgCost = unit
	default:
		next.AvgCost = shared.RoundCost(next.Value.Div(next.Qty))
	}
	return Outcome{Balance: next, UnitCost: unit, Value: value}, nil
}

func outbound(bal Balance, m Movement, policy Policy) (Outcome, error) {
	out := m.QtyDelta.Neg()
	next := bal
	next.Qty = bal.Qty.Sub(out)
	if next.Qty.IsNegative() && !policy.AllowNegative {
		return Outcome{}, shared.InsufficientStock("inventory: %s holds %s, cannot remove %s", m.Key, bal.Qty, out)
	}
	unit := bal.AvgCost
	var value decimal.Decimal
	switch {
	case next.Qty.IsZero():
		value = bal.Value
	case bal.Qty.IsPositive() && next.Qty.IsPositive():
		value = shared.RoundMoney(out.Mul(unit))
		if value.GreaterThan(bal.Value) {
			value = bal.Value
		}
	default:
		value = shared.RoundMoney(out.Mul(unit))
	}
	next.Value = bal.Value.Sub(value)
	if next.Qty.IsZero() {
		next.Value = decimal.Zero
		next.AvgCost = decimal.Zero
	}
	return Outcome{Balance: next, UnitCost: unit, Value: value.Neg()}, nil
}
