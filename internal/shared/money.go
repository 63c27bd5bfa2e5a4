package shared

import "github.com/shopspring/decimal"

// Decimal scales used throughout the ledgers.
const (
	MoneyScale int32 = 2
	CostScale  int32 = 6
	QtyScale   int32 = 4
)

// RoundMoney rounds to the journal amount precision.
func RoundMoney(d decimal.Decimal) decimal.Decimal { return d.Round(MoneyScale) }

// RoundCost rounds to the unit cost precision.
func RoundCost(d decimal.Decimal) decimal.Decimal { return d.Round(CostScale) }

// RoundQty rounds to the quantity precision.
func RoundQty(d decimal.Decimal) decimal.Decimal { return d.Round(QtyScale) }
