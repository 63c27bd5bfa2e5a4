// Package reports builds financial statements from ledger balances.
package reports

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledgercore/internal/accounting/accounts"
)

// Row is one line of a statement section. Header rows total their posting
// descendants of the section's class.
type Row struct {
	AccountID int64           `json:"accountId,omitempty"`
	Code      string          `json:"code"`
	Name      string          `json:"name"`
	Depth     int             `json:"depth"`
	IsPosting bool            `json:"isPosting"`
	Computed  bool            `json:"computed,omitempty"`
	Amount    decimal.Decimal `json:"amount"`
}

// Section groups the rows of one account class.
type Section struct {
	Label string          `json:"label"`
	Class accounts.Class  `json:"class"`
	Rows  []Row           `json:"rows"`
	Total decimal.Decimal `json:"total"`
}

// naturalSign is +1 for classes that grow on the debit side.
func naturalSign(c accounts.Class) decimal.Decimal {
	if accounts.DefaultNormalSide(c) == accounts.Debit {
		return decimal.NewFromInt(1)
	}
	return decimal.NewFromInt(-1)
}

// buildSection walks the tree and emits rows for accounts of class. nets hold
// debit-minus-credit per posting account; amounts are signed to the class so
// contra accounts subtract from their parents. The total covers every posting
// account of the class wherever it sits in the tree.
func buildSection(label string, class accounts.Class, roots []*accounts.Node, nets map[int64]decimal.Decimal) Section {
	sign := naturalSign(class)
	sec := Section{Label: label, Class: class, Total: decimal.Zero}
	for _, root := range roots {
		root.Walk(func(node *accounts.Node, depth int) {
			acc := node.Account
			if acc.Class != class {
				return
			}
			if acc.IsPosting {
				sec.Total = sec.Total.Add(nets[acc.ID].Mul(sign))
			}
			if root.Account.Class != class {
				return
			}
			amount := decimal.Zero
			for _, leaf := range node.PostingDescendants() {
				if leaf.Class == class {
					amount = amount.Add(nets[leaf.ID].Mul(sign))
				}
			}
			sec.Rows = append(sec.Rows, Row{
				AccountID: acc.ID,
				Code:      acc.Code,
				Name:      acc.Name,
				Depth:     depth,
				IsPosting: acc.IsPosting,
				Amount:    amount,
			})
		})
	}
	return sec
}

// misplaced lists posting accounts filed under a root of another class.
func misplaced(roots []*accounts.Node) []string {
	var out []string
	for _, root := range roots {
		for _, leaf := range root.PostingDescendants() {
			if leaf.Class != root.Account.Class {
				out = append(out, fmt.Sprintf("account %s (%s) sits under %s header %s",
					leaf.Code, leaf.Class, root.Account.Class, root.Account.Code))
			}
		}
	}
	return out
}
