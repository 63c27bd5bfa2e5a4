// Package ledger projects account balances from POSTED journal lines and
// period opening balances.
package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledgercore/internal/accounting/accounts"
)

// Posting is a POSTED journal line joined with its entry header.
type Posting struct {
	EntryID     int64           `db:"entry_id" json:"entryId"`
	EntryNumber int64           `db:"entry_number" json:"entryNumber"`
	LineNo      int             `db:"line_no" json:"lineNo"`
	Date        time.Time       `db:"entry_date" json:"date"`
	AccountID   int64           `db:"account_id" json:"accountId"`
	SourceType  string          `db:"source_type" json:"sourceType"`
	Memo        string          `db:"memo" json:"memo,omitempty"`
	Debit       decimal.Decimal `db:"debit" json:"debit"`
	Credit      decimal.Decimal `db:"credit" json:"credit"`
}

// Anchor is an opening balance row placed at the start of its period. It
// replaces the running balance of the account at that date.
type Anchor struct {
	AccountID int64           `db:"account_id" json:"accountId"`
	PeriodID  int64           `db:"period_id" json:"periodId"`
	Start     time.Time       `db:"start_date" json:"start"`
	Debit     decimal.Decimal `db:"debit" json:"debit"`
	Credit    decimal.Decimal `db:"credit" json:"credit"`
}

// Activity totals the lines of one account within a date range.
type Activity struct {
	AccountID int64           `db:"account_id" json:"accountId"`
	Debit     decimal.Decimal `db:"debit" json:"debit"`
	Credit    decimal.Decimal `db:"credit" json:"credit"`
}

// Line is one row of an account ledger. Opening rows come from anchors that
// fall inside the requested range.
type Line struct {
	Date        time.Time       `json:"date"`
	EntryID     int64           `json:"entryId,omitempty"`
	EntryNumber int64           `json:"entryNumber,omitempty"`
	LineNo      int             `json:"lineNo,omitempty"`
	SourceType  string          `json:"sourceType"`
	Memo        string          `json:"memo,omitempty"`
	Opening     bool            `json:"opening,omitempty"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	Balance     decimal.Decimal `json:"balance"`
}

// AccountLedger is the running ledger of one account.
type AccountLedger struct {
	Account     accounts.Account `json:"account"`
	From        time.Time        `json:"from"`
	To          time.Time        `json:"to"`
	Opening     decimal.Decimal  `json:"opening"`
	Lines       []Line           `json:"lines"`
	TotalDebit  decimal.Decimal  `json:"totalDebit"`
	TotalCredit decimal.Decimal  `json:"totalCredit"`
	Closing     decimal.Decimal  `json:"closing"`
}

// AccountBalance is the ending balance of an account. Debit and Credit hold
// the net on its side; Balance is signed to the normal side.
type AccountBalance struct {
	accounts.Account
	Debit   decimal.Decimal `json:"debit"`
	Credit  decimal.Decimal `json:"credit"`
	Balance decimal.Decimal `json:"balance"`
}

// Signed converts a debit-minus-credit net into the normal-side balance.
func Signed(acc accounts.Account, net decimal.Decimal) decimal.Decimal {
	if acc.NormalSide == accounts.Credit {
		return net.Neg()
	}
	return net
}

func newBalance(acc accounts.Account, net decimal.Decimal) AccountBalance {
	b := AccountBalance{Account: acc, Debit: decimal.Zero, Credit: decimal.Zero, Balance: Signed(acc, net)}
	if net.IsNegative() {
		b.Credit = net.Neg()
	} else {
		b.Debit = net
	}
	return b
}
