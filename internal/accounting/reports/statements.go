package reports

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledgercore/internal/accounting/accounts"
)

// BalanceSheet is the structured response for the balance sheet report.
type BalanceSheet struct {
	CompanyID                 int64           `json:"companyId"`
	AsOf                      time.Time       `json:"asOf"`
	Assets                    Section         `json:"assets"`
	Liabilities               Section         `json:"liabilities"`
	Equity                    Section         `json:"equity"`
	CurrentEarnings           decimal.Decimal `json:"currentEarnings"`
	TotalLiabilitiesAndEquity decimal.Decimal `json:"totalLiabilitiesAndEquity"`
	Balanced                  bool            `json:"balanced"`
	Warnings                  []string        `json:"warnings,omitempty"`
}

// IncomeStatement contains the structured output for a date range.
type IncomeStatement struct {
	CompanyID         int64           `json:"companyId"`
	From              time.Time       `json:"from"`
	To                time.Time       `json:"to"`
	Revenue           Section         `json:"revenue"`
	COGS              Section         `json:"cogs"`
	OperatingExpenses Section         `json:"operatingExpenses"`
	OtherIncome       Section         `json:"otherIncome"`
	OtherExpenses     Section         `json:"otherExpenses"`
	GrossProfit       decimal.Decimal `json:"grossProfit"`
	OperatingIncome   decimal.Decimal `json:"operatingIncome"`
	NetIncome         decimal.Decimal `json:"netIncome"`
}

// TrialBalanceAccount represents a row inside a trial balance group. Opening
// and Closing are debit-minus-credit nets.
type TrialBalanceAccount struct {
	AccountID int64           `json:"accountId"`
	Code      string          `json:"code"`
	Name      string          `json:"name"`
	Opening   decimal.Decimal `json:"opening"`
	Debit     decimal.Decimal `json:"debit"`
	Credit    decimal.Decimal `json:"credit"`
	Closing   decimal.Decimal `json:"closing"`
}

// TrialBalanceGroup aggregates the accounts of one class.
type TrialBalanceGroup struct {
	Class    accounts.Class        `json:"class"`
	Accounts []TrialBalanceAccount `json:"accounts"`
	Opening  decimal.Decimal       `json:"opening"`
	Debit    decimal.Decimal       `json:"debit"`
	Credit   decimal.Decimal       `json:"credit"`
	Closing  decimal.Decimal       `json:"closing"`
}

// TrialBalance is the final structure rendered by the CLI.
type TrialBalance struct {
	CompanyID    int64               `json:"companyId"`
	From         time.Time           `json:"from"`
	To           time.Time           `json:"to"`
	Groups       []TrialBalanceGroup `json:"groups"`
	TotalOpening decimal.Decimal     `json:"totalOpening"`
	TotalDebit   decimal.Decimal     `json:"totalDebit"`
	TotalCredit  decimal.Decimal     `json:"totalCredit"`
	TotalClosing decimal.Decimal     `json:"totalClosing"`
	Warnings     []string            `json:"warnings,omitempty"`
}

var classOrder = []accounts.Class{
	accounts.ClassAsset, accounts.ClassLiability, accounts.ClassEquity, accounts.ClassRevenue,
	accounts.ClassCOGS, accounts.ClassExpense, accounts.ClassOtherIncome, accounts.ClassOtherExpense,
}
