package mappings

import "time"

// Module names a group of system account keys.
const ModuleInventory = "inventory"

// Keys resolved by the inventory document processor.
const (
	KeyStock          = "stock"
	KeyReceiptAP      = "receipt.ap"
	KeyReceiptCash    = "receipt.cash"
	KeyIssueExpense   = "issue.expense"
	KeyAdjustmentGain = "adjustment.gain"
	KeyAdjustmentLoss = "adjustment.loss"
	KeyLoanReceivable = "loan.receivable"
)

// AccountMapping links integration keys to ledger accounts.
type AccountMapping struct {
	CompanyID int64     `db:"company_id" json:"companyId"`
	Module    string    `db:"module" json:"module"`
	Key       string    `db:"key" json:"key"`
	AccountID int64     `db:"account_id" json:"accountId"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}
