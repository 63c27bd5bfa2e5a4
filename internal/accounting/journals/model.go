package journals

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledgercore/internal/shared"
)

// Status enumerates journal lifecycle values.
type Status string

const (
	StatusDraft  Status = "DRAFT"
	StatusPosted Status = "POSTED"
)

// SourceType tags the business process that produced an entry.
type SourceType string

const (
	SourceManual          SourceType = "MANUAL"
	SourceGoodsReceipt    SourceType = "GOODS_RECEIPT"
	SourceGoodsIssue      SourceType = "GOODS_ISSUE"
	SourceStockAdjustment SourceType = "STOCK_ADJUSTMENT"
	SourceStockCount      SourceType = "STOCK_COUNT"
	SourceLoanIssue       SourceType = "LOAN_ISSUE"
	SourceLoanReturn      SourceType = "LOAN_RETURN"
	SourceReversal        SourceType = "REVERSAL"
)

// JournalEntry captures posting metadata. Number is assigned on posting.
type JournalEntry struct {
	ID         int64         `db:"id" json:"id"`
	CompanyID  int64         `db:"company_id" json:"companyId"`
	Number     int64         `db:"number" json:"number"`
	Date       time.Time     `db:"entry_date" json:"date"`
	SourceType SourceType    `db:"source_type" json:"sourceType"`
	SourceID   string        `db:"source_id" json:"sourceId,omitempty"`
	Memo       string        `db:"memo" json:"memo"`
	Status     Status        `db:"status" json:"status"`
	PostedAt   *time.Time    `db:"posted_at" json:"postedAt,omitempty"`
	PostedBy   *int64        `db:"posted_by" json:"postedBy,omitempty"`
	CreatedBy  int64         `db:"created_by" json:"createdBy"`
	ReversalOf *int64        `db:"reversal_of" json:"reversalOf,omitempty"`
	CreatedAt  time.Time     `db:"created_at" json:"createdAt"`
	Lines      []JournalLine `db:"-" json:"lines"`
}

// JournalLine stores a debit or credit amount for an account. Lines are
// append-only and owned by their entry.
type JournalLine struct {
	ID           int64           `db:"id" json:"id"`
	EntryID      int64           `db:"entry_id" json:"entryId"`
	LineNo       int             `db:"line_no" json:"lineNo"`
	AccountID    int64           `db:"account_id" json:"accountId"`
	Debit        decimal.Decimal `db:"debit" json:"debit"`
	Credit       decimal.Decimal `db:"credit" json:"credit"`
	Memo         string          `db:"memo" json:"memo,omitempty"`
	CostCenterID *int64          `db:"cost_center_id" json:"costCenterId,omitempty"`
	DepartmentID *int64          `db:"department_id" json:"departmentId,omitempty"`
	ItemID       *int64          `db:"item_id" json:"itemId,omitempty"`
	WarehouseID  *int64          `db:"warehouse_id" json:"warehouseId,omitempty"`
}

// Totals sums both sides of the entry.
func (e JournalEntry) Totals() (debit, credit decimal.Decimal) {
	debit, credit = decimal.Zero, decimal.Zero
	for _, l := range e.Lines {
		debit = debit.Add(l.Debit)
		credit = credit.Add(l.Credit)
	}
	return debit, credit
}

// post moves a DRAFT entry to POSTED. POSTED is terminal.
func (e *JournalEntry) post(number, actorID int64, at time.Time) error {
	if e.Status == StatusPosted {
		return shared.AlreadyPosted("accounting: journal entry %d is already posted as #%d", e.ID, e.Number)
	}
	if e.Status != StatusDraft {
		return shared.Validation("accounting: journal entry %d has unknown status %q", e.ID, e.Status)
	}
	e.Status = StatusPosted
	e.Number = number
	e.PostedAt = &at
	e.PostedBy = &actorID
	return nil
}

func reverseLines(lines []JournalLine) []PostingLineInput {
	out := make([]PostingLineInput, 0, len(lines))
	for _, line := range lines {
		out = append(out, PostingLineInput{
			AccountID:    line.AccountID,
			Debit:        line.Credit,
			Credit:       line.Debit,
			Memo:         line.Memo,
			CostCenterID: line.CostCenterID,
			DepartmentID: line.DepartmentID,
			ItemID:       line.ItemID,
			WarehouseID:  line.WarehouseID,
		})
	}
	return out
}
