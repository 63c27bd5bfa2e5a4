package inventory

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ReferenceType tags the document that produced a stock movement.
type ReferenceType string

const (
	RefReceipt    ReferenceType = "RECEIPT"
	RefIssue      ReferenceType = "ISSUE"
	RefTransfer   ReferenceType = "TRANSFER"
	RefAdjustment ReferenceType = "ADJUSTMENT"
	RefCount      ReferenceType = "COUNT"
	RefOpening    ReferenceType = "OPENING"
	RefLoanIssue  ReferenceType = "LOAN_ISSUE"
	RefLoanReturn ReferenceType = "LOAN_RETURN"
)

// Key identifies one stock balance. BinID 0 means no bin.
type Key struct {
	CompanyID   int64 `db:"company_id" json:"companyId"`
	ItemID      int64 `db:"item_id" json:"itemId"`
	WarehouseID int64 `db:"warehouse_id" json:"warehouseId"`
	BinID       int64 `db:"bin_id" json:"binId"`
}

func (k Key) String() string {
	return fmt.Sprintf("%d/%d/%d/%d", k.CompanyID, k.ItemID, k.WarehouseID, k.BinID)
}

// Less orders keys for lock acquisition.
func (k Key) Less(o Key) bool {
	switch {
	case k.CompanyID != o.CompanyID:
		return k.CompanyID < o.CompanyID
	case k.ItemID != o.ItemID:
		return k.ItemID < o.ItemID
	case k.WarehouseID != o.WarehouseID:
		return k.WarehouseID < o.WarehouseID
	default:
		return k.BinID < o.BinID
	}
}

// Balance summarises stock per key. Value is the carried stock value.
type Balance struct {
	Key
	Qty       decimal.Decimal `db:"qty" json:"qty"`
	AvgCost   decimal.Decimal `db:"avg_cost" json:"avgCost"`
	Value     decimal.Decimal `db:"value" json:"value"`
	UpdatedAt time.Time       `db:"updated_at" json:"updatedAt"`
}

// Movement is a signed quantity change on a key. Inbound movements take
// their cost from Value, then UnitCost, then the current average.
type Movement struct {
	Key           Key
	QtyDelta      decimal.Decimal
	UnitCost      *decimal.Decimal
	Value         *decimal.Decimal
	ReferenceType ReferenceType
	ReferenceID   string
	Memo          string
}

// LedgerEntry is one append-only stock ledger row.
type LedgerEntry struct {
	ID             int64           `db:"id" json:"id"`
	CompanyID      int64           `db:"company_id" json:"companyId"`
	ItemID         int64           `db:"item_id" json:"itemId"`
	WarehouseID    int64           `db:"warehouse_id" json:"warehouseId"`
	BinID          int64           `db:"bin_id" json:"binId"`
	PostedAt       time.Time       `db:"posted_at" json:"postedAt"`
	ReferenceType  ReferenceType   `db:"reference_type" json:"referenceType"`
	ReferenceID    string          `db:"reference_id" json:"referenceId"`
	Memo           string          `db:"memo" json:"memo,omitempty"`
	QtyDelta       decimal.Decimal `db:"qty_delta" json:"qtyDelta"`
	UnitCost       decimal.Decimal `db:"unit_cost" json:"unitCost"`
	Value          decimal.Decimal `db:"value" json:"value"`
	RunningQty     decimal.Decimal `db:"running_qty" json:"runningQty"`
	RunningAvgCost decimal.Decimal `db:"running_avg_cost" json:"runningAvgCost"`
	RunningValue   decimal.Decimal `db:"running_value" json:"runningValue"`
}

// Key returns the stock key of the entry.
func (e LedgerEntry) Key() Key {
	return Key{CompanyID: e.CompanyID, ItemID: e.ItemID, WarehouseID: e.WarehouseID, BinID: e.BinID}
}

// LedgerQuery filters stock ledger reads. Cursor is the last seen entry id.
type LedgerQuery struct {
	CompanyID   int64      `json:"companyId"`
	ItemID      int64      `json:"itemId"`
	WarehouseID *int64     `json:"warehouseId,omitempty"`
	BinID       *int64     `json:"binId,omitempty"`
	From        *time.Time `json:"from,omitempty"`
	To          *time.Time `json:"to,omitempty"`
	Limit       int        `json:"limit,omitempty"`
	Offset      int        `json:"offset,omitempty"`
	Cursor      int64      `json:"cursor,omitempty"`
}

// LedgerPage is one window of the stock ledger. NextCursor is 0 on the last page.
type LedgerPage struct {
	Entries    []LedgerEntry `json:"entries"`
	NextCursor int64         `json:"nextCursor,omitempty"`
}

// ReplayReport compares a re-fold of the ledger with the stored balance.
type ReplayReport struct {
	Key      Key     `json:"key"`
	Expected Balance `json:"expected"`
	Actual   Balance `json:"actual"`
	Entries  int     `json:"entries"`
	Drift    bool    `json:"drift"`
}
