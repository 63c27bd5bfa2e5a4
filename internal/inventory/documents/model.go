// Package documents turns inventory documents into stock movements and the
// paired journal entries.
package documents

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledgercore/internal/accounting/journals"
	"github.com/odyssey-erp/ledgercore/internal/inventory"
	"github.com/odyssey-erp/ledgercore/internal/shared"
)

// Type identifies the business document.
type Type string

const (
	TypeReceipt    Type = "RECEIPT"
	TypeIssue      Type = "ISSUE"
	TypeTransfer   Type = "TRANSFER"
	TypeAdjustment Type = "ADJUSTMENT"
	TypeCount      Type = "COUNT"
	TypeLoanIssue  Type = "LOAN_ISSUE"
	TypeLoanReturn Type = "LOAN_RETURN"
)

var typeMeta = map[Type]struct {
	prefix    string
	reference inventory.ReferenceType
	source    journals.SourceType
}{
	TypeReceipt:    {"RCV", inventory.RefReceipt, journals.SourceGoodsReceipt},
	TypeIssue:      {"ISS", inventory.RefIssue, journals.SourceGoodsIssue},
	TypeTransfer:   {"TRF", inventory.RefTransfer, ""},
	TypeAdjustment: {"ADJ", inventory.RefAdjustment, journals.SourceStockAdjustment},
	TypeCount:      {"CNT", inventory.RefCount, journals.SourceStockCount},
	TypeLoanIssue:  {"LNI", inventory.RefLoanIssue, journals.SourceLoanIssue},
	TypeLoanReturn: {"LNR", inventory.RefLoanReturn, journals.SourceLoanReturn},
}

// Valid reports whether t is a known document type.
func (t Type) Valid() bool {
	_, ok := typeMeta[t]
	return ok
}

// Prefix returns the document number prefix of t.
func (t Type) Prefix() string { return typeMeta[t].prefix }

// Status of a document. Only counts stay in DRAFT; every other type is
// POSTED on creation.
type Status string

const (
	StatusDraft  Status = "DRAFT"
	StatusPosted Status = "POSTED"
	StatusVoid   Status = "VOID"
)

// Settlement selects the credit side of a receipt.
type Settlement string

const (
	SettlementAP   Settlement = "AP"
	SettlementCash Settlement = "CASH"
)

// Document is the header of an inventory document.
type Document struct {
	ID              int64      `db:"id" json:"id"`
	CompanyID       int64      `db:"company_id" json:"companyId"`
	Type            Type       `db:"doc_type" json:"type"`
	Number          string     `db:"number" json:"number"`
	Date            time.Time  `db:"doc_date" json:"date"`
	WarehouseID     int64      `db:"warehouse_id" json:"warehouseId"`
	DestWarehouseID *int64     `db:"dest_warehouse_id" json:"destWarehouseId,omitempty"`
	ReasonCode      string     `db:"reason_code" json:"reasonCode,omitempty"`
	Memo            string     `db:"memo" json:"memo,omitempty"`
	Settlement      Settlement `db:"settlement" json:"settlement,omitempty"`
	Status          Status     `db:"status" json:"status"`
	JournalEntryID  *int64     `db:"journal_entry_id" json:"journalEntryId,omitempty"`
	LoanOf          *int64     `db:"loan_of" json:"loanOf,omitempty"`
	Outstanding     bool       `db:"outstanding" json:"outstanding"`
	CreatedBy       int64      `db:"created_by" json:"createdBy"`
	PostedBy        *int64     `db:"posted_by" json:"postedBy,omitempty"`
	PostedAt        *time.Time `db:"posted_at" json:"postedAt,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"createdAt"`
	Lines           []Line     `db:"-" json:"lines"`
}

// Line is one item row. Quantities are in the item's base unit.
type Line struct {
	ID            int64               `db:"id" json:"id"`
	DocumentID    int64               `db:"document_id" json:"documentId"`
	LineNo        int                 `db:"line_no" json:"lineNo"`
	ItemID        int64               `db:"item_id" json:"itemId"`
	UnitID        int64               `db:"unit_id" json:"unitId"`
	BinID         int64               `db:"bin_id" json:"binId"`
	DestBinID     int64               `db:"dest_bin_id" json:"destBinId"`
	Qty           decimal.Decimal     `db:"qty" json:"qty"`
	UnitCost      decimal.NullDecimal `db:"unit_cost" json:"unitCost"`
	CountedQty    decimal.Decimal     `db:"counted_qty" json:"countedQty"`
	SystemQty     decimal.Decimal     `db:"system_qty" json:"systemQty"`
	ReturnedQty   decimal.Decimal     `db:"returned_qty" json:"returnedQty"`
	ReturnedValue decimal.Decimal     `db:"returned_value" json:"returnedValue"`
	LoanLineNo    int                 `db:"loan_line_no" json:"loanLineNo,omitempty"`
	Value         decimal.Decimal     `db:"value" json:"value"`
}

// OutstandingQty is the part of a loan line not yet returned.
func (l Line) OutstandingQty() decimal.Decimal {
	return l.Qty.Sub(l.ReturnedQty)
}

// CountEntry records a counted quantity for a count line.
type CountEntry struct {
	LineNo     int             `json:"lineNo"`
	CountedQty decimal.Decimal `json:"countedQty"`
}

// LoanLineStatus reports the open quantity of one loan line.
type LoanLineStatus struct {
	LineNo      int             `json:"lineNo"`
	ItemID      int64           `json:"itemId"`
	IssuedQty   decimal.Decimal `json:"issuedQty"`
	ReturnedQty decimal.Decimal `json:"returnedQty"`
	Outstanding decimal.Decimal `json:"outstanding"`
}

// LoanStatus summarises a loan document.
type LoanStatus struct {
	DocumentID    int64            `json:"documentId"`
	Number        string           `json:"number"`
	FullyReturned bool             `json:"fullyReturned"`
	Lines         []LoanLineStatus `json:"lines"`
}

func (d *Document) post(actorID int64, at time.Time) error {
	switch d.Status {
	case StatusPosted:
		return shared.AlreadyPosted("inventory: document %s is already posted", d.Number)
	case StatusVoid:
		return shared.Conflict("inventory: document %s is void", d.Number)
	}
	d.Status = StatusPosted
	d.PostedBy = &actorID
	d.PostedAt = &at
	return nil
}

func (d *Document) void(actorID int64, at time.Time) error {
	switch d.Status {
	case StatusPosted:
		return shared.AlreadyPosted("inventory: document %s is already posted", d.Number)
	case StatusVoid:
		return shared.Conflict("inventory: document %s is already void", d.Number)
	}
	d.Status = StatusVoid
	d.PostedBy = &actorID
	d.PostedAt = &at
	return nil
}

func (d *Document) editable() error {
	switch d.Status {
	case StatusPosted:
		return shared.AlreadyPosted("inventory: document %s is already posted", d.Number)
	case StatusVoid:
		return shared.Conflict("inventory: document %s is void", d.Number)
	}
	return nil
}

// line returns the line numbered no.
func (d *Document) line(no int) (*Line, bool) {
	for i := range d.Lines {
		if d.Lines[i].LineNo == no {
			return &d.Lines[i], true
		}
	}
	return nil, false
}

func (d *Document) fullyReturned() bool {
	for _, l := range d.Lines {
		if l.OutstandingQty().IsPositive() {
			return false
		}
	}
	return true
}
