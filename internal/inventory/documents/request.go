package documents

import (
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledgercore/internal/shared"
)

// Request is the inbound contract for every document type.
type Request struct {
	DocumentType    Type          `json:"documentType" validate:"required" jsonschema:"enum=RECEIPT,enum=ISSUE,enum=TRANSFER,enum=ADJUSTMENT,enum=COUNT,enum=LOAN_ISSUE,enum=LOAN_RETURN"`
	CompanyID       int64         `json:"companyId" validate:"required,gt=0"`
	WarehouseID     int64         `json:"warehouseId" validate:"required,gt=0"`
	DestWarehouseID int64         `json:"destWarehouseId,omitempty" validate:"gte=0"`
	Date            time.Time     `json:"date" validate:"required"`
	Lines           []RequestLine `json:"lines" validate:"required,min=1,dive"`
	CreatedBy       int64         `json:"createdBy" validate:"gte=0"`
	ReasonCode      string        `json:"reasonCode,omitempty" validate:"max=64"`
	Memo            string        `json:"memo,omitempty" validate:"max=500"`
	LoanDocumentID  int64         `json:"loanDocumentId,omitempty" validate:"gte=0"`
	Settlement      Settlement    `json:"settlement,omitempty" validate:"omitempty,oneof=AP CASH" jsonschema:"enum=AP,enum=CASH"`
	IdempotencyKey  string        `json:"idempotencyKey,omitempty" validate:"max=128"`
}

// RequestLine is one item row of a Request. Qty is in UnitID; UnitID 0 means
// the item's base unit. For counts Qty is the counted quantity.
type RequestLine struct {
	ItemID     int64            `json:"itemId" validate:"required,gt=0"`
	UnitID     int64            `json:"unitId,omitempty" validate:"gte=0"`
	Qty        decimal.Decimal  `json:"qty"`
	UnitCost   *decimal.Decimal `json:"unitCost,omitempty"`
	BinID      int64            `json:"binId,omitempty" validate:"gte=0"`
	DestBinID  int64            `json:"destBinId,omitempty" validate:"gte=0"`
	LoanLineNo int              `json:"loanLineNo,omitempty" validate:"gte=0"`
}

// Validate checks the request shape. Stock and accounting rules are checked
// later against live state.
func (r *Request) Validate() error {
	r.ReasonCode = strings.TrimSpace(r.ReasonCode)
	if err := shared.ValidateStruct("inventory: invalid document", r); err != nil {
		return err
	}
	if !r.DocumentType.Valid() {
		return shared.ValidationFields("inventory: invalid document", map[string]string{"documentType": "oneof"})
	}
	fields := map[string]string{}
	switch r.DocumentType {
	case TypeTransfer:
		if r.DestWarehouseID == 0 {
			fields["destWarehouseId"] = "required"
		}
	case TypeAdjustment:
		if r.ReasonCode == "" {
			fields["reasonCode"] = "required"
		}
	case TypeLoanReturn:
		if r.LoanDocumentID == 0 {
			fields["loanDocumentId"] = "required"
		}
	}
	if r.DocumentType == TypeReceipt && r.Settlement == "" {
		r.Settlement = SettlementAP
	}
	for i, l := range r.Lines {
		if rule := l.qtyRule(r.DocumentType); rule != "" {
			fields[lineField(i, "qty")] = rule
		}
		if l.UnitCost != nil {
			if l.UnitCost.IsNegative() {
				fields[lineField(i, "unitCost")] = "gte=0"
			} else if !l.UnitCost.Equal(shared.RoundCost(*l.UnitCost)) {
				fields[lineField(i, "unitCost")] = "scale"
			}
		}
		switch r.DocumentType {
		case TypeReceipt:
			if l.UnitCost == nil {
				fields[lineField(i, "unitCost")] = "required"
			}
		case TypeTransfer:
			if r.DestWarehouseID == r.WarehouseID && l.DestBinID == l.BinID {
				fields[lineField(i, "destBinId")] = "ne_location"
			}
		case TypeLoanReturn:
			if l.LoanLineNo == 0 {
				fields[lineField(i, "loanLineNo")] = "required"
			}
		}
	}
	if len(fields) > 0 {
		return shared.ValidationFields("inventory: invalid document", fields)
	}
	return nil
}

func (l RequestLine) qtyRule(t Type) string {
	if !l.Qty.Equal(shared.RoundQty(l.Qty)) {
		return "scale"
	}
	switch t {
	case TypeAdjustment:
		if l.Qty.IsZero() {
			return "ne=0"
		}
	case TypeCount:
		if l.Qty.IsNegative() {
			return "gte=0"
		}
	default:
		if !l.Qty.IsPositive() {
			return "gt=0"
		}
	}
	return ""
}

func lineField(i int, name string) string {
	return "lines[" + strconv.Itoa(i) + "]." + name
}

// Schema returns the JSON Schema of Request. Decimals travel as strings.
func Schema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			if t == reflect.TypeOf(decimal.Decimal{}) {
				return &jsonschema.Schema{Type: "string", Pattern: `^-?[0-9]+(\.[0-9]+)?$`}
			}
			return nil
		},
	}
	return reflector.Reflect(&Request{})
}
