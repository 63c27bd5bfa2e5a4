// Package masterdata resolves items, warehouses and unit conversions for the
// inventory processor.
package masterdata

import (
	"context"

	"github.com/shopspring/decimal"
)

// Item is a stocked product. Quantities are kept in its base unit.
type Item struct {
	ID         int64  `db:"id" json:"id"`
	CompanyID  int64  `db:"company_id" json:"companyId"`
	SKU        string `db:"sku" json:"sku"`
	Name       string `db:"name" json:"name"`
	BaseUnitID int64  `db:"base_unit_id" json:"baseUnitId"`
	IsActive   bool   `db:"is_active" json:"isActive"`
}

// Warehouse is a stock location. Bins are optional sub-locations.
type Warehouse struct {
	ID        int64  `db:"id" json:"id"`
	CompanyID int64  `db:"company_id" json:"companyId"`
	Code      string `db:"code" json:"code"`
	Name      string `db:"name" json:"name"`
	IsActive  bool   `db:"is_active" json:"isActive"`
}

// UnitConversion multiplies a quantity in UnitID into the item's base unit.
type UnitConversion struct {
	ItemID int64           `db:"item_id" json:"itemId"`
	UnitID int64           `db:"unit_id" json:"unitId"`
	Factor decimal.Decimal `db:"factor" json:"factor"`
}

// Lookup is the read port the inventory processor depends on.
type Lookup interface {
	Item(ctx context.Context, companyID, itemID int64) (Item, error)
	Warehouse(ctx context.Context, companyID, warehouseID int64) (Warehouse, error)
	Conversion(ctx context.Context, itemID, unitID int64) (UnitConversion, error)
}
