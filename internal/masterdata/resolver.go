package masterdata

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledgercore/internal/shared"
)

// Resolver validates master data references and converts quantities.
type Resolver struct {
	lookup Lookup
}

// NewResolver wraps lookup.
func NewResolver(lookup Lookup) *Resolver {
	return &Resolver{lookup: lookup}
}

// Item returns an active item of the company.
func (r *Resolver) Item(ctx context.Context, companyID, itemID int64) (Item, error) {
	item, err := r.lookup.Item(ctx, companyID, itemID)
	if err != nil {
		return Item{}, err
	}
	if !item.IsActive {
		return Item{}, shared.Validation("inventory: item %s is inactive", item.SKU)
	}
	return item, nil
}

// Warehouse returns an active warehouse of the company.
func (r *Resolver) Warehouse(ctx context.Context, companyID, warehouseID int64) (Warehouse, error) {
	wh, err := r.lookup.Warehouse(ctx, companyID, warehouseID)
	if err != nil {
		return Warehouse{}, err
	}
	if !wh.IsActive {
		return Warehouse{}, shared.Validation("inventory: warehouse %s is inactive", wh.Code)
	}
	return wh, nil
}

// ToBase converts qty expressed in unitID into the item's base unit. unitID 0
// or the base unit itself leaves qty unchanged.
func (r *Resolver) ToBase(ctx context.Context, item Item, unitID int64, qty decimal.Decimal) (decimal.Decimal, error) {
	if unitID == 0 || unitID == item.BaseUnitID {
		return qty, nil
	}
	conv, err := r.lookup.Conversion(ctx, item.ID, unitID)
	if err != nil {
		if shared.KindOf(err) == shared.KindNotFound {
			return decimal.Decimal{}, shared.Validation("inventory: item %s has no conversion for unit %d", item.SKU, unitID)
		}
		return decimal.Decimal{}, err
	}
	if !conv.Factor.IsPositive() {
		return decimal.Decimal{}, shared.Validation("inventory: unit %d of item %s has a non-positive factor", unitID, item.SKU)
	}
	return shared.RoundQty(qty.Mul(conv.Factor)), nil
}
