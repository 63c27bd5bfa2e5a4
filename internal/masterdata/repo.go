package masterdata

import (
	"context"
	"fmt"

	"github.com/georgysavva/scany/v2/pgxscan"

	"github.com/odyssey-erp/ledgercore/internal/platform/db"
	"github.com/odyssey-erp/ledgercore/internal/shared"
)

// PGLookup reads master data from PostgreSQL.
type PGLookup struct {
	conn db.Conn
}

// NewLookup constructs the PostgreSQL lookup.
func NewLookup(conn db.Conn) *PGLookup {
	return &PGLookup{conn: conn}
}

func (l *PGLookup) Item(ctx context.Context, companyID, itemID int64) (Item, error) {
	var item Item
	err := pgxscan.Get(ctx, l.conn.Querier(ctx), &item,
		`SELECT id, company_id, sku, name, base_unit_id, is_active FROM items WHERE company_id = $1 AND id = $2`, companyID, itemID)
	if err != nil {
		if pgxscan.NotFound(err) {
			return Item{}, shared.NotFound("item", itemID)
		}
		return Item{}, shared.Storage("inventory: load item", err)
	}
	return item, nil
}

func (l *PGLookup) Warehouse(ctx context.Context, companyID, warehouseID int64) (Warehouse, error) {
	var wh Warehouse
	err := pgxscan.Get(ctx, l.conn.Querier(ctx), &wh,
		`SELECT id, company_id, code, name, is_active FROM warehouses WHERE company_id = $1 AND id = $2`, companyID, warehouseID)
	if err != nil {
		if pgxscan.NotFound(err) {
			return Warehouse{}, shared.NotFound("warehouse", warehouseID)
		}
		return Warehouse{}, shared.Storage("inventory: load warehouse", err)
	}
	return wh, nil
}

func (l *PGLookup) Conversion(ctx context.Context, itemID, unitID int64) (UnitConversion, error) {
	var conv UnitConversion
	err := pgxscan.Get(ctx, l.conn.Querier(ctx), &conv,
		`SELECT item_id, unit_id, factor FROM item_units WHERE item_id = $1 AND unit_id = $2`, itemID, unitID)
	if err != nil {
		if pgxscan.NotFound(err) {
			return UnitConversion{}, shared.NotFound("unit conversion", fmt.Sprintf("%d/%d", itemID, unitID))
		}
		return UnitConversion{}, shared.Storage("inventory: load unit conversion", err)
	}
	return conv, nil
}
