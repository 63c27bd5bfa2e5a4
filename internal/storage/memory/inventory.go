package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledgercore/internal/inventory"
	"github.com/odyssey-erp/ledgercore/internal/inventory/documents"
	"github.com/odyssey-erp/ledgercore/internal/masterdata"
	"github.com/odyssey-erp/ledgercore/internal/shared"
)

// Stock implements inventory.Repository.
type Stock struct{ s *Store }

var _ inventory.Repository = (*Stock)(nil)

func (r *Stock) LockBalances(ctx context.Context, keys []inventory.Key) (map[inventory.Key]inventory.Balance, error) {
	out := make(map[inventory.Key]inventory.Balance, len(keys))
	err := r.s.do(ctx, func(st *state) error {
		for _, k := range keys {
			bal, ok := st.balances[k]
			if !ok {
				bal = inventory.Balance{Key: k, Qty: decimal.Zero, AvgCost: decimal.Zero, Value: decimal.Zero}
				st.balances[k] = bal
			}
			out[k] = bal
		}
		return nil
	})
	return out, err
}

func (r *Stock) SaveBalance(ctx context.Context, bal inventory.Balance) error {
	return r.s.do(ctx, func(st *state) error {
		st.balances[bal.Key] = bal
		return nil
	})
}

func (r *Stock) AppendEntry(ctx context.Context, e inventory.LedgerEntry) (inventory.LedgerEntry, error) {
	err := r.s.do(ctx, func(st *state) error {
		e.ID = st.nextID()
		st.stock = append(st.stock, e)
		return nil
	})
	return e, err
}

func (r *Stock) GetBalance(ctx context.Context, k inventory.Key) (inventory.Balance, error) {
	var out inventory.Balance
	err := r.s.do(ctx, func(st *state) error {
		bal, ok := st.balances[k]
		if !ok {
			return shared.NotFound("stock balance", k.String())
		}
		out = bal
		return nil
	})
	return out, err
}

func (r *Stock) ListBalances(ctx context.Context, companyID, itemID int64) ([]inventory.Balance, error) {
	var out []inventory.Balance
	err := r.s.do(ctx, func(st *state) error {
		for k, bal := range st.balances {
			if k.CompanyID == companyID && k.ItemID == itemID {
				out = append(out, bal)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Key.Less(out[j].Key) })
	return out, err
}

func (r *Stock) ListKeys(ctx context.Context, companyID int64) ([]inventory.Key, error) {
	var out []inventory.Key
	err := r.s.do(ctx, func(st *state) error {
		for k := range st.balances {
			if k.CompanyID == companyID {
				out = append(out, k)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out, err
}

func (r *Stock) ListEntries(ctx context.Context, q inventory.LedgerQuery) ([]inventory.LedgerEntry, error) {
	var matched []inventory.LedgerEntry
	var after *inventory.LedgerEntry
	err := r.s.do(ctx, func(st *state) error {
		for _, e := range st.stock {
			if q.Cursor > 0 && e.ID == q.Cursor {
				cursor := e
				after = &cursor
			}
			if e.CompanyID != q.CompanyID || e.ItemID != q.ItemID {
				continue
			}
			if q.WarehouseID != nil && e.WarehouseID != *q.WarehouseID {
				continue
			}
			if q.BinID != nil && e.BinID != *q.BinID {
				continue
			}
			if q.From != nil && e.PostedAt.Before(*q.From) {
				continue
			}
			if q.To != nil && e.PostedAt.After(*q.To) {
				continue
			}
			matched = append(matched, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(matched, func(i, j int) bool { return entryBefore(matched[i], matched[j]) })
	if q.Cursor > 0 {
		if after == nil {
			return nil, nil
		}
		cut := sort.Search(len(matched), func(i int) bool { return entryBefore(*after, matched[i]) })
		matched = matched[cut:]
	}
	if q.Offset > 0 {
		if q.Offset >= len(matched) {
			return nil, nil
		}
		matched = matched[q.Offset:]
	}
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	return matched, nil
}

func entryBefore(a, b inventory.LedgerEntry) bool {
	if !a.PostedAt.Equal(b.PostedAt) {
		return a.PostedAt.Before(b.PostedAt)
	}
	return a.ID < b.ID
}

// Documents implements documents.Repository.
type Documents struct{ s *Store }

var _ documents.Repository = (*Documents)(nil)

func (r *Documents) NextNumber(ctx context.Context, companyID int64, prefix string, year, month int) (int64, error) {
	var next int64
	err := r.s.do(ctx, func(st *state) error {
		k := docSeqKey{companyID, prefix, year, month}
		st.docSeq[k]++
		next = st.docSeq[k]
		return nil
	})
	return next, err
}

func (r *Documents) Insert(ctx context.Context, doc documents.Document) (documents.Document, error) {
	err := r.s.do(ctx, func(st *state) error {
		for _, other := range st.documents {
			if other.CompanyID == doc.CompanyID && other.Number == doc.Number {
				return shared.Conflict("inventory: document number %s already used", doc.Number)
			}
		}
		doc.ID = st.nextID()
		doc.CreatedAt = r.s.stamp()
		lines := make([]documents.Line, len(doc.Lines))
		for i, l := range doc.Lines {
			l.ID = st.nextID()
			l.DocumentID = doc.ID
			lines[i] = l
		}
		doc.Lines = lines
		st.documents[doc.ID] = doc
		return nil
	})
	return copyDocument(doc), err
}

func (r *Documents) Get(ctx context.Context, companyID, id int64) (documents.Document, error) {
	var out documents.Document
	err := r.s.do(ctx, func(st *state) error {
		doc, ok := st.documents[id]
		if !ok || doc.CompanyID != companyID {
			return shared.NotFound("inventory document", id)
		}
		out = copyDocument(doc)
		return nil
	})
	return out, err
}

func (r *Documents) GetForUpdate(ctx context.Context, companyID, id int64) (documents.Document, error) {
	return r.Get(ctx, companyID, id)
}

func (r *Documents) Save(ctx context.Context, doc documents.Document) error {
	return r.s.do(ctx, func(st *state) error {
		cur, ok := st.documents[doc.ID]
		if !ok || cur.CompanyID != doc.CompanyID {
			return shared.NotFound("inventory document", doc.ID)
		}
		cur.Status, cur.JournalEntryID, cur.Outstanding = doc.Status, doc.JournalEntryID, doc.Outstanding
		cur.PostedBy, cur.PostedAt = doc.PostedBy, doc.PostedAt
		lines := copyDocument(cur).Lines
		for _, l := range doc.Lines {
			for i := range lines {
				if lines[i].LineNo != l.LineNo {
					continue
				}
				lines[i].Qty, lines[i].UnitCost, lines[i].Value = l.Qty, l.UnitCost, l.Value
				lines[i].CountedQty, lines[i].SystemQty = l.CountedQty, l.SystemQty
				lines[i].ReturnedQty, lines[i].ReturnedValue = l.ReturnedQty, l.ReturnedValue
			}
		}
		cur.Lines = lines
		st.documents[doc.ID] = cur
		return nil
	})
}

func (r *Documents) CountDrafts(ctx context.Context, companyID int64, start, end time.Time) (int, error) {
	var n int
	err := r.s.do(ctx, func(st *state) error {
		for _, doc := range st.documents {
			if doc.CompanyID == companyID && doc.Status == documents.StatusDraft && within(doc.Date, start, end) {
				n++
			}
		}
		return nil
	})
	return n, err
}

func copyDocument(doc documents.Document) documents.Document {
	doc.Lines = append([]documents.Line(nil), doc.Lines...)
	return doc
}

// MasterData implements masterdata.Lookup and lets tests seed rows.
type MasterData struct{ s *Store }

var _ masterdata.Lookup = (*MasterData)(nil)

// PutItem stores an item, assigning an id when it has none.
func (r *MasterData) PutItem(item masterdata.Item) masterdata.Item {
	_ = r.s.do(context.Background(), func(st *state) error {
		if item.ID == 0 {
			item.ID = st.nextID()
		}
		st.items[item.ID] = item
		return nil
	})
	return item
}

// PutWarehouse stores a warehouse, assigning an id when it has none.
func (r *MasterData) PutWarehouse(wh masterdata.Warehouse) masterdata.Warehouse {
	_ = r.s.do(context.Background(), func(st *state) error {
		if wh.ID == 0 {
			wh.ID = st.nextID()
		}
		st.warehouses[wh.ID] = wh
		return nil
	})
	return wh
}

// PutConversion stores a unit conversion factor for an item.
func (r *MasterData) PutConversion(conv masterdata.UnitConversion) {
	_ = r.s.do(context.Background(), func(st *state) error {
		st.conversions[[2]int64{conv.ItemID, conv.UnitID}] = conv
		return nil
	})
}

func (r *MasterData) Item(ctx context.Context, companyID, itemID int64) (masterdata.Item, error) {
	var out masterdata.Item
	err := r.s.do(ctx, func(st *state) error {
		item, ok := st.items[itemID]
		if !ok || item.CompanyID != companyID {
			return shared.NotFound("item", itemID)
		}
		out = item
		return nil
	})
	return out, err
}

func (r *MasterData) Warehouse(ctx context.Context, companyID, warehouseID int64) (masterdata.Warehouse, error) {
	var out masterdata.Warehouse
	err := r.s.do(ctx, func(st *state) error {
		wh, ok := st.warehouses[warehouseID]
		if !ok || wh.CompanyID != companyID {
			return shared.NotFound("warehouse", warehouseID)
		}
		out = wh
		return nil
	})
	return out, err
}

func (r *MasterData) Conversion(ctx context.Context, itemID, unitID int64) (masterdata.UnitConversion, error) {
	var out masterdata.UnitConversion
	err := r.s.do(ctx, func(st *state) error {
		conv, ok := st.conversions[[2]int64{itemID, unitID}]
		if !ok {
			return shared.NotFound("unit conversion", fmt.Sprintf("%d/%d", itemID, unitID))
		}
		out = conv
		return nil
	})
	return out, err
}
