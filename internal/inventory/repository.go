package inventory

import (
	"context"
	"sort"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"github.com/odyssey-erp/ledgercore/internal/platform/db"
	"github.com/odyssey-erp/ledgercore/internal/shared"
)

// Repository persists stock balances and the append-only stock ledger.
type Repository interface {
	// LockBalances creates missing balance rows and locks every key, in the
	// order given, until the caller's transaction ends.
	LockBalances(ctx context.Context, keys []Key) (map[Key]Balance, error)
	SaveBalance(ctx context.Context, bal Balance) error
	AppendEntry(ctx context.Context, entry LedgerEntry) (LedgerEntry, error)
	GetBalance(ctx context.Context, key Key) (Balance, error)
	ListBalances(ctx context.Context, companyID, itemID int64) ([]Balance, error)
	ListKeys(ctx context.Context, companyID int64) ([]Key, error)
	// ListEntries returns entries ordered by (posted_at, id), starting after
	// the Cursor entry or at Offset.
	ListEntries(ctx context.Context, q LedgerQuery) ([]LedgerEntry, error)
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var (
	balanceColumns = []string{"company_id", "item_id", "warehouse_id", "bin_id", "qty", "avg_cost", "value", "updated_at"}
	entryColumns   = []string{"id", "company_id", "item_id", "warehouse_id", "bin_id", "posted_at", "reference_type",
		"reference_id", "memo", "qty_delta", "unit_cost", "value", "running_qty", "running_avg_cost", "running_value"}
)

// PGRepository implements Repository on PostgreSQL.
type PGRepository struct {
	conn db.Conn
}

// NewRepository constructs Repository.
func NewRepository(conn db.Conn) *PGRepository {
	return &PGRepository{conn: conn}
}

func (r *PGRepository) LockBalances(ctx context.Context, keys []Key) (map[Key]Balance, error) {
	q := r.conn.Querier(ctx)
	out := make(map[Key]Balance, len(keys))
	for _, k := range keys {
		if _, err := q.Exec(ctx, `INSERT INTO stock_balances (company_id, item_id, warehouse_id, bin_id, qty, avg_cost, value)
VALUES ($1, $2, $3, $4, 0, 0, 0)
ON CONFLICT (company_id, item_id, warehouse_id, bin_id) DO NOTHING`, k.CompanyID, k.ItemID, k.WarehouseID, k.BinID); err != nil {
			return nil, shared.Storage("inventory: ensure balance", err)
		}
		query, args, err := psql.Select(balanceColumns...).From("stock_balances").
			Where(sq.Eq{"company_id": k.CompanyID, "item_id": k.ItemID, "warehouse_id": k.WarehouseID, "bin_id": k.BinID}).
			Suffix("FOR UPDATE").ToSql()
		if err != nil {
			return nil, err
		}
		var bal Balance
		if err := pgxscan.Get(ctx, q, &bal, query, args...); err != nil {
			return nil, shared.Storage("inventory: lock balance", err)
		}
		out[k] = bal
	}
	return out, nil
}

func (r *PGRepository) SaveBalance(ctx context.Context, bal Balance) error {
	query, args, err := psql.Update("stock_balances").
		SetMap(map[string]any{
			"qty":        bal.Qty,
			"avg_cost":   bal.AvgCost,
			"value":      bal.Value,
			"updated_at": bal.UpdatedAt,
		}).
		Where(sq.Eq{"company_id": bal.CompanyID, "item_id": bal.ItemID, "warehouse_id": bal.WarehouseID, "bin_id": bal.BinID}).
		ToSql()
	if err != nil {
		return err
	}
	tag, err := r.conn.Querier(ctx).Exec(ctx, query, args...)
	if err != nil {
		return shared.Storage("inventory: save balance", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("stock balance", bal.Key.String())
	}
	return nil
}

func (r *PGRepository) AppendEntry(ctx context.Context, e LedgerEntry) (LedgerEntry, error) {
	query, args, err := psql.Insert("stock_ledger_entries").
		Columns(entryColumns[1:]...).
		Values(e.CompanyID, e.ItemID, e.WarehouseID, e.BinID, e.PostedAt, e.ReferenceType, e.ReferenceID, e.Memo,
			e.QtyDelta, e.UnitCost, e.Value, e.RunningQty, e.RunningAvgCost, e.RunningValue).
		Suffix("RETURNING " + strings.Join(entryColumns, ", ")).
		ToSql()
	if err != nil {
		return LedgerEntry{}, err
	}
	var out LedgerEntry
	if err := pgxscan.Get(ctx, r.conn.Querier(ctx), &out, query, args...); err != nil {
		return LedgerEntry{}, shared.Storage("inventory: append ledger entry", err)
	}
	return out, nil
}

func (r *PGRepository) GetBalance(ctx context.Context, k Key) (Balance, error) {
	query, args, err := psql.Select(balanceColumns...).From("stock_balances").
		Where(sq.Eq{"company_id": k.CompanyID, "item_id": k.ItemID, "warehouse_id": k.WarehouseID, "bin_id": k.BinID}).
		ToSql()
	if err != nil {
		return Balance{}, err
	}
	var bal Balance
	if err := pgxscan.Get(ctx, r.conn.Querier(ctx), &bal, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return Balance{}, shared.NotFound("stock balance", k.String())
		}
		return Balance{}, shared.Storage("inventory: load balance", err)
	}
	return bal, nil
}

func (r *PGRepository) ListBalances(ctx context.Context, companyID, itemID int64) ([]Balance, error) {
	query, args, err := psql.Select(balanceColumns...).From("stock_balances").
		Where(sq.Eq{"company_id": companyID, "item_id": itemID}).
		OrderBy("warehouse_id", "bin_id").ToSql()
	if err != nil {
		return nil, err
	}
	var out []Balance
	if err := pgxscan.Select(ctx, r.conn.Querier(ctx), &out, query, args...); err != nil {
		return nil, shared.Storage("inventory: list balances", err)
	}
	return out, nil
}

func (r *PGRepository) ListKeys(ctx context.Context, companyID int64) ([]Key, error) {
	var out []Key
	err := pgxscan.Select(ctx, r.conn.Querier(ctx), &out, `SELECT company_id, item_id, warehouse_id, bin_id
FROM stock_balances WHERE company_id = $1
ORDER BY item_id, warehouse_id, bin_id`, companyID)
	if err != nil {
		return nil, shared.Storage("inventory: list keys", err)
	}
	return out, nil
}

func (r *PGRepository) ListEntries(ctx context.Context, q LedgerQuery) ([]LedgerEntry, error) {
	where := sq.And{sq.Eq{"company_id": q.CompanyID, "item_id": q.ItemID}}
	if q.WarehouseID != nil {
		where = append(where, sq.Eq{"warehouse_id": *q.WarehouseID})
	}
	if q.BinID != nil {
		where = append(where, sq.Eq{"bin_id": *q.BinID})
	}
	if q.From != nil {
		where = append(where, sq.GtOrEq{"posted_at": *q.From})
	}
	if q.To != nil {
		where = append(where, sq.LtOrEq{"posted_at": *q.To})
	}
	if q.Cursor > 0 {
		where = append(where, sq.Expr("(posted_at, id) > (SELECT c.posted_at, c.id FROM stock_ledger_entries c WHERE c.id = ?)", q.Cursor))
	}
	builder := psql.Select(entryColumns...).From("stock_ledger_entries").
		Where(where).
		OrderBy("posted_at", "id").
		Limit(uint64(q.Limit))
	if q.Offset > 0 {
		builder = builder.Offset(uint64(q.Offset))
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}
	var out []LedgerEntry
	if err := pgxscan.Select(ctx, r.conn.Querier(ctx), &out, query, args...); err != nil {
		return nil, shared.Storage("inventory: list ledger entries", err)
	}
	return out, nil
}

// sortKeys dedupes keys and orders them for lock acquisition.
func sortKeys(keys []Key) []Key {
	seen := make(map[Key]struct{}, len(keys))
	out := make([]Key, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}
