package ledger

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledgercore/internal/platform/db"
	"github.com/odyssey-erp/ledgercore/internal/shared"
)

// Query narrows the rows read by a Store. AccountID 0 means every account.
type Query struct {
	CompanyID int64
	AccountID int64
	To        time.Time
}

// Store reads the projection inputs.
type Store interface {
	// Postings returns POSTED lines dated on or before To, in ledger order.
	Postings(ctx context.Context, q Query) ([]Posting, error)
	// Anchors returns opening balances whose period starts on or before To.
	Anchors(ctx context.Context, q Query) ([]Anchor, error)
	Activity(ctx context.Context, companyID int64, from, to time.Time) ([]Activity, error)
	// AggregateNet computes the same ending nets as the fold with a single
	// aggregate query. Integrity checks compare the two.
	AggregateNet(ctx context.Context, companyID int64, asOf time.Time) (map[int64]decimal.Decimal, error)
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PGStore implements Store on PostgreSQL.
type PGStore struct {
	conn db.Conn
}

// NewStore constructs the PostgreSQL store.
func NewStore(conn db.Conn) *PGStore {
	return &PGStore{conn: conn}
}

func (s *PGStore) Postings(ctx context.Context, q Query) ([]Posting, error) {
	where := sq.And{
		sq.Eq{"e.company_id": q.CompanyID, "e.status": "POSTED"},
		sq.LtOrEq{"e.entry_date": q.To},
	}
	if q.AccountID != 0 {
		where = append(where, sq.Eq{"l.account_id": q.AccountID})
	}
	query, args, err := psql.Select("e.id AS entry_id", "e.number AS entry_number", "l.line_no", "e.entry_date",
		"l.account_id", "e.source_type", "l.memo", "l.debit", "l.credit").
		From("journal_lines l").
		Join("journal_entries e ON e.id = l.entry_id").
		Where(where).
		OrderBy("e.entry_date", "e.number", "l.line_no").
		ToSql()
	if err != nil {
		return nil, err
	}
	var out []Posting
	if err := pgxscan.Select(ctx, s.conn.Querier(ctx), &out, query, args...); err != nil {
		return nil, shared.Storage("accounting: load postings", err)
	}
	return out, nil
}

func (s *PGStore) Anchors(ctx context.Context, q Query) ([]Anchor, error) {
	where := sq.And{
		sq.Eq{"ob.company_id": q.CompanyID},
		sq.LtOrEq{"p.start_date": q.To},
	}
	if q.AccountID != 0 {
		where = append(where, sq.Eq{"ob.account_id": q.AccountID})
	}
	query, args, err := psql.Select("ob.account_id", "ob.period_id", "p.start_date", "ob.debit", "ob.credit").
		From("opening_balances ob").
		Join("fiscal_periods p ON p.id = ob.period_id").
		Where(where).
		OrderBy("ob.account_id", "p.start_date").
		ToSql()
	if err != nil {
		return nil, err
	}
	var out []Anchor
	if err := pgxscan.Select(ctx, s.conn.Querier(ctx), &out, query, args...); err != nil {
		return nil, shared.Storage("accounting: load opening balances", err)
	}
	return out, nil
}

func (s *PGStore) Activity(ctx context.Context, companyID int64, from, to time.Time) ([]Activity, error) {
	var out []Activity
	err := pgxscan.Select(ctx, s.conn.Querier(ctx), &out, `SELECT l.account_id, SUM(l.debit) AS debit, SUM(l.credit) AS credit
FROM journal_lines l
JOIN journal_entries e ON e.id = l.entry_id
WHERE e.company_id = $1 AND e.status = 'POSTED' AND e.entry_date BETWEEN $2 AND $3
GROUP BY l.account_id
ORDER BY l.account_id`, companyID, from, to)
	if err != nil {
		return nil, shared.Storage("accounting: load activity", err)
	}
	return out, nil
}

func (s *PGStore) AggregateNet(ctx context.Context, companyID int64, asOf time.Time) (map[int64]decimal.Decimal, error) {
	rows, err := s.conn.Querier(ctx).Query(ctx, `WITH anchor AS (
	SELECT DISTINCT ON (ob.account_id) ob.account_id, p.start_date, ob.debit - ob.credit AS base
	FROM opening_balances ob
	JOIN fiscal_periods p ON p.id = ob.period_id
	WHERE ob.company_id = $1 AND p.start_date <= $2
	ORDER BY ob.account_id, p.start_date DESC
), moves AS (
	SELECT l.account_id, SUM(l.debit - l.credit) AS net
	FROM journal_lines l
	JOIN journal_entries e ON e.id = l.entry_id
	LEFT JOIN anchor a ON a.account_id = l.account_id
	WHERE e.company_id = $1 AND e.status = 'POSTED' AND e.entry_date <= $2
	  AND (a.start_date IS NULL OR e.entry_date >= a.start_date)
	GROUP BY l.account_id
)
SELECT COALESCE(a.account_id, m.account_id), COALESCE(a.base, 0) + COALESCE(m.net, 0)
FROM anchor a
FULL OUTER JOIN moves m ON m.account_id = a.account_id`, companyID, asOf)
	if err != nil {
		return nil, shared.Storage("accounting: aggregate balances", err)
	}
	defer rows.Close()
	out := make(map[int64]decimal.Decimal)
	for rows.Next() {
		var id int64
		var net decimal.Decimal
		if err := rows.Scan(&id, &net); err != nil {
			return nil, shared.Storage("accounting: aggregate balances", err)
		}
		out[id] = net
	}
	if err := rows.Err(); err != nil {
		return nil, shared.Storage("accounting: aggregate balances", err)
	}
	return out, nil
}
