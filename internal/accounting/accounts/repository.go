package accounts

import (
	"context"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"github.com/odyssey-erp/ledgercore/internal/platform/db"
	"github.com/odyssey-erp/ledgercore/internal/shared"
)

// Repository persists the chart of accounts.
type Repository interface {
	Insert(ctx context.Context, acc Account) (Account, error)
	Update(ctx context.Context, acc Account) (Account, error)
	Delete(ctx context.Context, companyID, id int64) error
	Get(ctx context.Context, companyID, id int64) (Account, error)
	GetByCode(ctx context.Context, companyID int64, code string) (Account, error)
	List(ctx context.Context, companyID int64) ([]Account, error)
	ListByIDs(ctx context.Context, companyID int64, ids []int64) ([]Account, error)
	HasChildren(ctx context.Context, companyID, id int64) (bool, error)
	HasPostings(ctx context.Context, companyID, id int64) (bool, error)
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var accountColumns = []string{"id", "company_id", "code", "name", "class", "normal_side", "is_posting", "parent_id", "status", "created_at", "updated_at"}

// PGRepository implements Repository on PostgreSQL.
type PGRepository struct {
	conn db.Conn
}

// NewRepository constructs the PostgreSQL repository.
func NewRepository(conn db.Conn) *PGRepository {
	return &PGRepository{conn: conn}
}

func (r *PGRepository) Insert(ctx context.Context, acc Account) (Account, error) {
	query, args, err := psql.Insert("accounts").
		Columns("company_id", "code", "name", "class", "normal_side", "is_posting", "parent_id", "status").
		Values(acc.CompanyID, acc.Code, acc.Name, acc.Class, acc.NormalSide, acc.IsPosting, acc.ParentID, acc.Status).
		Suffix("RETURNING " + strings.Join(accountColumns, ", ")).
		ToSql()
	if err != nil {
		return Account{}, err
	}
	var out Account
	if err := pgxscan.Get(ctx, r.conn.Querier(ctx), &out, query, args...); err != nil {
		return Account{}, shared.Storage("accounting: insert account", err)
	}
	return out, nil
}

func (r *PGRepository) Update(ctx context.Context, acc Account) (Account, error) {
	query, args, err := psql.Update("accounts").
		SetMap(map[string]any{
			"code":        acc.Code,
			"name":        acc.Name,
			"normal_side": acc.NormalSide,
			"is_posting":  acc.IsPosting,
			"parent_id":   acc.ParentID,
			"status":      acc.Status,
			"updated_at":  sq.Expr("NOW()"),
		}).
		Where(sq.Eq{"company_id": acc.CompanyID, "id": acc.ID}).
		Suffix("RETURNING " + strings.Join(accountColumns, ", ")).
		ToSql()
	if err != nil {
		return Account{}, err
	}
	var out Account
	if err := pgxscan.Get(ctx, r.conn.Querier(ctx), &out, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return Account{}, shared.NotFound("account", acc.ID)
		}
		return Account{}, shared.Storage("accounting: update account", err)
	}
	return out, nil
}

func (r *PGRepository) Delete(ctx context.Context, companyID, id int64) error {
	tag, err := r.conn.Querier(ctx).Exec(ctx, `DELETE FROM accounts WHERE company_id = $1 AND id = $2`, companyID, id)
	if err != nil {
		return shared.Storage("accounting: delete account", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("account", id)
	}
	return nil
}

func (r *PGRepository) Get(ctx context.Context, companyID, id int64) (Account, error) {
	return r.getOne(ctx, sq.Eq{"company_id": companyID, "id": id}, id)
}

func (r *PGRepository) GetByCode(ctx context.Context, companyID int64, code string) (Account, error) {
	return r.getOne(ctx, sq.Eq{"company_id": companyID, "code": code}, code)
}

func (r *PGRepository) getOne(ctx context.Context, where sq.Eq, ref any) (Account, error) {
	query, args, err := psql.Select(accountColumns...).From("accounts").Where(where).ToSql()
	if err != nil {
		return Account{}, err
	}
	var out Account
	if err := pgxscan.Get(ctx, r.conn.Querier(ctx), &out, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return Account{}, shared.NotFound("account", ref)
		}
		return Account{}, shared.Storage("accounting: load account", err)
	}
	return out, nil
}

func (r *PGRepository) List(ctx context.Context, companyID int64) ([]Account, error) {
	return r.list(ctx, sq.Eq{"company_id": companyID})
}

func (r *PGRepository) ListByIDs(ctx context.Context, companyID int64, ids []int64) ([]Account, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return r.list(ctx, sq.Eq{"company_id": companyID, "id": ids})
}

func (r *PGRepository) list(ctx context.Context, where sq.Eq) ([]Account, error) {
	query, args, err := psql.Select(accountColumns...).From("accounts").Where(where).OrderBy("code").ToSql()
	if err != nil {
		return nil, err
	}
	var out []Account
	if err := pgxscan.Select(ctx, r.conn.Querier(ctx), &out, query, args...); err != nil {
		return nil, shared.Storage("accounting: list accounts", err)
	}
	return out, nil
}

func (r *PGRepository) HasChildren(ctx context.Context, companyID, id int64) (bool, error) {
	var exists bool
	err := r.conn.Querier(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM accounts WHERE company_id = $1 AND parent_id = $2)`, companyID, id).Scan(&exists)
	if err != nil {
		return false, shared.Storage("accounting: check children", err)
	}
	return exists, nil
}

func (r *PGRepository) HasPostings(ctx context.Context, companyID, id int64) (bool, error) {
	var exists bool
	err := r.conn.Querier(ctx).QueryRow(ctx, `SELECT
	EXISTS (SELECT 1 FROM journal_lines l JOIN journal_entries e ON e.id = l.entry_id WHERE e.company_id = $1 AND l.account_id = $2)
	OR EXISTS (SELECT 1 FROM opening_balances WHERE company_id = $1 AND account_id = $2)`, companyID, id).Scan(&exists)
	if err != nil {
		return false, shared.Storage("accounting: check postings", err)
	}
	return exists, nil
}
