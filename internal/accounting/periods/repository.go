package periods

import (
	"context"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"github.com/odyssey-erp/ledgercore/internal/platform/db"
	"github.com/odyssey-erp/ledgercore/internal/shared"
)

// Repository persists fiscal periods and their opening balances.
type Repository interface {
	Insert(ctx context.Context, p Period) (Period, error)
	Get(ctx context.Context, companyID, id int64) (Period, error)
	// GetForUpdate takes an exclusive row lock held until commit.
	GetForUpdate(ctx context.Context, companyID, id int64) (Period, error)
	FindByDate(ctx context.Context, companyID int64, date time.Time) (Period, error)
	// FindByDateForShare takes a shared row lock so concurrent postings do not
	// block each other but a close does.
	FindByDateForShare(ctx context.Context, companyID int64, date time.Time) (Period, error)
	Overlapping(ctx context.Context, companyID int64, start, end time.Time) ([]Period, error)
	List(ctx context.Context, companyID int64) ([]Period, error)
	MarkClosed(ctx context.Context, p Period) error
	UpsertOpening(ctx context.Context, ob OpeningBalance) (OpeningBalance, error)
	ListOpenings(ctx context.Context, companyID, periodID int64) ([]OpeningBalance, error)
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var periodColumns = []string{"id", "company_id", "year", "month", "start_date", "end_date", "status", "closed_at", "closed_by", "created_at", "updated_at"}

// PGRepository implements Repository on PostgreSQL.
type PGRepository struct {
	conn db.Conn
}

// NewRepository constructs the PostgreSQL repository.
func NewRepository(conn db.Conn) *PGRepository {
	return &PGRepository{conn: conn}
}

func (r *PGRepository) Insert(ctx context.Context, p Period) (Period, error) {
	query, args, err := psql.Insert("fiscal_periods").
		Columns("company_id", "year", "month", "start_date", "end_date", "status").
		Values(p.CompanyID, p.Year, p.Month, p.StartDate, p.EndDate, p.Status).
		Suffix("RETURNING " + strings.Join(periodColumns, ", ")).
		ToSql()
	if err != nil {
		return Period{}, err
	}
	var out Period
	if err := pgxscan.Get(ctx, r.conn.Querier(ctx), &out, query, args...); err != nil {
		return Period{}, shared.Storage("accounting: insert period", err)
	}
	return out, nil
}

func (r *PGRepository) Get(ctx context.Context, companyID, id int64) (Period, error) {
	return r.getOne(ctx, psql.Select(periodColumns...).From("fiscal_periods").
		Where(sq.Eq{"company_id": companyID, "id": id}), "", id)
}

func (r *PGRepository) GetForUpdate(ctx context.Context, companyID, id int64) (Period, error) {
	return r.getOne(ctx, psql.Select(periodColumns...).From("fiscal_periods").
		Where(sq.Eq{"company_id": companyID, "id": id}), "FOR UPDATE", id)
}

func (r *PGRepository) FindByDate(ctx context.Context, companyID int64, date time.Time) (Period, error) {
	return r.getOne(ctx, byDate(companyID, date), "", date.Format(time.DateOnly))
}

func (r *PGRepository) FindByDateForShare(ctx context.Context, companyID int64, date time.Time) (Period, error) {
	return r.getOne(ctx, byDate(companyID, date), "FOR SHARE", date.Format(time.DateOnly))
}

func byDate(companyID int64, date time.Time) sq.SelectBuilder {
	d := shared.DateOnly(date)
	return psql.Select(periodColumns...).From("fiscal_periods").
		Where(sq.Eq{"company_id": companyID}).
		Where(sq.LtOrEq{"start_date": d}).
		Where(sq.GtOrEq{"end_date": d}).
		OrderBy("start_date").
		Limit(1)
}

func (r *PGRepository) getOne(ctx context.Context, b sq.SelectBuilder, lock string, ref any) (Period, error) {
	if lock != "" {
		b = b.Suffix(lock)
	}
	query, args, err := b.ToSql()
	if err != nil {
		return Period{}, err
	}
	var out Period
	if err := pgxscan.Get(ctx, r.conn.Querier(ctx), &out, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return Period{}, shared.NotFound("fiscal period", ref)
		}
		return Period{}, shared.Storage("accounting: load period", err)
	}
	return out, nil
}

func (r *PGRepository) Overlapping(ctx context.Context, companyID int64, start, end time.Time) ([]Period, error) {
	query, args, err := psql.Select(periodColumns...).From("fiscal_periods").
		Where(sq.Eq{"company_id": companyID}).
		Where(sq.LtOrEq{"start_date": shared.DateOnly(end)}).
		Where(sq.GtOrEq{"end_date": shared.DateOnly(start)}).
		ToSql()
	if err != nil {
		return nil, err
	}
	var out []Period
	if err := pgxscan.Select(ctx, r.conn.Querier(ctx), &out, query, args...); err != nil {
		return nil, shared.Storage("accounting: overlapping periods", err)
	}
	return out, nil
}

func (r *PGRepository) List(ctx context.Context, companyID int64) ([]Period, error) {
	query, args, err := psql.Select(periodColumns...).From("fiscal_periods").
		Where(sq.Eq{"company_id": companyID}).OrderBy("start_date").ToSql()
	if err != nil {
		return nil, err
	}
	var out []Period
	if err := pgxscan.Select(ctx, r.conn.Querier(ctx), &out, query, args...); err != nil {
		return nil, shared.Storage("accounting: list periods", err)
	}
	return out, nil
}

func (r *PGRepository) MarkClosed(ctx context.Context, p Period) error {
	tag, err := r.conn.Querier(ctx).Exec(ctx, `UPDATE fiscal_periods
SET status = $3, closed_at = $4, closed_by = $5, updated_at = NOW()
WHERE company_id = $1 AND id = $2`, p.CompanyID, p.ID, p.Status, p.ClosedAt, p.ClosedBy)
	if err != nil {
		return shared.Storage("accounting: close period", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("fiscal period", p.ID)
	}
	return nil
}

func (r *PGRepository) UpsertOpening(ctx context.Context, ob OpeningBalance) (OpeningBalance, error) {
	var out OpeningBalance
	err := pgxscan.Get(ctx, r.conn.Querier(ctx), &out, `INSERT INTO opening_balances (company_id, period_id, account_id, debit, credit, updated_at)
VALUES ($1, $2, $3, $4, $5, NOW())
ON CONFLICT (company_id, period_id, account_id)
DO UPDATE SET debit = EXCLUDED.debit, credit = EXCLUDED.credit, updated_at = NOW()
RETURNING company_id, period_id, account_id, debit, credit, updated_at`,
		ob.CompanyID, ob.PeriodID, ob.AccountID, ob.Debit, ob.Credit)
	if err != nil {
		return OpeningBalance{}, shared.Storage("accounting: upsert opening balance", err)
	}
	return out, nil
}

func (r *PGRepository) ListOpenings(ctx context.Context, companyID, periodID int64) ([]OpeningBalance, error) {
	query, args, err := psql.Select("company_id", "period_id", "account_id", "debit", "credit", "updated_at").
		From("opening_balances").
		Where(sq.Eq{"company_id": companyID, "period_id": periodID}).
		OrderBy("account_id").
		ToSql()
	if err != nil {
		return nil, err
	}
	var out []OpeningBalance
	if err := pgxscan.Select(ctx, r.conn.Querier(ctx), &out, query, args...); err != nil {
		return nil, shared.Storage("accounting: list opening balances", err)
	}
	return out, nil
}
