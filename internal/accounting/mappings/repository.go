package mappings

import (
	"context"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"github.com/odyssey-erp/ledgercore/internal/platform/db"
	"github.com/odyssey-erp/ledgercore/internal/shared"
)

// Repository stores the system account mapping of each company.
type Repository interface {
	Get(ctx context.Context, companyID int64, module, key string) (AccountMapping, error)
	Upsert(ctx context.Context, m AccountMapping) (AccountMapping, error)
	List(ctx context.Context, companyID int64, module string) ([]AccountMapping, error)
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var mappingColumns = []string{"company_id", "module", "key", "account_id", "created_at", "updated_at"}

type repository struct {
	conn db.Conn
}

// NewRepository builds the PostgreSQL mapping repository.
func NewRepository(conn db.Conn) Repository {
	return &repository{conn: conn}
}

// Get resolves an account mapping for the specified key.
func (r *repository) Get(ctx context.Context, companyID int64, module, key string) (AccountMapping, error) {
	if module == "" || key == "" {
		return AccountMapping{}, shared.Validation("accounting: module and key required")
	}
	query, args, err := psql.Select(mappingColumns...).From("account_mappings").
		Where(sq.Eq{"company_id": companyID, "module": normalize(module), "key": key}).ToSql()
	if err != nil {
		return AccountMapping{}, err
	}
	var mapping AccountMapping
	if err := pgxscan.Get(ctx, r.conn.Querier(ctx), &mapping, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return AccountMapping{}, Missing(module, key)
		}
		return AccountMapping{}, shared.Storage("accounting: load account mapping", err)
	}
	return mapping, nil
}

func (r *repository) Upsert(ctx context.Context, m AccountMapping) (AccountMapping, error) {
	var out AccountMapping
	err := pgxscan.Get(ctx, r.conn.Querier(ctx), &out, `INSERT INTO account_mappings (company_id, module, key, account_id)
VALUES ($1, $2, $3, $4)
ON CONFLICT (company_id, module, key) DO UPDATE SET account_id = EXCLUDED.account_id, updated_at = NOW()
RETURNING `+strings.Join(mappingColumns, ", "), m.CompanyID, normalize(m.Module), m.Key, m.AccountID)
	if err != nil {
		return AccountMapping{}, shared.Storage("accounting: upsert account mapping", err)
	}
	return out, nil
}

func (r *repository) List(ctx context.Context, companyID int64, module string) ([]AccountMapping, error) {
	query, args, err := psql.Select(mappingColumns...).From("account_mappings").
		Where(sq.Eq{"company_id": companyID, "module": normalize(module)}).OrderBy("key").ToSql()
	if err != nil {
		return nil, err
	}
	var out []AccountMapping
	if err := pgxscan.Select(ctx, r.conn.Querier(ctx), &out, query, args...); err != nil {
		return nil, shared.Storage("accounting: list account mappings", err)
	}
	return out, nil
}

// Missing reports an unconfigured mapping. Posting cannot proceed without it.
func Missing(module, key string) *shared.Error {
	return shared.Validation("accounting: system account mapping %s/%s is not configured", normalize(module), key)
}

func normalize(module string) string {
	return strings.ToLower(strings.TrimSpace(module))
}
