package shared

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/odyssey-erp/ledgercore/internal/platform/db"
)

// IdempotencyGuard claims request keys inside the caller's transaction so a
// rolled back submission frees its key again.
type IdempotencyGuard interface {
	Claim(ctx context.Context, companyID int64, module, key string) error
}

// IdempotencyStore persists processed keys.
type IdempotencyStore struct {
	conn db.Conn
}

// NewIdempotencyStore constructs the store.
func NewIdempotencyStore(conn db.Conn) *IdempotencyStore {
	return &IdempotencyStore{conn: conn}
}

// Claim inserts the key or returns a conflict when it was already processed.
func (s *IdempotencyStore) Claim(ctx context.Context, companyID int64, module, key string) error {
	if s == nil {
		return errors.New("idempotency store not initialised")
	}
	if key == "" || module == "" {
		return Validation("idempotency key and module required")
	}
	_, err := s.conn.Querier(ctx).Exec(ctx, `INSERT INTO idempotency_keys (company_id, module, key, created_at) VALUES ($1, $2, $3, NOW())`, companyID, module, key)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Conflict("request %s already processed", key)
		}
		return Storage("idempotency claim", err)
	}
	return nil
}
