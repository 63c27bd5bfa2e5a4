package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const keyPrefix = "ledgercore:balances"

// Cache memoizes ending balances in Redis under a per-company version. A
// version bump orphans every key of the company; stale keys expire by TTL.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
}

// NewCache instantiates the cache helper. A nil client disables caching.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func versionKey(companyID int64) string {
	return fmt.Sprintf("%s:%d:version", keyPrefix, companyID)
}

// Version returns the current cache version of the company. Missing is 0.
func (c *Cache) Version(ctx context.Context, companyID int64) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, versionKey(companyID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return ver, err
}

// Invalidate bumps the company version.
func (c *Cache) Invalidate(ctx context.Context, companyID int64) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, versionKey(companyID)).Err()
}

// balances loads the balances of asOf from Redis or through loader. Concurrent
// misses on the same key share one loader call.
func (c *Cache) balances(ctx context.Context, companyID int64, asOf time.Time, loader func(context.Context) ([]AccountBalance, error)) ([]AccountBalance, error) {
	if c == nil || c.client == nil {
		return loader(ctx)
	}
	ver, err := c.Version(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("ledger cache: version: %w", err)
	}
	key := fmt.Sprintf("%s:%d:v%d:%s", keyPrefix, companyID, ver, asOf.Format(time.DateOnly))

	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var out []AccountBalance
		if err := json.Unmarshal(payload, &out); err == nil {
			return out, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("ledger cache: get: %w", err)
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		value, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			return nil, fmt.Errorf("ledger cache: set: %w", err)
		}
		return value, nil
	})
	if err != nil {
		return nil, err
	}
	src := v.([]AccountBalance)
	out := make([]AccountBalance, len(src))
	copy(out, src)
	return out, nil
}
