package balances

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

const bumpChannel = "ledger.balances.bump"

// Cache stores derived balances in Redis under a per-company version. Bumping
// the version orphans older payloads, which then expire through the TTL.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper. A nil client disables caching.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// Version returns the company's current cache version, initialising when missing.
func (c *Cache) Version(ctx context.Context, companyID uuid.UUID) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	key := shared.BalanceCacheVersionKey(companyID.String())
	ver, err := c.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		// SETNX so concurrent initialisers agree on the first version.
		if err := c.client.SetNX(ctx, key, 1, 0).Err(); err != nil {
			return 0, err
		}
		return c.client.Get(ctx, key).Int64()
	}
	return ver, err
}

func (c *Cache) key(ctx context.Context, companyID uuid.UUID) (string, error) {
	ver, err := c.Version(ctx, companyID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("ledger:company:%s:balances:%d", companyID, ver), nil
}

// Fetch loads cached balances or populates them using the loader.
func (c *Cache) Fetch(ctx context.Context, companyID uuid.UUID, loader func(context.Context) ([]Balance, error)) ([]Balance, error) {
	if c == nil || c.client == nil {
		return loader(ctx)
	}
	key, err := c.key(ctx, companyID)
	if err != nil {
		return nil, err
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var out []Balance
		if err := json.Unmarshal(payload, &out); err == nil {
			return out, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		return nil, err
	}
	value, err := loader(ctx)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return nil, err
	}
	return value, nil
}

// Invalidate bumps the company's version and announces the new one.
func (c *Cache) Invalidate(ctx context.Context, companyID uuid.UUID) error {
	if c == nil || c.client == nil {
		return nil
	}
	ver, err := c.client.Incr(ctx, shared.BalanceCacheVersionKey(companyID.String())).Result()
	if err != nil {
		return err
	}
	return c.client.Publish(ctx, bumpChannel, companyID.String()+":"+strconv.FormatInt(ver, 10)).Err()
}
