// Package rediscache caches inspect results in Redis keyed by asset id.
package rediscache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/cs2-inspect-gateway/internal/domain"
)

const keyPrefix = "inspect:item:"

// Cache implements domain.ItemCache on Redis with a fixed TTL.
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

// New connects to addr and verifies the connection with a ping.
func New(ctx context.Context, addr string, ttl time.Duration) (*Cache, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("op=rediscache.New addr=%s: %w", addr, err)
	}
	return &Cache{rdb: rdb, ttl: ttl}, nil
}

// NewWithClient wraps an existing client; used by tests.
func NewWithClient(rdb *redis.Client, ttl time.Duration) *Cache {
	return &Cache{rdb: rdb, ttl: ttl}
}

// Get returns the cached result for assetID, or ErrNotFound on a miss.
func (c *Cache) Get(ctx context.Context, assetID uint64) (domain.ItemInfo, error) {
	raw, err := c.rdb.Get(ctx, key(assetID)).Bytes()
	if err == redis.Nil {
		return domain.ItemInfo{}, fmt.Errorf("op=rediscache.Get asset=%d: %w", assetID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.ItemInfo{}, fmt.Errorf("op=rediscache.Get asset=%d: %w", assetID, err)
	}
	var info domain.ItemInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		// A corrupt entry behaves like a miss so the item gets re-inspected.
		return domain.ItemInfo{}, fmt.Errorf("op=rediscache.Get asset=%d: %w", assetID, domain.ErrNotFound)
	}
	return info, nil
}

// Set stores info under the asset id for the configured TTL.
func (c *Cache) Set(ctx context.Context, assetID uint64, info domain.ItemInfo) error {
	raw, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("op=rediscache.Set asset=%d: %w", assetID, err)
	}
	if err := c.rdb.Set(ctx, key(assetID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("op=rediscache.Set asset=%d: %w", assetID, err)
	}
	return nil
}

// Ping reports store health for readiness probes.
func (c *Cache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close releases the underlying client.
func (c *Cache) Close() error { return c.rdb.Close() }

func key(assetID uint64) string {
	return keyPrefix + strconv.FormatUint(assetID, 10)
}
