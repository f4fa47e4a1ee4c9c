package app

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fairyhunter13/cs2-inspect-gateway/internal/adapter/cache/rediscache"
)

// DBCheck returns a readiness probe over the pgx pool.
func DBCheck(pool *pgxpool.Pool) func(ctx context.Context) error {
	return func(ctx context.Context) error { return pool.Ping(ctx) }
}

// RedisCheck returns a readiness probe over the item cache connection.
func RedisCheck(c *rediscache.Cache) func(ctx context.Context) error {
	return func(ctx context.Context) error { return c.Ping(ctx) }
}
