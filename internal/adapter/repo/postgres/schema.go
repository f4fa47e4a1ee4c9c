package postgres

import (
	"context"
	"fmt"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS assets (
		unique_id   TEXT PRIMARY KEY,
		asset_id    BIGINT NOT NULL,
		owner_id    BIGINT NOT NULL DEFAULT 0,
		market_id   BIGINT NOT NULL DEFAULT 0,
		def_index   INT NOT NULL,
		paint_index INT,
		paint_seed  INT,
		paint_wear  DOUBLE PRECISION,
		rarity      INT,
		quality     INT,
		origin      INT,
		quest_id    INT,
		custom_name TEXT NOT NULL DEFAULT '',
		stickers    JSONB NOT NULL DEFAULT '[]',
		keychains   JSONB NOT NULL DEFAULT '[]',
		created_at  TIMESTAMPTZ NOT NULL,
		updated_at  TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_assets_fingerprint
		ON assets (def_index, paint_index, paint_seed)`,
	`CREATE INDEX IF NOT EXISTS idx_assets_asset_id ON assets (asset_id)`,
	`CREATE TABLE IF NOT EXISTS asset_history (
		id            BIGSERIAL PRIMARY KEY,
		unique_id     TEXT NOT NULL,
		asset_id      BIGINT NOT NULL,
		prev_asset_id BIGINT NOT NULL DEFAULT 0,
		owner_id      BIGINT NOT NULL DEFAULT 0,
		prev_owner_id BIGINT NOT NULL DEFAULT 0,
		type          TEXT NOT NULL,
		stickers      JSONB NOT NULL DEFAULT '[]',
		prev_stickers JSONB NOT NULL DEFAULT '[]',
		created_at    TIMESTAMPTZ NOT NULL,
		UNIQUE (unique_id, asset_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_history_unique_id ON asset_history (unique_id)`,
}

// Migrate applies the schema idempotently at startup.
func Migrate(ctx context.Context, pool PgxPool) error {
	for i, stmt := range migrations {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("op=postgres.migrate step=%d: %w", i, err)
		}
	}
	return nil
}
