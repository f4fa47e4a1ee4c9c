package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/cs2-inspect-gateway/internal/domain"
)

// HistoryRepo appends classified item events. Rows are immutable once
// written; the unique constraint makes re-inserts a no-op.
type HistoryRepo struct{ Pool PgxPool }

// NewHistoryRepo constructs a HistoryRepo with the given pool.
func NewHistoryRepo(p PgxPool) *HistoryRepo { return &HistoryRepo{Pool: p} }

// Insert appends rec; a duplicate (unique_id, asset_id) is silently
// skipped.
func (r *HistoryRepo) Insert(ctx context.Context, rec domain.HistoryRecord) error {
	tracer := otel.Tracer("repo.history")
	ctx, span := tracer.Start(ctx, "history.Insert")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.sql.table", "asset_history"),
	)

	stickers, err := json.Marshal(orEmpty(rec.Stickers))
	if err != nil {
		return fmt.Errorf("op=history.insert: %w", err)
	}
	prevStickers, err := json.Marshal(orEmpty(rec.PrevStickers))
	if err != nil {
		return fmt.Errorf("op=history.insert: %w", err)
	}

	q := `INSERT INTO asset_history
		(unique_id, asset_id, prev_asset_id, owner_id, prev_owner_id, type, stickers, prev_stickers, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (unique_id, asset_id) DO NOTHING`
	_, err = r.Pool.Exec(ctx, q,
		rec.UniqueID, int64(rec.AssetID), int64(rec.PrevAssetID),
		int64(rec.Owner), int64(rec.PrevOwner), string(rec.Type),
		stickers, prevStickers, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("op=history.insert: %w", err)
	}
	return nil
}

// Exists reports whether a history row was already written for the pair.
func (r *HistoryRepo) Exists(ctx context.Context, uniqueID string, assetID uint64) (bool, error) {
	tracer := otel.Tracer("repo.history")
	ctx, span := tracer.Start(ctx, "history.Exists")
	defer span.End()

	q := `SELECT EXISTS(SELECT 1 FROM asset_history WHERE unique_id=$1 AND asset_id=$2)`
	var found bool
	if err := r.Pool.QueryRow(ctx, q, uniqueID, int64(assetID)).Scan(&found); err != nil {
		return false, fmt.Errorf("op=history.exists: %w", err)
	}
	return found, nil
}
