package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/cs2-inspect-gateway/internal/domain"
)

// AssetRepo persists asset records keyed by their item fingerprint.
type AssetRepo struct{ Pool PgxPool }

// NewAssetRepo constructs an AssetRepo with the given pool.
func NewAssetRepo(p PgxPool) *AssetRepo { return &AssetRepo{Pool: p} }

// Upsert inserts or refreshes the record for rec.UniqueID.
func (r *AssetRepo) Upsert(ctx context.Context, rec domain.AssetRecord) error {
	tracer := otel.Tracer("repo.assets")
	ctx, span := tracer.Start(ctx, "assets.Upsert")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.sql.table", "assets"),
	)

	stickers, err := json.Marshal(orEmpty(rec.Stickers))
	if err != nil {
		return fmt.Errorf("op=assets.upsert: %w", err)
	}
	keychains, err := json.Marshal(orEmptyKeychains(rec.Keychains))
	if err != nil {
		return fmt.Errorf("op=assets.upsert: %w", err)
	}

	q := `INSERT INTO assets
		(unique_id, asset_id, owner_id, market_id, def_index, paint_index, paint_seed, paint_wear,
		 rarity, quality, origin, quest_id, custom_name, stickers, keychains, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		ON CONFLICT (unique_id) DO UPDATE SET
		 asset_id=EXCLUDED.asset_id, owner_id=EXCLUDED.owner_id, market_id=EXCLUDED.market_id,
		 rarity=EXCLUDED.rarity, quality=EXCLUDED.quality, origin=EXCLUDED.origin,
		 quest_id=EXCLUDED.quest_id, custom_name=EXCLUDED.custom_name,
		 stickers=EXCLUDED.stickers, keychains=EXCLUDED.keychains, updated_at=EXCLUDED.updated_at`
	_, err = r.Pool.Exec(ctx, q,
		rec.UniqueID, int64(rec.AssetID), int64(rec.Owner), int64(rec.MarketID), rec.DefIndex,
		rec.PaintIndex, rec.PaintSeed, rec.PaintWear,
		rec.Rarity, rec.Quality, rec.Origin, rec.QuestID, rec.CustomName,
		stickers, keychains, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("op=assets.upsert: %w", err)
	}
	return nil
}

// FindPrior returns the most recently updated record matching the
// fingerprint tuple in q, excluding q.ExcludeAssetID.
func (r *AssetRepo) FindPrior(ctx context.Context, pq domain.PriorQuery) (domain.AssetRecord, error) {
	tracer := otel.Tracer("repo.assets")
	ctx, span := tracer.Start(ctx, "assets.FindPrior")
	defer span.End()

	q := `SELECT unique_id, asset_id, owner_id, market_id, def_index, paint_index, paint_seed,
			paint_wear, rarity, quality, origin, quest_id, custom_name, stickers, keychains,
			created_at, updated_at
		FROM assets
		WHERE def_index=$1
		  AND paint_index IS NOT DISTINCT FROM $2
		  AND paint_seed  IS NOT DISTINCT FROM $3
		  AND paint_wear  IS NOT DISTINCT FROM $4
		  AND origin      IS NOT DISTINCT FROM $5
		  AND quest_id    IS NOT DISTINCT FROM $6
		  AND rarity      IS NOT DISTINCT FROM $7
		  AND asset_id <> $8
		ORDER BY updated_at DESC
		LIMIT 1`
	row := r.Pool.QueryRow(ctx, q,
		pq.DefIndex, pq.PaintIndex, pq.PaintSeed, pq.PaintWear,
		pq.Origin, pq.QuestID, pq.Rarity, int64(pq.ExcludeAssetID))

	var (
		rec                 domain.AssetRecord
		assetID, owner, mkt int64
		stickers, keychains []byte
	)
	err := row.Scan(&rec.UniqueID, &assetID, &owner, &mkt, &rec.DefIndex,
		&rec.PaintIndex, &rec.PaintSeed, &rec.PaintWear,
		&rec.Rarity, &rec.Quality, &rec.Origin, &rec.QuestID, &rec.CustomName,
		&stickers, &keychains, &rec.CreatedAt, &rec.UpdatedAt)
	if err == pgx.ErrNoRows {
		return domain.AssetRecord{}, fmt.Errorf("op=assets.find_prior: %w", domain.ErrNotFound)
	}
	if err != nil {
		return domain.AssetRecord{}, fmt.Errorf("op=assets.find_prior: %w", err)
	}
	rec.AssetID, rec.Owner, rec.MarketID = uint64(assetID), uint64(owner), uint64(mkt)
	if err := json.Unmarshal(stickers, &rec.Stickers); err != nil {
		return domain.AssetRecord{}, fmt.Errorf("op=assets.find_prior: %w", err)
	}
	if err := json.Unmarshal(keychains, &rec.Keychains); err != nil {
		return domain.AssetRecord{}, fmt.Errorf("op=assets.find_prior: %w", err)
	}
	return rec, nil
}

func orEmpty(s []domain.Sticker) []domain.Sticker {
	if s == nil {
		return []domain.Sticker{}
	}
	return s
}

func orEmptyKeychains(k []domain.Keychain) []domain.Keychain {
	if k == nil {
		return []domain.Keychain{}
	}
	return k
}
