package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/cs2-inspect-gateway/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/cs2-inspect-gateway/internal/domain"
)

func sampleRecord() domain.AssetRecord {
	seed := int32(661)
	wear := 0.0712
	return domain.AssetRecord{
		UniqueID:  "deadbeef",
		AssetID:   38350177313,
		Owner:     76561198084749846,
		DefIndex:  7,
		PaintSeed: &seed,
		PaintWear: &wear,
		Stickers:  []domain.Sticker{{Slot: 0, StickerID: 5032}},
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
}

func TestAssetRepo_UpsertWritesAllColumns(t *testing.T) {
	pool := &poolStub{}
	repo := postgres.NewAssetRepo(pool)

	require.NoError(t, repo.Upsert(context.Background(), sampleRecord()))
	assert.Contains(t, pool.lastSQL, "ON CONFLICT (unique_id) DO UPDATE")
	assert.Len(t, pool.lastArgs, 17)
	assert.Equal(t, "deadbeef", pool.lastArgs[0])
	assert.Equal(t, int64(38350177313), pool.lastArgs[1])
}

func TestAssetRepo_UpsertWrapsError(t *testing.T) {
	pool := &poolStub{execErr: errors.New("boom")}
	repo := postgres.NewAssetRepo(pool)

	err := repo.Upsert(context.Background(), sampleRecord())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "op=assets.upsert")
}

func TestAssetRepo_FindPriorNotFound(t *testing.T) {
	repo := postgres.NewAssetRepo(&poolStub{})
	_, err := repo.FindPrior(context.Background(), domain.PriorQuery{DefIndex: 7})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAssetRepo_FindPriorExcludesCurrentAsset(t *testing.T) {
	pool := &poolStub{}
	repo := postgres.NewAssetRepo(pool)
	_, _ = repo.FindPrior(context.Background(), domain.PriorQuery{DefIndex: 7, ExcludeAssetID: 42})

	assert.Contains(t, pool.lastSQL, "asset_id <> $8")
	require.Len(t, pool.lastArgs, 8)
	assert.Equal(t, int64(42), pool.lastArgs[7])
}

func TestHistoryRepo_InsertIsIdempotent(t *testing.T) {
	pool := &poolStub{}
	repo := postgres.NewHistoryRepo(pool)

	rec := domain.HistoryRecord{
		UniqueID: "deadbeef",
		AssetID:  1001,
		Owner:    76561198084749846,
		Type:     domain.HistoryTrade,
	}
	require.NoError(t, repo.Insert(context.Background(), rec))
	assert.Contains(t, pool.lastSQL, "ON CONFLICT (unique_id, asset_id) DO NOTHING")
	assert.Equal(t, string(domain.HistoryTrade), pool.lastArgs[5])
}

func TestHistoryRepo_Exists(t *testing.T) {
	pool := &poolStub{scan: func(dest ...any) error {
		*(dest[0].(*bool)) = true
		return nil
	}}
	repo := postgres.NewHistoryRepo(pool)

	found, err := repo.Exists(context.Background(), "deadbeef", 1001)
	require.NoError(t, err)
	assert.True(t, found)
}
