package rediscache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/cs2-inspect-gateway/internal/domain"
)

func newTestCache(t *testing.T, ttl time.Duration) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewWithClient(rdb, ttl), mr
}

func TestCache_SetGetRoundTrip(t *testing.T) {
	c, _ := newTestCache(t, time.Hour)
	wear := 0.0712
	info := domain.ItemInfo{AssetID: 1001, DefIndex: 7, PaintWear: &wear}

	require.NoError(t, c.Set(context.Background(), 1001, info))
	got, err := c.Get(context.Background(), 1001)
	require.NoError(t, err)
	assert.Equal(t, info.AssetID, got.AssetID)
	require.NotNil(t, got.PaintWear)
	assert.Equal(t, wear, *got.PaintWear)
}

func TestCache_MissIsNotFound(t *testing.T) {
	c, _ := newTestCache(t, time.Hour)
	_, err := c.Get(context.Background(), 404)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCache_EntryExpires(t *testing.T) {
	c, mr := newTestCache(t, 50*time.Millisecond)
	require.NoError(t, c.Set(context.Background(), 1, domain.ItemInfo{AssetID: 1}))

	mr.FastForward(100 * time.Millisecond)
	_, err := c.Get(context.Background(), 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCache_CorruptEntryIsMiss(t *testing.T) {
	c, mr := newTestCache(t, time.Hour)
	require.NoError(t, mr.Set("inspect:item:9", "{not json"))
	_, err := c.Get(context.Background(), 9)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
