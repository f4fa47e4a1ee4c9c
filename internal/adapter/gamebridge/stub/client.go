// Package stub is a fast, deterministic game transport for local runs
// and tests. Item attributes derive from the asset id, so repeated
// inspects of the same asset agree.
package stub

import (
	"context"
	"hash/fnv"
	"time"

	"github.com/fairyhunter13/cs2-inspect-gateway/internal/domain"
)

// Client implements domain.GameClient without any network access.
type Client struct {
	cred    domain.Credential
	latency time.Duration
}

// NewFactory returns a factory producing stub clients with the given
// simulated round-trip latency.
func NewFactory(latency time.Duration) domain.GameClientFactory {
	return func(cred domain.Credential) domain.GameClient {
		return &Client{cred: cred, latency: latency}
	}
}

// Login always succeeds after the configured latency.
func (c *Client) Login(ctx context.Context) error {
	return c.sleep(ctx)
}

// Inspect fabricates a stable item record from the asset id.
func (c *Client) Inspect(ctx context.Context, owner, assetID, _ uint64) (domain.ItemInfo, error) {
	if err := c.sleep(ctx); err != nil {
		return domain.ItemInfo{}, &domain.TransportError{Kind: domain.TransportTimeout, Msg: err.Error()}
	}
	h := fnv.New64a()
	var buf [8]byte
	for i := range buf {
		buf[i] = byte(assetID >> (8 * i))
	}
	_, _ = h.Write(buf[:])
	sum := h.Sum64()

	paintSeed := int32(sum % 1000)
	paintIndex := int32((sum >> 10) % 600)
	wear := float64(sum%10_000) / 10_000
	origin := int32((sum >> 20) % 10)
	rarity := int32((sum >> 24) % 8)
	quality := int32(4)

	return domain.ItemInfo{
		AssetID:    assetID,
		DefIndex:   int32((sum >> 32) % 64),
		Owner:      owner,
		PaintIndex: &paintIndex,
		PaintSeed:  &paintSeed,
		PaintWear:  &wear,
		Origin:     &origin,
		Rarity:     &rarity,
		Quality:    &quality,
		Stickers:   []domain.Sticker{},
		Keychains:  []domain.Keychain{},
	}, nil
}

// Close is a no-op.
func (c *Client) Close() error { return nil }

func (c *Client) sleep(ctx context.Context) error {
	if c.latency <= 0 {
		return nil
	}
	select {
	case <-time.After(c.latency):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
