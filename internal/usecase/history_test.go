package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fairyhunter13/cs2-inspect-gateway/internal/domain"
)

func i32(v int32) *int32    { return &v }
func f64(v float64) *float64 { return &v }

func paintedInfo(owner uint64) *domain.ItemInfo {
	return &domain.ItemInfo{
		AssetID:    1001,
		DefIndex:   7,
		Owner:      owner,
		PaintIndex: i32(44),
		PaintSeed:  i32(661),
		PaintWear:  f64(0.0712),
	}
}

func priorRecord(owner uint64) *domain.AssetRecord {
	return &domain.AssetRecord{
		UniqueID: "abcd1234",
		AssetID:  900,
		Owner:    owner,
		DefIndex: 7,
	}
}

func TestClassifyHistory_FirstSightingOrigins(t *testing.T) {
	cases := []struct {
		origin *int32
		want   domain.HistoryType
	}{
		{i32(8), domain.HistoryTradedUp},
		{i32(4), domain.HistoryDropped},
		{i32(1), domain.HistoryPurchasedInGame},
		{i32(2), domain.HistoryUnboxed},
		{i32(3), domain.HistoryCrafted},
		{i32(99), domain.HistoryUnknown},
		{nil, domain.HistoryUnknown},
	}
	for _, tc := range cases {
		info := paintedInfo(76561198084749846)
		info.Origin = tc.origin
		assert.Equal(t, tc.want, ClassifyHistory(info, nil))
	}
}

func TestClassifyHistory_OwnerChanges(t *testing.T) {
	const userA = 76561198084749846
	const userB = 76561198012345678
	const marketProxy = 625254122282020305

	// user -> user
	assert.Equal(t, domain.HistoryTrade, ClassifyHistory(paintedInfo(userB), priorRecord(userA)))
	// market proxy -> user
	assert.Equal(t, domain.HistoryMarketBuy, ClassifyHistory(paintedInfo(userA), priorRecord(marketProxy)))
	// user -> market proxy
	info := paintedInfo(0)
	info.MarketID = marketProxy
	assert.Equal(t, domain.HistoryMarketListing, ClassifyHistory(info, priorRecord(userA)))
	// market proxy -> market proxy: nothing to record
	prior := priorRecord(0)
	prior.MarketID = 625254122282020999
	assert.Empty(t, ClassifyHistory(info, prior))
}

func TestClassifyHistory_StickerDiffs(t *testing.T) {
	const owner = 76561198084749846
	sticker := func(slot, id int, wear float64) domain.Sticker {
		return domain.Sticker{Slot: slot, StickerID: id, Wear: f64(wear)}
	}

	info := paintedInfo(owner)
	prior := priorRecord(owner)

	info.Stickers = []domain.Sticker{sticker(0, 5032, 0)}
	prior.Stickers = nil
	assert.Equal(t, domain.HistoryStickerApply, ClassifyHistory(info, prior))

	info.Stickers = nil
	prior.Stickers = []domain.Sticker{sticker(0, 5032, 0)}
	assert.Equal(t, domain.HistoryStickerRemove, ClassifyHistory(info, prior))

	info.Stickers = []domain.Sticker{sticker(0, 6001, 0)}
	prior.Stickers = []domain.Sticker{sticker(0, 5032, 0)}
	assert.Equal(t, domain.HistoryStickerChange, ClassifyHistory(info, prior))

	// Same sticker, wear strictly increased: scraped, not changed.
	info.Stickers = []domain.Sticker{sticker(0, 5032, 0.45)}
	prior.Stickers = []domain.Sticker{sticker(0, 5032, 0.10)}
	assert.Equal(t, domain.HistoryStickerScrape, ClassifyHistory(info, prior))

	// Identical arrays: no event.
	info.Stickers = []domain.Sticker{sticker(0, 5032, 0.10)}
	prior.Stickers = []domain.Sticker{sticker(0, 5032, 0.10)}
	assert.Empty(t, ClassifyHistory(info, prior))
}

func TestClassifyHistory_KeychainDiffs(t *testing.T) {
	const owner = 76561198084749846
	charm := func(id int) domain.Keychain { return domain.Keychain{Slot: 0, KeychainID: id} }

	info := paintedInfo(owner)
	prior := priorRecord(owner)

	info.Keychains = []domain.Keychain{charm(17)}
	assert.Equal(t, domain.HistoryKeychainAdded, ClassifyHistory(info, prior))

	info.Keychains = nil
	prior.Keychains = []domain.Keychain{charm(17)}
	assert.Equal(t, domain.HistoryKeychainRemoved, ClassifyHistory(info, prior))

	info.Keychains = []domain.Keychain{charm(18)}
	assert.Equal(t, domain.HistoryKeychainChanged, ClassifyHistory(info, prior))
}

func TestClassifyHistory_StickerDiffBeatsKeychainDiff(t *testing.T) {
	const owner = 76561198084749846
	info := paintedInfo(owner)
	prior := priorRecord(owner)
	info.Stickers = []domain.Sticker{{Slot: 0, StickerID: 5032}}
	info.Keychains = []domain.Keychain{{Slot: 0, KeychainID: 17}}
	assert.Equal(t, domain.HistoryStickerApply, ClassifyHistory(info, prior))
}
