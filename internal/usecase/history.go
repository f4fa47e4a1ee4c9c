package usecase

import (
	"strconv"
	"strings"

	"github.com/fairyhunter13/cs2-inspect-gateway/internal/domain"
)

// steamIDPrefix distinguishes a real account id from a market proxy id.
const steamIDPrefix = "7656"

// ClassifyHistory infers what happened to an item between its previous
// sighting and the fresh result. prior is nil on first sighting. An
// empty return means no event worth recording.
func ClassifyHistory(info *domain.ItemInfo, prior *domain.AssetRecord) domain.HistoryType {
	if prior == nil {
		return originHistory(info.Origin)
	}

	prevOwner := recordOwner(prior)
	newOwner := infoOwner(info)
	if prevOwner != newOwner {
		switch {
		case isSteamID(newOwner):
			if isSteamID(prevOwner) {
				return domain.HistoryTrade
			}
			return domain.HistoryMarketBuy
		case isSteamID(prevOwner):
			return domain.HistoryMarketListing
		default:
			// Listing moved between market proxies; nothing to record.
			return ""
		}
	}

	if t := diffStickers(info.Stickers, prior.Stickers); t != "" {
		return t
	}
	return diffKeychains(info.Keychains, prior.Keychains)
}

func originHistory(origin *int32) domain.HistoryType {
	if origin == nil {
		return domain.HistoryUnknown
	}
	switch *origin {
	case 8:
		return domain.HistoryTradedUp
	case 4:
		return domain.HistoryDropped
	case 1:
		return domain.HistoryPurchasedInGame
	case 2:
		return domain.HistoryUnboxed
	case 3:
		return domain.HistoryCrafted
	default:
		return domain.HistoryUnknown
	}
}

func infoOwner(info *domain.ItemInfo) uint64 {
	if info.Owner != 0 {
		return info.Owner
	}
	return info.MarketID
}

func recordOwner(rec *domain.AssetRecord) uint64 {
	if rec.Owner != 0 {
		return rec.Owner
	}
	return rec.MarketID
}

func isSteamID(id uint64) bool {
	return strings.HasPrefix(strconv.FormatUint(id, 10), steamIDPrefix)
}

// stickerKey is the identity tuple for sticker comparison. Wear is
// deliberately excluded so a scrape does not read as a swap.
type stickerKey struct {
	slot      int
	stickerID int
	offsetX   float64
	offsetY   float64
	offsetZ   float64
	rotation  float64
}

func keyOf(s domain.Sticker) stickerKey {
	return stickerKey{
		slot:      s.Slot,
		stickerID: s.StickerID,
		offsetX:   deref(s.OffsetX),
		offsetY:   deref(s.OffsetY),
		offsetZ:   deref(s.OffsetZ),
		rotation:  deref(s.Rotation),
	}
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func diffStickers(cur, prev []domain.Sticker) domain.HistoryType {
	switch {
	case len(cur) > len(prev):
		return domain.HistoryStickerApply
	case len(cur) < len(prev):
		return domain.HistoryStickerRemove
	}

	changed := false
	prevByKey := make(map[stickerKey]domain.Sticker, len(prev))
	for _, s := range prev {
		prevByKey[keyOf(s)] = s
	}
	for _, s := range cur {
		p, ok := prevByKey[keyOf(s)]
		if !ok {
			changed = true
			continue
		}
		if s.Wear != nil && p.Wear != nil && *s.Wear > *p.Wear {
			return domain.HistoryStickerScrape
		}
		if !equalWear(s.Wear, p.Wear) {
			changed = true
		}
	}
	if changed {
		return domain.HistoryStickerChange
	}
	return ""
}

func equalWear(a, b *float64) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return a == nil || *a == *b
}

func diffKeychains(cur, prev []domain.Keychain) domain.HistoryType {
	switch {
	case len(prev) == 0 && len(cur) > 0:
		return domain.HistoryKeychainAdded
	case len(prev) > 0 && len(cur) == 0:
		return domain.HistoryKeychainRemoved
	}
	if len(cur) != len(prev) {
		return domain.HistoryKeychainChanged
	}
	for i := range cur {
		if !keychainEqual(cur[i], prev[i]) {
			return domain.HistoryKeychainChanged
		}
	}
	return ""
}

func keychainEqual(a, b domain.Keychain) bool {
	return a.Slot == b.Slot &&
		a.KeychainID == b.KeychainID &&
		derefInt(a.Pattern) == derefInt(b.Pattern) &&
		deref(a.OffsetX) == deref(b.OffsetX) &&
		deref(a.OffsetY) == deref(b.OffsetY) &&
		deref(a.OffsetZ) == deref(b.OffsetZ)
}

func derefInt(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}
