package domain

import (
	"crypto/sha1" //nolint:gosec // Not used for security; uniqueId is a legacy content hash.
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// InspectDescriptor identifies one item to inspect. Exactly one of S
// (owner steam id) and M (market listing id) is non-zero.
type InspectDescriptor struct {
	S uint64 `json:"s"`
	A uint64 `json:"a"`
	D uint64 `json:"d"`
	M uint64 `json:"m"`

	Refresh     bool `json:"-"`
	Reply       bool `json:"-"`
	LowPriority bool `json:"-"`
}

// Owner returns the id the transport should address: the steam id for
// owned items, the market id for listings.
func (d InspectDescriptor) Owner() uint64 {
	if d.S != 0 {
		return d.S
	}
	return d.M
}

// Validate enforces the descriptor invariant.
func (d InspectDescriptor) Validate() error {
	if d.A == 0 || d.D == 0 {
		return fmt.Errorf("%w: a and d are required", ErrBadDescriptor)
	}
	if (d.S == 0) == (d.M == 0) {
		return fmt.Errorf("%w: exactly one of s and m must be set", ErrBadDescriptor)
	}
	return nil
}

// Sticker is one sticker slot on an item. Optional attributes are nil
// when the transport omitted them.
type Sticker struct {
	Slot      int      `json:"slot"`
	StickerID int      `json:"sticker_id"`
	Wear      *float64 `json:"wear,omitempty"`
	Scale     *float64 `json:"scale,omitempty"`
	Rotation  *float64 `json:"rotation,omitempty"`
	TintID    *int     `json:"tint_id,omitempty"`
	OffsetX   *float64 `json:"offset_x,omitempty"`
	OffsetY   *float64 `json:"offset_y,omitempty"`
	OffsetZ   *float64 `json:"offset_z,omitempty"`
	Name      string   `json:"name,omitempty"`
}

// Keychain is one charm attached to an item.
type Keychain struct {
	Slot       int      `json:"slot"`
	KeychainID int      `json:"sticker_id"`
	Pattern    *int     `json:"pattern,omitempty"`
	OffsetX    *float64 `json:"offset_x,omitempty"`
	OffsetY    *float64 `json:"offset_y,omitempty"`
	OffsetZ    *float64 `json:"offset_z,omitempty"`
	Name       string   `json:"name,omitempty"`
}

// ItemInfo is the full attribute record returned by one inspect
// round-trip. Known fields are typed; Extra carries transport fields we
// do not interpret, for forward compatibility.
type ItemInfo struct {
	AssetID    uint64 `json:"itemid,string"`
	DefIndex   int32  `json:"defindex"`
	Owner      uint64 `json:"-"`
	MarketID   uint64 `json:"-"`
	Proof      uint64 `json:"-"`
	Rarity     *int32 `json:"rarity,omitempty"`
	Quality    *int32 `json:"quality,omitempty"`
	Origin     *int32 `json:"origin,omitempty"`
	QuestID    *int32 `json:"questid,omitempty"`
	DropReason *int32 `json:"dropreason,omitempty"`

	PaintIndex *int32   `json:"paintindex,omitempty"`
	PaintSeed  *int32   `json:"paintseed,omitempty"`
	PaintWear  *float64 `json:"floatvalue,omitempty"`

	KillEaterType  *int32 `json:"killeaterscoretype,omitempty"`
	KillEaterValue *int32 `json:"killeatervalue,omitempty"`
	CustomName     string `json:"customname,omitempty"`
	MusicIndex     *int32 `json:"musicindex,omitempty"`
	EntIndex       *int32 `json:"entindex,omitempty"`

	Stickers  []Sticker  `json:"stickers"`
	Keychains []Keychain `json:"keychains"`

	Extra map[string]any `json:"-"`
}

// UniqueID derives the 8-hex-digit asset fingerprint used as the upsert
// key: SHA-1("{paintSeed}-{paintIndex}-{paintWear}-{defIndex}") with
// missing attributes normalized to 0.
func (i *ItemInfo) UniqueID() string {
	parts := []string{
		formatInt32Ptr(i.PaintSeed),
		formatInt32Ptr(i.PaintIndex),
		formatFloatPtr(i.PaintWear),
		strconv.FormatInt(int64(i.DefIndex), 10),
	}
	sum := sha1.Sum([]byte(strings.Join(parts, "-"))) //nolint:gosec
	return hex.EncodeToString(sum[:])[:8]
}

func formatInt32Ptr(v *int32) string {
	if v == nil {
		return "0"
	}
	return strconv.FormatInt(int64(*v), 10)
}

func formatFloatPtr(v *float64) string {
	if v == nil {
		return "0"
	}
	return strconv.FormatFloat(*v, 'g', -1, 64)
}

// AssetRecord is the persisted projection of one inspected asset.
// UniqueID is the upsert key; AssetID tracks the most recent asset id
// seen for that fingerprint.
type AssetRecord struct {
	UniqueID   string
	AssetID    uint64
	Owner      uint64
	MarketID   uint64
	DefIndex   int32
	PaintIndex *int32
	PaintSeed  *int32
	PaintWear  *float64
	Rarity     *int32
	Quality    *int32
	Origin     *int32
	QuestID    *int32
	CustomName string
	Stickers   []Sticker
	Keychains  []Keychain
	UpdatedAt  time.Time
	CreatedAt  time.Time
}

// HistoryType labels the event inferred between two sightings of the
// same item fingerprint.
type HistoryType string

const (
	HistoryTradedUp        HistoryType = "TRADED_UP"
	HistoryDropped         HistoryType = "DROPPED"
	HistoryPurchasedInGame HistoryType = "PURCHASED_INGAME"
	HistoryUnboxed         HistoryType = "UNBOXED"
	HistoryCrafted         HistoryType = "CRAFTED"
	HistoryUnknown         HistoryType = "UNKNOWN"
	HistoryTrade           HistoryType = "TRADE"
	HistoryMarketBuy       HistoryType = "MARKET_BUY"
	HistoryMarketListing   HistoryType = "MARKET_LISTING"
	HistoryStickerApply    HistoryType = "STICKER_APPLY"
	HistoryStickerRemove   HistoryType = "STICKER_REMOVE"
	HistoryStickerChange   HistoryType = "STICKER_CHANGE"
	HistoryStickerScrape   HistoryType = "STICKER_SCRAPE"
	HistoryKeychainAdded   HistoryType = "KEYCHAIN_ADDED"
	HistoryKeychainRemoved HistoryType = "KEYCHAIN_REMOVED"
	HistoryKeychainChanged HistoryType = "KEYCHAIN_CHANGED"
)

// HistoryRecord is one append-only history event. Uniqueness is enforced
// on (UniqueID, AssetID).
type HistoryRecord struct {
	UniqueID     string
	AssetID      uint64
	PrevAssetID  uint64
	Owner        uint64
	PrevOwner    uint64
	Type         HistoryType
	Stickers     []Sticker
	PrevStickers []Sticker
	CreatedAt    time.Time
}

// Credential is one bot account.
type Credential struct {
	Username string
	Password string
}
