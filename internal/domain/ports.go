package domain

import "context"

// Repositories (ports)

// PriorQuery selects the most recent asset record sharing an item
// fingerprint tuple, excluding the asset id currently being written so
// the classifier never compares a record against itself.
type PriorQuery struct {
	PaintWear      *float64
	PaintIndex     *int32
	DefIndex       int32
	PaintSeed      *int32
	Origin         *int32
	QuestID        *int32
	Rarity         *int32
	ExcludeAssetID uint64
}

type AssetRepository interface {
	// Upsert stores rec keyed by rec.UniqueID.
	Upsert(ctx context.Context, rec AssetRecord) error
	// FindPrior returns the most recent record matching q, or
	// ErrNotFound.
	FindPrior(ctx context.Context, q PriorQuery) (AssetRecord, error)
}

type HistoryRepository interface {
	// Insert appends rec; inserting a duplicate (UniqueID, AssetID) is
	// a no-op.
	Insert(ctx context.Context, rec HistoryRecord) error
	// Exists reports whether the (uniqueID, assetID) pair was already
	// logged.
	Exists(ctx context.Context, uniqueID string, assetID uint64) (bool, error)
}

// ItemCache caches formatted inspect results by asset id. Lookup errors
// are treated as misses by callers.
type ItemCache interface {
	Get(ctx context.Context, assetID uint64) (ItemInfo, error)
	Set(ctx context.Context, assetID uint64, info ItemInfo) error
}

// GameClient is the black-box game transport for one logged-in account.
// The fleet owns all retry and backoff; implementations return
// *TransportError with a reason code on failure.
type GameClient interface {
	// Login establishes (or re-establishes) the account session.
	Login(ctx context.Context) error
	// Inspect performs one item inspect round-trip.
	Inspect(ctx context.Context, owner, assetID, proof uint64) (ItemInfo, error)
	Close() error
}

// GameClientFactory builds a transport for one credential. Each bot owns
// exactly one client; no two bots share a credential.
type GameClientFactory func(cred Credential) GameClient

// ResultFeed publishes successful inspect results for downstream
// consumers (price aggregation). Implementations must not block the
// inspect path; failures are logged, never surfaced.
type ResultFeed interface {
	Publish(ctx context.Context, info ItemInfo) error
	Close() error
}
