// Package usecase contains application business logic services.
package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fairyhunter13/cs2-inspect-gateway/internal/domain"
	"github.com/fairyhunter13/cs2-inspect-gateway/internal/fleet"
)

// Fleet is the slice of the worker manager the coordinator depends on.
type Fleet interface {
	Inspect(ctx context.Context, owner, assetID, proof, marketID uint64, priority fleet.Priority) (domain.ItemInfo, error)
	QueueFull() bool
	IncrementCached()
}

// InspectService coordinates one inspect request end to end: cache,
// fleet, persistence, history classification, and the optional result
// feed.
type InspectService struct {
	Fleet   Fleet
	Assets  domain.AssetRepository
	History domain.HistoryRepository
	Cache   domain.ItemCache
	Feed    domain.ResultFeed

	// AllowRefresh gates the refresh query flag; when false a refresh
	// request still hits the cache.
	AllowRefresh bool
	// BackgroundTimeout bounds fire-and-forget (reply=false) processing.
	BackgroundTimeout time.Duration
}

// NewInspectService constructs an InspectService with its dependencies.
// feed may be nil when no broker is configured.
func NewInspectService(f Fleet, assets domain.AssetRepository, history domain.HistoryRepository, cache domain.ItemCache, feed domain.ResultFeed, allowRefresh bool) *InspectService {
	return &InspectService{
		Fleet:             f,
		Assets:            assets,
		History:           history,
		Cache:             cache,
		Feed:              feed,
		AllowRefresh:      allowRefresh,
		BackgroundTimeout: 30 * time.Second,
	}
}

// InspectItem resolves d synchronously: cache hit, or a fleet round-trip
// followed by persistence and classification.
func (s *InspectService) InspectItem(ctx context.Context, d domain.InspectDescriptor) (domain.ItemInfo, error) {
	if err := d.Validate(); err != nil {
		return domain.ItemInfo{}, err
	}
	if info, ok := s.cacheLookup(ctx, d); ok {
		s.Fleet.IncrementCached()
		return info, nil
	}
	if s.Fleet.QueueFull() {
		return domain.ItemInfo{}, fmt.Errorf("op=inspect.coordinate asset=%d: %w", d.A, domain.ErrQueueFull)
	}

	info, err := s.Fleet.Inspect(ctx, d.S, d.A, d.D, d.M, priorityOf(d))
	if err != nil {
		return domain.ItemInfo{}, err
	}
	info.Owner, info.MarketID, info.Proof = d.S, d.M, d.D
	if err := s.persist(ctx, &info); err != nil {
		return domain.ItemInfo{}, err
	}
	return info, nil
}

// Submit admits d without waiting for the result; processing continues
// in the background. Returns ErrQueueFull when admission is closed.
func (s *InspectService) Submit(d domain.InspectDescriptor) error {
	if err := d.Validate(); err != nil {
		return err
	}
	if s.Fleet.QueueFull() {
		return fmt.Errorf("op=inspect.submit asset=%d: %w", d.A, domain.ErrQueueFull)
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.BackgroundTimeout)
		defer cancel()
		d.Reply = true
		if _, err := s.InspectItem(ctx, d); err != nil {
			slog.Warn("background inspect failed", slog.Uint64("asset_id", d.A), slog.Any("error", err))
		}
	}()
	return nil
}

func (s *InspectService) cacheLookup(ctx context.Context, d domain.InspectDescriptor) (domain.ItemInfo, bool) {
	if s.Cache == nil {
		return domain.ItemInfo{}, false
	}
	if d.Refresh && s.AllowRefresh {
		return domain.ItemInfo{}, false
	}
	info, err := s.Cache.Get(ctx, d.A)
	if err != nil {
		return domain.ItemInfo{}, false
	}
	return info, true
}

// persist upserts the asset, classifies and appends history, refreshes
// the cache, and publishes to the feed. Only the upsert is fatal; the
// rest degrade to log lines so a flaky sidecar never fails an inspect
// that already succeeded.
func (s *InspectService) persist(ctx context.Context, info *domain.ItemInfo) error {
	uniqueID := info.UniqueID()

	prior := s.findPrior(ctx, info)

	rec := assetRecordOf(info, uniqueID)
	if err := s.Assets.Upsert(ctx, rec); err != nil {
		return fmt.Errorf("op=inspect.persist unique_id=%s: %w: %v", uniqueID, domain.ErrPersistence, err)
	}

	s.appendHistory(ctx, info, prior, uniqueID)

	if s.Cache != nil {
		if err := s.Cache.Set(ctx, info.AssetID, *info); err != nil {
			slog.Warn("cache write failed", slog.Uint64("asset_id", info.AssetID), slog.Any("error", err))
		}
	}
	if s.Feed != nil {
		if err := s.Feed.Publish(ctx, *info); err != nil {
			slog.Warn("feed publish failed", slog.Uint64("asset_id", info.AssetID), slog.Any("error", err))
		}
	}
	return nil
}

// findPrior loads the latest record for the same item fingerprint. Must
// run before the upsert or the classifier compares the item to itself.
func (s *InspectService) findPrior(ctx context.Context, info *domain.ItemInfo) *domain.AssetRecord {
	prior, err := s.Assets.FindPrior(ctx, domain.PriorQuery{
		PaintWear:      info.PaintWear,
		PaintIndex:     info.PaintIndex,
		DefIndex:       info.DefIndex,
		PaintSeed:      info.PaintSeed,
		Origin:         info.Origin,
		QuestID:        info.QuestID,
		Rarity:         info.Rarity,
		ExcludeAssetID: info.AssetID,
	})
	if err != nil {
		return nil
	}
	return &prior
}

// appendHistory records one event per (uniqueId, assetId) pair, and only
// for paintable items whose fingerprint attributes are all present.
func (s *InspectService) appendHistory(ctx context.Context, info *domain.ItemInfo, prior *domain.AssetRecord, uniqueID string) {
	if s.History == nil {
		return
	}
	if info.PaintSeed == nil || info.PaintWear == nil || info.PaintIndex == nil {
		return
	}
	logged, err := s.History.Exists(ctx, uniqueID, info.AssetID)
	if err != nil {
		slog.Warn("history lookup failed", slog.String("unique_id", uniqueID), slog.Any("error", err))
		return
	}
	if logged {
		return
	}
	t := ClassifyHistory(info, prior)
	if t == "" {
		return
	}
	rec := domain.HistoryRecord{
		UniqueID:  uniqueID,
		AssetID:   info.AssetID,
		Owner:     infoOwner(info),
		Type:      t,
		Stickers:  info.Stickers,
		CreatedAt: time.Now().UTC(),
	}
	if prior != nil {
		rec.PrevAssetID = prior.AssetID
		rec.PrevOwner = recordOwner(prior)
		rec.PrevStickers = prior.Stickers
	}
	if err := s.History.Insert(ctx, rec); err != nil {
		slog.Warn("history insert failed", slog.String("unique_id", uniqueID), slog.Any("error", err))
	}
}

func assetRecordOf(info *domain.ItemInfo, uniqueID string) domain.AssetRecord {
	now := time.Now().UTC()
	return domain.AssetRecord{
		UniqueID:   uniqueID,
		AssetID:    info.AssetID,
		Owner:      info.Owner,
		MarketID:   info.MarketID,
		DefIndex:   info.DefIndex,
		PaintIndex: info.PaintIndex,
		PaintSeed:  info.PaintSeed,
		PaintWear:  info.PaintWear,
		Rarity:     info.Rarity,
		Quality:    info.Quality,
		Origin:     info.Origin,
		QuestID:    info.QuestID,
		CustomName: info.CustomName,
		Stickers:   info.Stickers,
		Keychains:  info.Keychains,
		UpdatedAt:  now,
		CreatedAt:  now,
	}
}

func priorityOf(d domain.InspectDescriptor) fleet.Priority {
	if d.LowPriority {
		return fleet.PriorityLow
	}
	return fleet.PriorityNormal
}
