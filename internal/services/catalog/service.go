package catalog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"oipulse/internal/domain/catalog"
	"oipulse/internal/domain/snapshot"
	"oipulse/internal/domain/subscriber"
	"oipulse/pkg/errors"
	"oipulse/pkg/logger"
)

// Fetcher retrieves a fresh catalog listing from the upstream provider
type Fetcher interface {
	FetchListings(ctx context.Context) (*catalog.Listing, error)
}

// AvailabilityCache stores the tradable symbol set per exchange
type AvailabilityCache interface {
	SetMembers(ctx context.Context, key string, members []string, ttl time.Duration) error
	IsMember(ctx context.Context, key, member string) (bool, error)
	GetMembers(ctx context.Context, key string) ([]string, error)
}

// Config configures the catalog service.
type Config struct {
	TTL             time.Duration
	AvailabilityTTL time.Duration
}

// Service caches the instrument catalog and the per-exchange tradable
// symbol sets. A failed refresh falls back to the last persisted listing.
type Service struct {
	fetcher      Fetcher
	cache        catalog.CacheRepository
	availability AvailabilityCache
	cfg          Config
	log          *logger.Logger

	mu     sync.RWMutex
	memory *catalog.Listing
}

// NewService creates a catalog service.
func NewService(fetcher Fetcher, cache catalog.CacheRepository, availability AvailabilityCache, cfg Config) *Service {
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	if cfg.AvailabilityTTL <= 0 {
		cfg.AvailabilityTTL = time.Hour
	}

	return &Service{
		fetcher:      fetcher,
		cache:        cache,
		availability: availability,
		cfg:          cfg,
		log:          logger.Get().With("component", "catalog"),
	}
}

// Instruments returns the catalog, refreshing it when the cache has
// expired. force bypasses the freshness check.
func (s *Service) Instruments(ctx context.Context, force bool) ([]catalog.Instrument, error) {
	now := time.Now().UTC()

	if !force {
		if listing := s.cached(ctx); listing != nil && listing.Fresh(now, s.cfg.TTL) {
			s.log.Infof("Using cached catalog (age: %s)", listing.Age(now).Round(time.Second))
			return listing.Instruments, nil
		}
	}

	listing, err := s.fetcher.FetchListings(ctx)
	if err != nil {
		s.log.Errorf("Catalog refresh failed: %v", err)

		// stale fallback keeps the cycle running on upstream outages
		if stale := s.cached(ctx); stale != nil {
			s.log.Warnf("Using stale catalog (age: %s)", stale.Age(now).Round(time.Second))
			return stale.Instruments, nil
		}
		return nil, errors.Wrap(err, "refresh catalog")
	}

	s.store(ctx, listing)
	s.log.Infof("Cached %d catalog instruments", len(listing.Instruments))
	return listing.Instruments, nil
}

// Refresh forces a catalog fetch.
func (s *Service) Refresh(ctx context.Context) error {
	_, err := s.Instruments(ctx, true)
	return err
}

// Filter narrows the catalog per a subscriber's instrument filter.
func (s *Service) Filter(ctx context.Context, filter subscriber.InstrumentFilter) ([]catalog.Instrument, error) {
	instruments, err := s.Instruments(ctx, false)
	if err != nil {
		return nil, err
	}

	excluded := make(map[string]struct{}, len(filter.CustomExclusions))
	for _, sym := range filter.CustomExclusions {
		excluded[sym] = struct{}{}
	}

	filtered := make([]catalog.Instrument, 0, len(instruments))
	for _, inst := range instruments {
		if filter.ExcludeTopN > 0 && inst.Rank > 0 && inst.Rank <= filter.ExcludeTopN {
			continue
		}
		if filter.MinMarketCap > 0 && inst.MarketCap < filter.MinMarketCap {
			continue
		}
		if filter.MinVolume24h > 0 && inst.Volume24h < filter.MinVolume24h {
			continue
		}
		if _, ok := excluded[inst.Symbol]; ok {
			continue
		}
		filtered = append(filtered, inst)
	}

	s.log.Debugf("Filtered catalog: %d -> %d", len(instruments), len(filtered))
	return filtered, nil
}

// Status describes the state of the catalog cache
type Status struct {
	Exists      bool
	Fresh       bool
	Age         time.Duration
	Instruments int
}

// Status reports cache freshness.
func (s *Service) Status(ctx context.Context) Status {
	listing := s.cached(ctx)
	if listing == nil {
		return Status{}
	}

	now := time.Now().UTC()
	return Status{
		Exists:      true,
		Fresh:       listing.Fresh(now, s.cfg.TTL),
		Age:         listing.Age(now),
		Instruments: len(listing.Instruments),
	}
}

// RefreshTradable replaces the availability cache for an exchange.
func (s *Service) RefreshTradable(ctx context.Context, exchange snapshot.Exchange, symbols []string) error {
	if err := s.availability.SetMembers(ctx, availabilityKey(exchange), symbols, s.cfg.AvailabilityTTL); err != nil {
		return errors.Wrapf(err, "cache tradable symbols for %s", exchange)
	}
	s.log.Infof("Cached %d tradable symbols for %s", len(symbols), exchange)
	return nil
}

// IsTradable reports whether a symbol is listed on the exchange.
// An empty availability cache counts every symbol as tradable so that a
// cold cache never blocks a cycle.
func (s *Service) IsTradable(ctx context.Context, exchange snapshot.Exchange, symbol string) (bool, error) {
	members, err := s.availability.GetMembers(ctx, availabilityKey(exchange))
	if err != nil {
		return false, errors.Wrapf(err, "load tradable symbols for %s", exchange)
	}
	if len(members) == 0 {
		return true, nil
	}

	ok, err := s.availability.IsMember(ctx, availabilityKey(exchange), symbol)
	if err != nil {
		return false, errors.Wrapf(err, "check tradable symbol %s", symbol)
	}
	return ok, nil
}

func (s *Service) cached(ctx context.Context) *catalog.Listing {
	s.mu.RLock()
	if s.memory != nil {
		defer s.mu.RUnlock()
		return s.memory
	}
	s.mu.RUnlock()

	listing, err := s.cache.Load(ctx)
	if err != nil {
		if !errors.Is(err, errors.ErrNotFound) {
			s.log.Warnf("Catalog cache load failed: %v", err)
		}
		return nil
	}

	s.mu.Lock()
	s.memory = listing
	s.mu.Unlock()
	return listing
}

func (s *Service) store(ctx context.Context, listing *catalog.Listing) {
	s.mu.Lock()
	s.memory = listing
	s.mu.Unlock()

	if err := s.cache.Save(ctx, listing); err != nil {
		s.log.Warnf("Catalog cache save failed: %v", err)
	}
}

func availabilityKey(exchange snapshot.Exchange) string {
	return fmt.Sprintf("oipulse:tradable:%s", exchange)
}
