package catalog

import "context"

// CacheRepository persists the last good catalog listing so a failed
// refresh can fall back to stale data instead of failing the cycle.
type CacheRepository interface {
	// Save replaces the cached listing
	Save(ctx context.Context, l *Listing) error

	// Load returns the cached listing, or ErrNotFound when none exists
	Load(ctx context.Context) (*Listing, error)
}
