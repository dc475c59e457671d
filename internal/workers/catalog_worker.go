package workers

import (
	"context"
	"time"

	"oipulse/internal/adapters/exchanges"
	"oipulse/internal/domain/snapshot"
)

// CatalogRefresher is the catalog service surface the worker drives
type CatalogRefresher interface {
	Refresh(ctx context.Context) error
	RefreshTradable(ctx context.Context, exchange snapshot.Exchange, symbols []string) error
}

// CatalogWorker keeps the instrument catalog and the per-exchange tradable
// symbol sets warm so monitoring cycles never block on upstream APIs.
type CatalogWorker struct {
	*BaseWorker
	catalog   CatalogRefresher
	providers []exchanges.Provider
}

// NewCatalogWorker creates the refresh worker
func NewCatalogWorker(catalog CatalogRefresher, providers []exchanges.Provider, interval time.Duration, enabled bool) *CatalogWorker {
	return &CatalogWorker{
		BaseWorker: NewBaseWorker("catalog_refresh", interval, enabled),
		catalog:    catalog,
		providers:  providers,
	}
}

// Run refreshes the catalog listing and each provider's tradable set.
// Partial failures are logged and do not abort the rest of the iteration:
// a stale tradable set for one exchange is better than none for all.
func (w *CatalogWorker) Run(ctx context.Context) error {
	var lastErr error

	if err := w.catalog.Refresh(ctx); err != nil {
		w.Log().Errorw("Catalog refresh failed", "error", err)
		lastErr = err
	}

	for _, provider := range w.providers {
		symbols, err := provider.FetchTradableSymbols(ctx)
		if err != nil {
			w.Log().Errorw("Failed to fetch tradable symbols",
				"exchange", provider.Name(),
				"error", err,
			)
			lastErr = err
			continue
		}

		if err := w.catalog.RefreshTradable(ctx, provider.Name(), symbols); err != nil {
			w.Log().Errorw("Failed to store tradable symbols",
				"exchange", provider.Name(),
				"error", err,
			)
			lastErr = err
			continue
		}

		w.Log().Infow("Tradable symbols refreshed",
			"exchange", provider.Name(),
			"count", len(symbols),
		)
	}

	if lastErr != nil {
		w.RecordError(lastErr)
		return lastErr
	}

	w.RecordRun()
	return nil
}
