package monitoring

import (
	"context"
	"time"

	"oipulse/internal/adapters/exchanges"
	"oipulse/internal/domain/snapshot"
)

type providerFetcher struct {
	provider exchanges.Provider
}

// NewProviderFetcher adapts an exchange provider to the detector's
// fetch capability.
func NewProviderFetcher(provider exchanges.Provider) OpenInterestFetcher {
	return &providerFetcher{provider: provider}
}

func (f *providerFetcher) Name() snapshot.Exchange {
	return f.provider.Name()
}

func (f *providerFetcher) FetchOpenInterest(ctx context.Context, symbol string) (float64, time.Time, error) {
	oi, err := f.provider.FetchOpenInterest(ctx, symbol)
	if err != nil {
		return 0, time.Time{}, err
	}
	return oi.Value(), oi.Timestamp, nil
}
