package exchanges

import (
	"context"

	"oipulse/internal/domain/snapshot"
)

// Provider is the capability the detection cycle consumes: fetch the
// current open interest for one instrument and enumerate tradable symbols.
type Provider interface {
	Name() snapshot.Exchange

	// FetchOpenInterest returns the current open interest for symbol.
	// Fails with ErrSymbolNotTradable, ErrRateLimited, ErrTimeout or
	// ErrExchangeUnavailable.
	FetchOpenInterest(ctx context.Context, symbol string) (*OpenInterest, error)

	// FetchTradableSymbols returns the set of perpetual symbols currently
	// listed for trading. Results are cacheable.
	FetchTradableSymbols(ctx context.Context) ([]string, error)
}
