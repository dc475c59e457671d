package streaming

import (
	"context"
	"sync"
	"time"

	"oipulse/internal/metrics"
	"oipulse/pkg/errors"
	"oipulse/pkg/logger"
	"oipulse/pkg/reconnect"
	"oipulse/pkg/sanitize"
)

// Conn is a live open-interest stream connection
type Conn interface {
	Connect(ctx context.Context) error
	Disconnect() error
	IsConnected() bool
	Err() <-chan error
	Symbols() []string
}

// ConnFactory builds a connection subscribed to the given symbols
type ConnFactory func(symbols []string) Conn

// Config configures the ingestor.
type Config struct {
	MaxSymbols  int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// Ingestor owns the lifecycle of a stream connection: it validates the
// subscription, connects, and reconnects with exponential backoff until
// stopped. A symbol set change tears the connection down and rebuilds it.
type Ingestor struct {
	factory ConnFactory
	cfg     Config
	log     *logger.Logger

	mu      sync.Mutex
	running bool
	symbols []string
	conn    Conn
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewIngestor creates a stopped ingestor.
func NewIngestor(factory ConnFactory, cfg Config) *Ingestor {
	if cfg.MaxSymbols <= 0 {
		cfg.MaxSymbols = 200
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 5 * time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 60 * time.Second
	}

	return &Ingestor{
		factory: factory,
		cfg:     cfg,
		log:     logger.Get().With("component", "stream_ingestor"),
	}
}

// Start validates the symbol set and begins streaming.
// Starting an already running ingestor restarts it with the new symbols.
func (i *Ingestor) Start(ctx context.Context, symbols []string) error {
	clean := sanitize.Symbols(symbols)
	if len(clean) == 0 {
		return errors.Wrap(errors.ErrInvalidSubscription, "no valid symbols")
	}
	if len(clean) > i.cfg.MaxSymbols {
		return errors.Wrapf(errors.ErrInvalidSubscription,
			"%d symbols exceeds limit of %d", len(clean), i.cfg.MaxSymbols)
	}

	i.mu.Lock()
	if i.running {
		i.mu.Unlock()
		i.Stop()
		i.mu.Lock()
	}

	runCtx, cancel := context.WithCancel(ctx)
	i.running = true
	i.symbols = clean
	i.cancel = cancel

	i.wg.Add(1)
	go i.run(runCtx, clean)
	i.mu.Unlock()

	i.log.Infow("Stream ingestor started", "symbols", len(clean))
	return nil
}

// UpdateSymbols restarts the stream with a new symbol set.
func (i *Ingestor) UpdateSymbols(ctx context.Context, symbols []string) error {
	return i.Start(ctx, symbols)
}

// Stop tears the connection down. Safe to call when already stopped.
func (i *Ingestor) Stop() {
	i.mu.Lock()
	if !i.running {
		i.mu.Unlock()
		return
	}

	i.running = false
	if i.cancel != nil {
		i.cancel()
	}
	i.mu.Unlock()

	i.wg.Wait()
	i.log.Info("Stream ingestor stopped")
}

// Running reports whether the ingestor is active.
func (i *Ingestor) Running() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.running
}

// Symbols returns the active symbol set.
func (i *Ingestor) Symbols() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make([]string, len(i.symbols))
	copy(out, i.symbols)
	return out
}

func (i *Ingestor) run(ctx context.Context, symbols []string) {
	defer i.wg.Done()

	manager := reconnect.NewManager(reconnect.Config{
		BaseBackoff: i.cfg.BaseBackoff,
		MaxBackoff:  i.cfg.MaxBackoff,
	}, i.log)

	for {
		if ctx.Err() != nil {
			return
		}

		conn := i.factory(symbols)

		if err := conn.Connect(ctx); err != nil {
			i.log.Warnf("Stream connect failed: %v", err)
			metrics.StreamReconnects.WithLabelValues("failed").Inc()
			metrics.StreamConnected.Set(0)
			if !i.waitBackoff(ctx, manager) {
				return
			}
			manager.RecordFailure()
			continue
		}

		manager.RecordSuccess()
		metrics.StreamReconnects.WithLabelValues("success").Inc()
		metrics.StreamConnected.Set(1)

		i.mu.Lock()
		i.conn = conn
		i.mu.Unlock()

		select {
		case <-ctx.Done():
			if err := conn.Disconnect(); err != nil {
				i.log.Warnf("Stream disconnect: %v", err)
			}
			metrics.StreamConnected.Set(0)
			return
		case err := <-conn.Err():
			i.log.Warnf("Stream connection lost: %v", err)
			metrics.StreamConnected.Set(0)
			if derr := conn.Disconnect(); derr != nil {
				i.log.Debugf("Disconnect after failure: %v", derr)
			}
			if !i.waitBackoff(ctx, manager) {
				return
			}
			manager.RecordFailure()
		}
	}
}

func (i *Ingestor) waitBackoff(ctx context.Context, manager *reconnect.Manager) bool {
	backoff := manager.NextBackoff()
	i.log.Infow("Waiting before stream reconnect", "backoff", backoff)

	select {
	case <-time.After(backoff):
		return true
	case <-ctx.Done():
		return false
	}
}
