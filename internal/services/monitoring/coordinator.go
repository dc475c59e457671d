package monitoring

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"oipulse/internal/domain/alert"
	"oipulse/internal/domain/catalog"
	"oipulse/internal/domain/subscriber"
	"oipulse/internal/events"
	"oipulse/internal/metrics"
	"oipulse/pkg/logger"
)

// Dispatcher fans classified events out to one subscriber
type Dispatcher interface {
	Deliver(ctx context.Context, sub *subscriber.Subscriber, evs []alert.ChangeEvent) error
}

// CatalogSource yields the filtered instrument universe for a policy
type CatalogSource interface {
	Filter(ctx context.Context, filter subscriber.InstrumentFilter) ([]catalog.Instrument, error)
}

// StreamController owns the shared live-stream lifecycle
type StreamController interface {
	Start(ctx context.Context, symbols []string) error
	UpdateSymbols(ctx context.Context, symbols []string) error
	Stop()
	Running() bool
	Symbols() []string
}

// CoordinatorConfig configures the monitoring cycle.
type CoordinatorConfig struct {
	// CycleCooldown is the pause after a failed cycle before the next run
	CycleCooldown time.Duration

	// SubscriberPacing is the delay between successive polling subscribers
	SubscriberPacing time.Duration

	// QuoteSuffix maps catalog base symbols onto exchange pairs
	QuoteSuffix string
}

// Coordinator drives one monitoring cycle: partition subscribers by mode,
// keep a single shared stream alive for streaming subscribers, run the
// polling detection pass per subscriber, and route events to the
// dispatcher. A cycle failure trips a cooldown instead of crashing.
type Coordinator struct {
	subscribers subscriber.Repository
	catalog     CatalogSource
	detector    *Detector
	inferencer  *Inferencer
	dispatcher  Dispatcher
	stream      StreamController
	queue       *events.Queue
	cfg         CoordinatorConfig
	log         *logger.Logger

	mu          sync.Mutex
	lastErrorAt time.Time
}

// NewCoordinator creates a coordinator.
func NewCoordinator(
	subscribers subscriber.Repository,
	catalogSource CatalogSource,
	detector *Detector,
	inferencer *Inferencer,
	dispatcher Dispatcher,
	stream StreamController,
	queue *events.Queue,
	cfg CoordinatorConfig,
) *Coordinator {
	if cfg.CycleCooldown <= 0 {
		cfg.CycleCooldown = time.Minute
	}
	if cfg.SubscriberPacing < 0 {
		cfg.SubscriberPacing = 0
	}
	if cfg.QuoteSuffix == "" {
		cfg.QuoteSuffix = "USDT"
	}

	return &Coordinator{
		subscribers: subscribers,
		catalog:     catalogSource,
		detector:    detector,
		inferencer:  inferencer,
		dispatcher:  dispatcher,
		stream:      stream,
		queue:       queue,
		cfg:         cfg,
		log:         logger.Get().With("component", "coordinator"),
	}
}

// RunCycle executes one monitoring cycle. A cycle that recently failed is
// skipped until the cooldown has elapsed.
func (c *Coordinator) RunCycle(ctx context.Context) (err error) {
	c.mu.Lock()
	if !c.lastErrorAt.IsZero() && time.Since(c.lastErrorAt) < c.cfg.CycleCooldown {
		remaining := c.cfg.CycleCooldown - time.Since(c.lastErrorAt)
		c.mu.Unlock()
		c.log.Warnf("Skipping cycle, cooling down for another %s", remaining.Round(time.Second))
		return nil
	}
	c.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("monitoring cycle panic: %v", r)
		}
		if err != nil {
			c.mu.Lock()
			c.lastErrorAt = time.Now()
			c.mu.Unlock()
			c.log.Errorf("Monitoring cycle failed: %v", err)
		}
	}()

	subs, err := c.subscribers.ListMonitoring(ctx)
	if err != nil {
		return err
	}

	var polling, streaming []subscriber.Subscriber
	for _, sub := range subs {
		if sub.Settings.Mode == subscriber.ModeStreaming {
			streaming = append(streaming, sub)
		} else {
			polling = append(polling, sub)
		}
	}

	c.log.Infow("Monitoring cycle started",
		"polling_subscribers", len(polling),
		"streaming_subscribers", len(streaming),
	)

	if err := c.reconcileStream(ctx, streaming); err != nil {
		c.log.Errorf("Stream reconciliation failed: %v", err)
	}

	c.dispatchLiveUpdates(ctx, streaming)

	for i := range polling {
		sub := &polling[i]
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if perr := c.monitorSubscriber(ctx, sub); perr != nil {
			// one subscriber failing must not abort the others
			c.log.Errorf("Error monitoring subscriber %s: %v", sub.ID, perr)
		}

		if i < len(polling)-1 && c.cfg.SubscriberPacing > 0 {
			select {
			case <-time.After(c.cfg.SubscriberPacing):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	return nil
}

// reconcileStream keeps a single shared stream covering the union of the
// streaming subscribers' instrument sets; it is started lazily and stopped
// when no streaming subscriber remains.
func (c *Coordinator) reconcileStream(ctx context.Context, streaming []subscriber.Subscriber) error {
	if len(streaming) == 0 {
		if c.stream.Running() {
			c.log.Info("No streaming subscribers left, stopping stream")
			c.stream.Stop()
		}
		return nil
	}

	union := make(map[string]struct{})
	for i := range streaming {
		instruments, err := c.catalog.Filter(ctx, streaming[i].Settings.Filter)
		if err != nil {
			return err
		}
		limit := streaming[i].Settings.MaxInstrumentsPerCycle
		if limit > 0 && len(instruments) > limit {
			instruments = instruments[:limit]
		}
		for _, inst := range instruments {
			union[inst.Symbol+c.cfg.QuoteSuffix] = struct{}{}
		}
	}

	symbols := make([]string, 0, len(union))
	for sym := range union {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	if len(symbols) == 0 {
		if c.stream.Running() {
			c.stream.Stop()
		}
		return nil
	}

	if !c.stream.Running() {
		return c.stream.Start(ctx, symbols)
	}

	if !equalSymbolSets(c.stream.Symbols(), symbols) {
		c.log.Infow("Stream symbol set changed, restarting", "symbols", len(symbols))
		return c.stream.UpdateSymbols(ctx, symbols)
	}

	return nil
}

// dispatchLiveUpdates drains the stream queue and routes each materialized
// move through every streaming subscriber's policy.
func (c *Coordinator) dispatchLiveUpdates(ctx context.Context, streaming []subscriber.Subscriber) {
	if c.queue == nil || len(streaming) == 0 {
		if c.queue != nil {
			// nobody listens, drop the backlog
			c.queue.Drain()
		}
		return
	}

	updates := c.queue.Drain()
	if len(updates) == 0 {
		return
	}

	c.log.Infow("Draining live updates", "updates", len(updates))

	for i := range streaming {
		sub := &streaming[i]

		var evs []alert.ChangeEvent
		for _, update := range updates {
			evs = append(evs, c.liveUpdateEvents(update, sub.Settings)...)
		}

		if len(evs) == 0 {
			continue
		}

		if err := c.dispatcher.Deliver(ctx, sub, evs); err != nil {
			c.log.Errorf("Live delivery failed for subscriber %s: %v", sub.ID, err)
		}
	}
}

func (c *Coordinator) liveUpdateEvents(update events.LiveUpdate, settings subscriber.Settings) []alert.ChangeEvent {
	var evs []alert.ChangeEvent

	pct := update.PercentChange
	if settings.EnableChangeAlerts &&
		(pct >= settings.StreamThresholdPercent || pct <= -settings.StreamThresholdPercent) &&
		settings.WantsDirection(update.Increase()) {

		direction := alert.DirectionDecrease
		if update.Increase() {
			direction = alert.DirectionIncrease
		}

		evs = append(evs, alert.ChangeEvent{
			Symbol:        update.Symbol,
			Exchange:      update.Exchange,
			Kind:          alert.KindChange,
			Direction:     direction,
			PercentChange: pct,
			CurrentValue:  update.Current,
			PreviousValue: update.Previous,
			Source:        "stream",
			ObservedAt:    update.ObservedAt,
		})
	}

	if settings.EnableLiquidationInference {
		ev := c.inferencer.Infer(update.Symbol, update.Exchange, update.Previous, update.Current,
			settings.LiquidationDropThresholdPercent, update.ObservedAt)
		if ev != nil {
			ev.Source = "stream"
			evs = append(evs, *ev)
		}
	}

	for i := range evs {
		metrics.EventsEmitted.WithLabelValues(string(evs[i].Kind), "stream").Inc()
	}
	return evs
}

func (c *Coordinator) monitorSubscriber(ctx context.Context, sub *subscriber.Subscriber) error {
	instruments, err := c.catalog.Filter(ctx, sub.Settings.Filter)
	if err != nil {
		return err
	}
	if len(instruments) == 0 {
		c.log.Warnf("No instruments match filters for subscriber %s", sub.ID)
		return nil
	}

	evs, err := c.detector.Detect(ctx, instruments, sub.Settings)
	if err != nil {
		return err
	}
	if len(evs) == 0 {
		return nil
	}

	c.log.Infof("Generated %d events for subscriber %s", len(evs), sub.ID)
	return c.dispatcher.Deliver(ctx, sub, evs)
}

func equalSymbolSets(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as := append([]string(nil), a...)
	bs := append([]string(nil), b...)
	sort.Strings(as)
	sort.Strings(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}
