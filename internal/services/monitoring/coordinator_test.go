package monitoring

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oipulse/internal/domain/alert"
	"oipulse/internal/domain/catalog"
	"oipulse/internal/domain/snapshot"
	"oipulse/internal/domain/subscriber"
	"oipulse/internal/events"
	"oipulse/internal/testsupport"
	"oipulse/pkg/errors"
)

type staticCatalog struct {
	instruments []catalog.Instrument
	err         error
}

func (s *staticCatalog) Filter(ctx context.Context, filter subscriber.InstrumentFilter) ([]catalog.Instrument, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.instruments, nil
}

type captureDispatcher struct {
	mu        sync.Mutex
	delivered map[uuid.UUID][]alert.ChangeEvent
	failFor   map[uuid.UUID]error
}

func newCaptureDispatcher() *captureDispatcher {
	return &captureDispatcher{
		delivered: make(map[uuid.UUID][]alert.ChangeEvent),
		failFor:   make(map[uuid.UUID]error),
	}
}

func (d *captureDispatcher) Deliver(ctx context.Context, sub *subscriber.Subscriber, evs []alert.ChangeEvent) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err, ok := d.failFor[sub.ID]; ok {
		return err
	}
	d.delivered[sub.ID] = append(d.delivered[sub.ID], evs...)
	return nil
}

func (d *captureDispatcher) eventsFor(id uuid.UUID) []alert.ChangeEvent {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.delivered[id]
}

type fakeStream struct {
	mu      sync.Mutex
	running bool
	symbols []string
	starts  int
	stops   int
	updates int
}

func (f *fakeStream) Start(ctx context.Context, symbols []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = true
	f.symbols = symbols
	f.starts++
	return nil
}

func (f *fakeStream) UpdateSymbols(ctx context.Context, symbols []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.symbols = symbols
	f.updates++
	return nil
}

func (f *fakeStream) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = false
	f.stops++
}

func (f *fakeStream) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *fakeStream) Symbols() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.symbols
}

type failingSubscribers struct {
	subscriber.Repository
	err   error
	calls int
}

func (f *failingSubscribers) ListMonitoring(ctx context.Context) ([]subscriber.Subscriber, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.Repository.ListMonitoring(ctx)
}

func addSubscriber(t *testing.T, store *testsupport.SubscriberStore, telegramID int64, mode subscriber.Mode) *subscriber.Subscriber {
	t.Helper()
	settings := subscriber.DefaultSettings()
	settings.Mode = mode
	sub := &subscriber.Subscriber{
		TelegramID:        telegramID,
		ChatID:            telegramID,
		Settings:          settings,
		MonitoringEnabled: true,
	}
	require.NoError(t, store.Create(context.Background(), sub))
	return sub
}

func newTestCoordinator(subs subscriber.Repository, cat CatalogSource, dispatcher Dispatcher, stream StreamController, queue *events.Queue) *Coordinator {
	now := time.Now().UTC()
	store := testsupport.NewSnapshotStore()
	fetcher := &fakeFetcher{values: map[string]float64{"BTCUSDT": 100000, "ETHUSDT": 50000}, now: now}
	det := newTestDetector(store, fetcher, allTradable{})

	return NewCoordinator(subs, cat, det, NewInferencer(50000), dispatcher, stream, queue, CoordinatorConfig{
		CycleCooldown:    50 * time.Millisecond,
		SubscriberPacing: time.Millisecond,
	})
}

func TestRunCycleStartsSharedStreamForStreamingSubscribers(t *testing.T) {
	store := testsupport.NewSubscriberStore()
	addSubscriber(t, store, 1, subscriber.ModeStreaming)
	addSubscriber(t, store, 2, subscriber.ModeStreaming)

	cat := &staticCatalog{instruments: []catalog.Instrument{{Symbol: "BTC"}, {Symbol: "ETH"}}}
	stream := &fakeStream{}

	coord := newTestCoordinator(store, cat, newCaptureDispatcher(), stream, events.NewQueue(16))

	require.NoError(t, coord.RunCycle(context.Background()))

	assert.True(t, stream.Running())
	assert.Equal(t, 1, stream.starts, "two streaming subscribers share one stream")
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, stream.Symbols())
}

func TestRunCycleStopsStreamWhenNoStreamingSubscribersRemain(t *testing.T) {
	store := testsupport.NewSubscriberStore()
	sub := addSubscriber(t, store, 1, subscriber.ModeStreaming)

	cat := &staticCatalog{instruments: []catalog.Instrument{{Symbol: "BTC"}}}
	stream := &fakeStream{}
	coord := newTestCoordinator(store, cat, newCaptureDispatcher(), stream, events.NewQueue(16))

	require.NoError(t, coord.RunCycle(context.Background()))
	require.True(t, stream.Running())

	require.NoError(t, store.SetMonitoring(context.Background(), sub.ID, false))
	require.NoError(t, coord.RunCycle(context.Background()))

	assert.False(t, stream.Running())
	assert.Equal(t, 1, stream.stops)
}

func TestRunCycleRestartsStreamOnSymbolSetChange(t *testing.T) {
	store := testsupport.NewSubscriberStore()
	addSubscriber(t, store, 1, subscriber.ModeStreaming)

	cat := &staticCatalog{instruments: []catalog.Instrument{{Symbol: "BTC"}}}
	stream := &fakeStream{}
	coord := newTestCoordinator(store, cat, newCaptureDispatcher(), stream, events.NewQueue(16))

	require.NoError(t, coord.RunCycle(context.Background()))
	require.Equal(t, []string{"BTCUSDT"}, stream.Symbols())

	cat.instruments = []catalog.Instrument{{Symbol: "BTC"}, {Symbol: "SOL"}}
	require.NoError(t, coord.RunCycle(context.Background()))

	assert.Equal(t, 1, stream.updates)
	assert.Equal(t, []string{"BTCUSDT", "SOLUSDT"}, stream.Symbols())
}

func TestRunCycleDeliversPollingEvents(t *testing.T) {
	store := testsupport.NewSubscriberStore()
	sub := addSubscriber(t, store, 1, subscriber.ModePolling)

	// seed history so the detector has something to compare against
	now := time.Now().UTC()
	snapStore := testsupport.NewSnapshotStore()
	require.NoError(t, snapStore.Record(context.Background(), &snapshot.Snapshot{
		Symbol: "BTCUSDT", Exchange: snapshot.ExchangeBinance,
		OpenInterest: 95000, CapturedAt: now.Add(-15 * time.Minute),
	}))

	fetcher := &fakeFetcher{values: map[string]float64{"BTCUSDT": 100000}, now: now}
	det := newTestDetector(snapStore, fetcher, allTradable{})

	dispatcher := newCaptureDispatcher()
	coord := NewCoordinator(store, &staticCatalog{instruments: []catalog.Instrument{{Symbol: "BTC"}}},
		det, NewInferencer(50000), dispatcher, &fakeStream{}, events.NewQueue(16), CoordinatorConfig{
			CycleCooldown: 50 * time.Millisecond,
		})

	require.NoError(t, coord.RunCycle(context.Background()))

	evs := dispatcher.eventsFor(sub.ID)
	require.NotEmpty(t, evs)
	assert.Equal(t, alert.KindChange, evs[0].Kind)
	assert.Equal(t, "15min", evs[0].Timeframe)
}

func TestRunCycleDeliveryFailureIsolation(t *testing.T) {
	store := testsupport.NewSubscriberStore()
	failing := addSubscriber(t, store, 1, subscriber.ModePolling)
	healthy := addSubscriber(t, store, 2, subscriber.ModePolling)

	now := time.Now().UTC()
	snapStore := testsupport.NewSnapshotStore()
	require.NoError(t, snapStore.Record(context.Background(), &snapshot.Snapshot{
		Symbol: "BTCUSDT", Exchange: snapshot.ExchangeBinance,
		OpenInterest: 90000, CapturedAt: now.Add(-15 * time.Minute),
	}))

	fetcher := &fakeFetcher{values: map[string]float64{"BTCUSDT": 100000}, now: now}
	det := newTestDetector(snapStore, fetcher, allTradable{})

	dispatcher := newCaptureDispatcher()
	dispatcher.failFor[failing.ID] = errors.ErrDeliveryFailed

	coord := NewCoordinator(store, &staticCatalog{instruments: []catalog.Instrument{{Symbol: "BTC"}}},
		det, NewInferencer(50000), dispatcher, &fakeStream{}, events.NewQueue(16), CoordinatorConfig{
			CycleCooldown: 50 * time.Millisecond,
		})

	require.NoError(t, coord.RunCycle(context.Background()))
	assert.NotEmpty(t, dispatcher.eventsFor(healthy.ID), "one failed recipient must not block the rest")
}

func TestRunCycleRoutesLiveUpdates(t *testing.T) {
	store := testsupport.NewSubscriberStore()
	sub := addSubscriber(t, store, 1, subscriber.ModeStreaming)

	queue := events.NewQueue(16)
	require.NoError(t, queue.Publish(events.LiveUpdate{
		Symbol:        "BTCUSDT",
		Exchange:      snapshot.ExchangeBinance,
		Previous:      100000,
		Current:       90000,
		PercentChange: -10,
		ObservedAt:    time.Now().UTC(),
	}))

	dispatcher := newCaptureDispatcher()
	coord := newTestCoordinator(store, &staticCatalog{instruments: []catalog.Instrument{{Symbol: "BTC"}}},
		dispatcher, &fakeStream{}, queue)

	require.NoError(t, coord.RunCycle(context.Background()))

	evs := dispatcher.eventsFor(sub.ID)
	require.Len(t, evs, 2, "a -10%% move raises both a change and a liquidation event")

	assert.Equal(t, alert.KindChange, evs[0].Kind)
	assert.Equal(t, "stream", evs[0].Source)
	assert.Equal(t, alert.DirectionDecrease, evs[0].Direction)

	assert.Equal(t, alert.KindInferredLiquidation, evs[1].Kind)
	assert.Equal(t, alert.SideLong, evs[1].Side)
}

func TestRunCycleCooldownAfterFailure(t *testing.T) {
	inner := testsupport.NewSubscriberStore()
	repo := &failingSubscribers{Repository: inner, err: errors.ErrInternal}

	coord := newTestCoordinator(repo, &staticCatalog{}, newCaptureDispatcher(), &fakeStream{}, events.NewQueue(16))

	require.Error(t, coord.RunCycle(context.Background()))
	require.Equal(t, 1, repo.calls)

	// within the cooldown the cycle is skipped, not retried
	require.NoError(t, coord.RunCycle(context.Background()))
	assert.Equal(t, 1, repo.calls)

	time.Sleep(60 * time.Millisecond)
	repo.err = nil
	require.NoError(t, coord.RunCycle(context.Background()))
	assert.Equal(t, 2, repo.calls)
}
