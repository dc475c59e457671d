package streaming

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oipulse/pkg/errors"
)

type fakeConn struct {
	mu        sync.Mutex
	symbols   []string
	connected bool
	connects  int
	failErr   error
	errCh     chan error
}

func newFakeConn(symbols []string) *fakeConn {
	return &fakeConn{
		symbols: symbols,
		errCh:   make(chan error, 1),
	}
}

func (f *fakeConn) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	if f.failErr != nil {
		return f.failErr
	}
	f.connected = true
	return nil
}

func (f *fakeConn) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	return nil
}

func (f *fakeConn) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeConn) Err() <-chan error { return f.errCh }

func (f *fakeConn) Symbols() []string { return f.symbols }

func TestIngestorRejectsOversizedSubscription(t *testing.T) {
	symbols := make([]string, 201)
	for i := range symbols {
		symbols[i] = fmt.Sprintf("SYM%dUSDT", i)
	}

	ing := NewIngestor(func(s []string) Conn { return newFakeConn(s) }, Config{MaxSymbols: 200})

	err := ing.Start(context.Background(), symbols)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidSubscription))
	assert.False(t, ing.Running())
}

func TestIngestorRejectsEmptySymbolSet(t *testing.T) {
	ing := NewIngestor(func(s []string) Conn { return newFakeConn(s) }, Config{})

	err := ing.Start(context.Background(), []string{"", "!!", "  "})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidSubscription))
}

func TestIngestorStartAndStop(t *testing.T) {
	var mu sync.Mutex
	var conns []*fakeConn

	factory := func(s []string) Conn {
		c := newFakeConn(s)
		mu.Lock()
		conns = append(conns, c)
		mu.Unlock()
		return c
	}

	ing := NewIngestor(factory, Config{})

	require.NoError(t, ing.Start(context.Background(), []string{"btcusdt", "ETHUSDT"}))
	assert.True(t, ing.Running())
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, ing.Symbols())

	// wait for the run loop to establish the connection
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(conns) == 1 && conns[0].IsConnected()
	}, time.Second, 10*time.Millisecond)

	ing.Stop()
	assert.False(t, ing.Running())

	mu.Lock()
	defer mu.Unlock()
	assert.False(t, conns[0].IsConnected())
}

func TestIngestorStopIsIdempotent(t *testing.T) {
	ing := NewIngestor(func(s []string) Conn { return newFakeConn(s) }, Config{})

	ing.Stop()
	ing.Stop()
	assert.False(t, ing.Running())
}

func TestIngestorReconnectsOnConnectionLoss(t *testing.T) {
	var mu sync.Mutex
	var conns []*fakeConn

	factory := func(s []string) Conn {
		c := newFakeConn(s)
		mu.Lock()
		conns = append(conns, c)
		mu.Unlock()
		return c
	}

	ing := NewIngestor(factory, Config{
		BaseBackoff: 10 * time.Millisecond,
		MaxBackoff:  20 * time.Millisecond,
	})

	require.NoError(t, ing.Start(context.Background(), []string{"BTCUSDT"}))
	defer ing.Stop()

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(conns) == 1 && conns[0].IsConnected()
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	conns[0].errCh <- errors.ErrConnectionLost
	mu.Unlock()

	// a fresh connection is established after backoff
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(conns) == 2 && conns[1].IsConnected()
	}, time.Second, 5*time.Millisecond)
}

func TestIngestorRestartsWithNewSymbols(t *testing.T) {
	var mu sync.Mutex
	var conns []*fakeConn

	factory := func(s []string) Conn {
		c := newFakeConn(s)
		mu.Lock()
		conns = append(conns, c)
		mu.Unlock()
		return c
	}

	ing := NewIngestor(factory, Config{})
	require.NoError(t, ing.Start(context.Background(), []string{"BTCUSDT"}))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(conns) == 1 && conns[0].IsConnected()
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, ing.UpdateSymbols(context.Background(), []string{"SOLUSDT", "ETHUSDT"}))
	defer ing.Stop()

	assert.Equal(t, []string{"SOLUSDT", "ETHUSDT"}, ing.Symbols())

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(conns) == 2 && conns[1].IsConnected() && !conns[0].IsConnected()
	}, time.Second, 5*time.Millisecond)
}
