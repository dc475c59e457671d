package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oipulse/internal/events"
	"oipulse/internal/testsupport"
	"oipulse/pkg/errors"
)

func newTestClient(floorPct float64) (*OIStreamClient, *events.Queue, *testsupport.SnapshotStore) {
	queue := events.NewQueue(16)
	store := testsupport.NewSnapshotStore()
	client := NewOIStreamClient("", []string{"BTCUSDT"}, floorPct, queue, store)
	return client, queue, store
}

func TestProcessMessageDropsInvalidPayloads(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"garbage", `{not json at all`},
		{"wrong event type", `{"e":"markPriceUpdate","s":"BTCUSDT","o":"100000"}`},
		{"missing symbol", `{"e":"openInterest","o":"100000"}`},
		{"non numeric value", `{"e":"openInterest","s":"BTCUSDT","o":"a lot"}`},
		{"negative value", `{"e":"openInterest","s":"BTCUSDT","o":"-5"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, queue, store := newTestClient(0.1)

			client.processMessage([]byte(tt.payload))

			assert.Zero(t, store.Count(), "invalid payload must not create history")
			assert.Empty(t, queue.Drain())
		})
	}
}

func TestProcessMessageRecordsEveryValidValue(t *testing.T) {
	client, queue, store := newTestClient(0.5)

	// First observation seeds the comparison baseline; nothing to compare yet.
	client.processMessage([]byte(`{"e":"openInterest","E":1700000000000,"s":"BTCUSDT","o":"100000"}`))
	require.Equal(t, 1, store.Count())
	assert.Empty(t, queue.Drain())

	// A move under the floor still lands in history but is not published.
	client.processMessage([]byte(`{"e":"openInterest","E":1700000060000,"s":"BTCUSDT","o":"100100"}`))
	require.Equal(t, 2, store.Count())
	assert.Empty(t, queue.Drain())

	// A material move is recorded and published.
	client.processMessage([]byte(`{"e":"openInterest","E":1700000120000,"s":"BTCUSDT","o":"107000"}`))
	require.Equal(t, 3, store.Count())

	updates := queue.Drain()
	require.Len(t, updates, 1)
	assert.Equal(t, "BTCUSDT", updates[0].Symbol)
	assert.Equal(t, 100100.0, updates[0].Previous)
	assert.Equal(t, 107000.0, updates[0].Current)
	assert.InDelta(t, 6.893, updates[0].PercentChange, 0.001)
}

func TestProcessMessageUnwrapsCombinedStreamEnvelope(t *testing.T) {
	client, _, store := newTestClient(0.1)

	envelope := `{"stream":"btcusdt@openInterest","data":{"e":"openInterest","E":1700000000000,"s":"BTCUSDT","o":"250000"}}`
	client.processMessage([]byte(envelope))

	require.Equal(t, 1, store.Count())
}

func TestSilentConnectionSurfacesConnectionLost(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// One frame, then silence until the client goes away.
		_ = conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"e":"openInterest","s":"BTCUSDT","o":"100000"}`))
		<-r.Context().Done()
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	queue := events.NewQueue(16)
	store := testsupport.NewSnapshotStore()
	client := NewOIStreamClient(wsURL, []string{"BTCUSDT"}, 0.1, queue, store)
	client.readTimeout = 150 * time.Millisecond

	require.NoError(t, client.Connect(context.Background()))
	defer client.Disconnect()

	// A stream that goes quiet past the read deadline must report a lost
	// connection so the ingestor reconnects, never spin or crash the reader.
	select {
	case err := <-client.Err():
		assert.True(t, errors.Is(err, errors.ErrConnectionLost))
	case <-time.After(3 * time.Second):
		t.Fatal("reader never reported the dead connection")
	}

	assert.Eventually(t, func() bool { return !client.IsConnected() },
		time.Second, 10*time.Millisecond)
}

func TestStreamURLJoinsLowercasedStreams(t *testing.T) {
	client := NewOIStreamClient("wss://example.test/stream",
		[]string{"BTCUSDT", "ETHUSDT"}, 0.1, events.NewQueue(1), nil)

	assert.Equal(t,
		"wss://example.test/stream?streams=btcusdt@openInterest/ethusdt@openInterest",
		client.streamURL())
}
