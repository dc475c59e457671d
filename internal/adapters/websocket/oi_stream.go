package websocket

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"oipulse/internal/domain/snapshot"
	"oipulse/internal/events"
	"oipulse/internal/metrics"
	"oipulse/pkg/errors"
	"oipulse/pkg/logger"
)

const (
	defaultStreamURL = "wss://fstream.binance.com/stream"
	pingInterval     = 3 * time.Minute
	readTimeout      = 15 * time.Second
	writeTimeout     = 5 * time.Second
	shutdownTimeout  = 10 * time.Second
)

// OIStreamClient consumes combined open-interest streams over a single
// WebSocket connection. Every valid update is persisted as a snapshot;
// moves past the materiality floor are additionally published to the queue.
type OIStreamClient struct {
	baseURL     string
	symbols     []string
	floorPct    float64
	queue       *events.Queue
	snapshots   snapshot.Repository
	readTimeout time.Duration

	conn      *websocket.Conn
	connected bool
	mu        sync.RWMutex
	wg        sync.WaitGroup
	log       *logger.Logger

	// last seen value per symbol, compared in memory so the floor only
	// gates publication, never snapshot history
	lastSeen map[string]float64

	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	errChan chan error
}

// NewOIStreamClient creates a stream client for the given symbols.
// floorPct is the minimum absolute percent move worth publishing.
func NewOIStreamClient(baseURL string, symbols []string, floorPct float64, queue *events.Queue, snapshots snapshot.Repository) *OIStreamClient {
	if baseURL == "" {
		baseURL = defaultStreamURL
	}
	return &OIStreamClient{
		baseURL:     baseURL,
		symbols:     symbols,
		floorPct:    floorPct,
		queue:       queue,
		snapshots:   snapshots,
		readTimeout: readTimeout,
		log:         logger.Get().With("component", "oi_stream"),
		lastSeen:    make(map[string]float64),
		done:        make(chan struct{}),
		errChan:     make(chan error, 1),
	}
}

// Connect establishes the WebSocket connection and starts the reader.
func (c *OIStreamClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return nil
	}

	url := c.streamURL()
	c.log.Infof("Connecting to open interest stream: %s", url)

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return errors.Wrapf(err, "dial open interest stream")
	}

	c.conn = conn
	c.connected = true
	c.done = make(chan struct{})
	c.errChan = make(chan error, 1)

	c.ctx, c.cancel = context.WithCancel(ctx)

	c.wg.Add(1)
	go c.readMessages()

	c.wg.Add(1)
	go c.pingLoop()

	c.log.Infof("Open interest stream connected, %d symbols", len(c.symbols))
	return nil
}

// Disconnect closes the connection and waits for reader goroutines.
// Safe to call after the reader has already died on a fatal error.
func (c *OIStreamClient) Disconnect() error {
	c.mu.Lock()

	if c.cancel == nil {
		c.mu.Unlock()
		return nil
	}

	c.cancel()
	c.cancel = nil

	select {
	case <-c.done:
	default:
		close(c.done)
	}

	if c.conn != nil {
		err := c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(1*time.Second),
		)
		if err != nil {
			c.log.Warnf("Error sending close message: %v", err)
		}

		c.conn.Close()
		c.conn = nil
	}

	c.connected = false
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.log.Info("Open interest stream disconnected")
	case <-time.After(shutdownTimeout):
		c.log.Warnf("Stream shutdown timed out after %s", shutdownTimeout)
		return errors.Wrap(errors.ErrTimeout, "stream shutdown timeout")
	}

	return nil
}

// IsConnected returns connection status.
func (c *OIStreamClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Err exposes the first fatal read error, signalling a reconnect is needed.
func (c *OIStreamClient) Err() <-chan error {
	return c.errChan
}

// Symbols returns the symbols this connection subscribes to.
func (c *OIStreamClient) Symbols() []string {
	out := make([]string, len(c.symbols))
	copy(out, c.symbols)
	return out
}

func (c *OIStreamClient) streamURL() string {
	streams := make([]string, 0, len(c.symbols))
	for _, s := range c.symbols {
		streams = append(streams, strings.ToLower(s)+"@openInterest")
	}
	return c.baseURL + "?streams=" + strings.Join(streams, "/")
}

func (c *OIStreamClient) readMessages() {
	defer c.wg.Done()
	defer func() {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
	}()

	// Disconnect nils out c.conn under the lock; hold our own reference so
	// the read loop never races it.
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return
	}

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-c.done:
			return
		default:
			if err := conn.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
				c.log.Errorf("Failed to set read deadline: %v", err)
				return
			}

			_, message, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					c.log.Info("Stream closed normally")
					return
				}

				// Read errors are sticky on a gorilla connection, a
				// deadline expiry included. A stream this quiet is a dead
				// or half-open connection either way: surface it so the
				// ingestor tears down and reconnects.
				if netErr, ok := err.(interface{ Timeout() bool }); ok && netErr.Timeout() {
					c.log.Warnf("No stream messages within %s, treating connection as lost", c.readTimeout)
				} else {
					c.log.Errorf("Error reading stream message: %v", err)
				}

				select {
				case c.errChan <- errors.Wrap(errors.ErrConnectionLost, err.Error()):
				default:
				}
				return
			}

			c.processMessage(message)
		}
	}
}

type oiStreamMessage struct {
	Event     string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Value     string `json:"o"`
}

func (c *OIStreamClient) processMessage(message []byte) {
	// combined streams wrap the payload: {"stream":"...","data":{...}}
	var envelope struct {
		Stream string          `json:"stream"`
		Data   json.RawMessage `json:"data"`
	}
	payload := message
	if err := json.Unmarshal(message, &envelope); err == nil && len(envelope.Data) > 0 {
		payload = envelope.Data
	}

	var msg oiStreamMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		c.log.Warnf("Malformed stream message: %v", err)
		return
	}

	if msg.Event != "openInterest" || msg.Symbol == "" {
		return
	}

	metrics.StreamMessages.Inc()

	value, err := strconv.ParseFloat(msg.Value, 64)
	if err != nil || value < 0 {
		c.log.Warnw("Malformed open interest value",
			"symbol", msg.Symbol,
			"value", msg.Value,
		)
		return
	}

	observedAt := time.UnixMilli(msg.EventTime)
	if msg.EventTime == 0 {
		observedAt = time.Now().UTC()
	}

	c.recordSnapshot(msg.Symbol, value, observedAt)

	c.mu.Lock()
	prev, seen := c.lastSeen[msg.Symbol]
	c.lastSeen[msg.Symbol] = value
	c.mu.Unlock()

	if !seen || prev == 0 {
		return
	}

	pct := snapshot.PercentChange(prev, value)
	if pct < c.floorPct && pct > -c.floorPct {
		return
	}

	update := events.LiveUpdate{
		Symbol:        msg.Symbol,
		Exchange:      snapshot.ExchangeBinance,
		Previous:      prev,
		Current:       value,
		PercentChange: pct,
		ObservedAt:    observedAt,
	}

	if err := c.queue.Publish(update); err != nil && !errors.Is(err, errors.ErrQueueFull) {
		c.log.Warnf("Failed to publish live update: %v", err)
	}
}

// recordSnapshot persists a valid stream value so streaming-mode
// subscribers accumulate the same history the polling detector builds.
// A storage failure must not stall live alerting.
func (c *OIStreamClient) recordSnapshot(symbol string, value float64, observedAt time.Time) {
	if c.snapshots == nil {
		return
	}

	ctx := c.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	snap := snapshot.Snapshot{
		Symbol:       symbol,
		Exchange:     snapshot.ExchangeBinance,
		OpenInterest: value,
		CapturedAt:   observedAt,
	}
	if err := c.snapshots.Record(ctx, &snap); err != nil {
		c.log.Warnw("Failed to record stream snapshot",
			"symbol", symbol,
			"error", err,
		)
		return
	}
	metrics.SnapshotsRecorded.WithLabelValues(string(snapshot.ExchangeBinance)).Inc()
}

func (c *OIStreamClient) pingLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.ping(); err != nil {
				c.log.Errorf("Ping failed: %v", err)
			}
		}
	}
}

func (c *OIStreamClient) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected || c.conn == nil {
		return errors.ErrWSNotConnected
	}

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}

	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		return errors.Wrap(err, "send ping")
	}

	return nil
}
