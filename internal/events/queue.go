package events

import (
	"sync"

	"oipulse/internal/metrics"
	"oipulse/pkg/errors"
	"oipulse/pkg/logger"
)

// Queue is a bounded in-process buffer of live updates.
// Publish never blocks: when the buffer is full the update is dropped
// and counted, so a slow consumer cannot stall the stream reader.
type Queue struct {
	ch      chan LiveUpdate
	mu      sync.Mutex
	closed  bool
	dropped uint64
}

// NewQueue creates a queue with the given capacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Queue{ch: make(chan LiveUpdate, capacity)}
}

// Publish enqueues an update without blocking.
func (q *Queue) Publish(update LiveUpdate) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return errors.Wrap(errors.ErrQueueStopped, "publish live update")
	}

	select {
	case q.ch <- update:
		return nil
	default:
		q.dropped++
		metrics.LiveUpdatesDropped.Inc()
		logger.Get().Warnw("Live update dropped, queue full",
			"symbol", update.Symbol,
			"dropped_total", q.dropped,
		)
		return errors.Wrapf(errors.ErrQueueFull, "symbol %s", update.Symbol)
	}
}

// Drain removes and returns all currently buffered updates.
func (q *Queue) Drain() []LiveUpdate {
	var updates []LiveUpdate
	for {
		select {
		case u := <-q.ch:
			updates = append(updates, u)
		default:
			return updates
		}
	}
}

// Len returns the number of buffered updates.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Dropped returns the number of updates discarded because the buffer was full.
func (q *Queue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Close marks the queue stopped. Buffered updates remain drainable.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}
