package telegram

import (
	"sync"
	"time"

	"oipulse/pkg/errors"
	"oipulse/pkg/logger"
)

// AsyncMessageQueue sends messages in the background with a fixed delay
// between sends, so bursts of alerts do not trip the delivery channel's
// rate limits.
type AsyncMessageQueue struct {
	bot            Bot
	queue          chan *queuedMessage
	workers        int
	rateLimitDelay time.Duration
	log            *logger.Logger
	wg             sync.WaitGroup
	stopCh         chan struct{}
	mu             sync.Mutex
	running        bool
}

type queuedMessage struct {
	chatID   int64
	text     string
	opts     MessageOptions
	callback func(err error)
}

// NewAsyncMessageQueue creates a new async message queue.
func NewAsyncMessageQueue(bot Bot, workers int, rateLimitDelay time.Duration, log *logger.Logger) *AsyncMessageQueue {
	if workers <= 0 {
		workers = 5
	}
	if rateLimitDelay == 0 {
		rateLimitDelay = 50 * time.Millisecond
	}

	return &AsyncMessageQueue{
		bot:            bot,
		queue:          make(chan *queuedMessage, 1000),
		workers:        workers,
		rateLimitDelay: rateLimitDelay,
		log:            log.With("component", "async_message_queue"),
		stopCh:         make(chan struct{}),
	}
}

// Start starts queue workers.
func (amq *AsyncMessageQueue) Start() {
	amq.mu.Lock()
	defer amq.mu.Unlock()

	if amq.running {
		amq.log.Warnw("Async message queue already running")
		return
	}

	amq.running = true
	amq.log.Infow("Starting async message queue", "workers", amq.workers)

	for i := 0; i < amq.workers; i++ {
		amq.wg.Add(1)
		go amq.worker(i)
	}
}

// Stop stops queue workers gracefully.
func (amq *AsyncMessageQueue) Stop() {
	amq.mu.Lock()
	defer amq.mu.Unlock()

	if !amq.running {
		return
	}

	amq.log.Infow("Stopping async message queue")
	close(amq.stopCh)
	amq.wg.Wait()
	amq.running = false
}

// Enqueue adds a message for async sending.
func (amq *AsyncMessageQueue) Enqueue(chatID int64, text string, opts MessageOptions, callback func(err error)) error {
	select {
	case amq.queue <- &queuedMessage{chatID: chatID, text: text, opts: opts, callback: callback}:
		return nil
	case <-amq.stopCh:
		return errors.ErrQueueStopped
	default:
		amq.log.Warnw("Message queue full, message dropped",
			"chat_id", chatID,
			"queue_size", len(amq.queue),
		)
		return errors.ErrQueueFull
	}
}

// QueueSize returns the current queue depth.
func (amq *AsyncMessageQueue) QueueSize() int {
	return len(amq.queue)
}

func (amq *AsyncMessageQueue) worker(id int) {
	defer amq.wg.Done()

	for {
		select {
		case msg := <-amq.queue:
			err := amq.bot.SendMessageWithOptions(msg.chatID, msg.text, msg.opts)
			if err != nil {
				amq.log.Errorw("Failed to send queued message",
					"worker_id", id,
					"chat_id", msg.chatID,
					"error", err,
				)
			}
			if msg.callback != nil {
				msg.callback(err)
			}
			time.Sleep(amq.rateLimitDelay)

		case <-amq.stopCh:
			return
		}
	}
}
