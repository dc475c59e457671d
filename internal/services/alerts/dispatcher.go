package alerts

import (
	"context"
	"time"

	"oipulse/internal/domain/alert"
	"oipulse/internal/domain/subscriber"
	"oipulse/internal/metrics"
	"oipulse/pkg/errors"
	"oipulse/pkg/logger"
	"oipulse/pkg/telegram"
)

// Messenger is the outbound delivery capability
type Messenger interface {
	SendMessageWithOptions(chatID int64, text string, opts telegram.MessageOptions) error
}

// Config configures the dispatcher.
type Config struct {
	// MaxLinesPerGroup caps the events listed per grouped message;
	// the remainder is summarized as a "+K more" suffix
	MaxLinesPerGroup int

	// Pacing is the delay between consecutive messages to one recipient
	Pacing time.Duration
}

// Dispatcher fans classified events out to a subscriber: change events
// grouped per timeframe, inferred liquidations in their own message, each
// capped and paced. Every event is recorded in the audit log regardless of
// delivery outcome.
type Dispatcher struct {
	messenger Messenger
	audit     alert.Repository
	cfg       Config
	log       *logger.Logger
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(messenger Messenger, audit alert.Repository, cfg Config) *Dispatcher {
	if cfg.MaxLinesPerGroup <= 0 {
		cfg.MaxLinesPerGroup = 10
	}
	if cfg.Pacing <= 0 {
		cfg.Pacing = time.Second
	}

	return &Dispatcher{
		messenger: messenger,
		audit:     audit,
		cfg:       cfg,
		log:       logger.Get().With("component", "dispatcher"),
	}
}

// Deliver sends the batch of events to one subscriber.
func (d *Dispatcher) Deliver(ctx context.Context, sub *subscriber.Subscriber, evs []alert.ChangeEvent) error {
	if len(evs) == 0 {
		return nil
	}

	d.recordAudit(ctx, sub, evs)

	messages := BuildMessages(evs, d.cfg.MaxLinesPerGroup)

	for i, text := range messages {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := d.messenger.SendMessageWithOptions(sub.ChatID, text, telegram.MessageOptions{
			ParseMode:             "HTML",
			DisableWebPagePreview: true,
		})
		metrics.RecordDelivery(err)
		if err != nil {
			return errors.Wrapf(errors.ErrDeliveryFailed, "chat %d: %v", sub.ChatID, err)
		}

		if i < len(messages)-1 {
			select {
			case <-time.After(d.cfg.Pacing):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	d.log.Infof("Sent %d events in %d messages to chat %d", len(evs), len(messages), sub.ChatID)
	return nil
}

// recordAudit appends one audit row per event. Audit failures are logged,
// never fatal to delivery.
func (d *Dispatcher) recordAudit(ctx context.Context, sub *subscriber.Subscriber, evs []alert.ChangeEvent) {
	if d.audit == nil {
		return
	}

	for i := range evs {
		ev := &evs[i]

		value := ev.PercentChange
		if ev.Kind == alert.KindInferredLiquidation {
			value = ev.EstimatedVolume
		}

		record := &alert.Alert{
			SubscriberID: sub.ID,
			Kind:         ev.Kind,
			Symbol:       ev.Symbol,
			Message:      FormatEvent(ev),
			Value:        value,
			CreatedAt:    time.Now().UTC(),
		}
		if err := d.audit.Insert(ctx, record); err != nil {
			d.log.Warnf("Audit insert failed for %s: %v", ev.Symbol, err)
		}
	}
}
