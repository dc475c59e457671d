package monitoring

import (
	"context"
	"time"

	"oipulse/internal/domain/alert"
	"oipulse/internal/domain/catalog"
	"oipulse/internal/domain/snapshot"
	"oipulse/internal/domain/subscriber"
	"oipulse/internal/metrics"
	"oipulse/pkg/errors"
	"oipulse/pkg/logger"
)

// OpenInterestFetcher is the exchange capability the detector consumes
type OpenInterestFetcher interface {
	Name() snapshot.Exchange
	FetchOpenInterest(ctx context.Context, symbol string) (float64, time.Time, error)
}

// Availability answers whether a symbol is currently tradable on an exchange
type Availability interface {
	IsTradable(ctx context.Context, exchange snapshot.Exchange, symbol string) (bool, error)
}

// DetectorConfig configures the change detector.
type DetectorConfig struct {
	// FetchPacing is the delay between successive per-instrument fetches
	FetchPacing time.Duration

	// SnapshotTolerance bounds how far a historical snapshot may sit from
	// the exact lookback target
	SnapshotTolerance time.Duration

	// QuoteSuffix maps catalog base symbols onto exchange pairs
	QuoteSuffix string
}

// Detector runs the per-instrument multi-timeframe change detection pass:
// fetch current open interest, persist it, compare against lagged snapshots
// per configured timeframe, and classify qualifying moves.
type Detector struct {
	snapshots    snapshot.Repository
	fetcher      OpenInterestFetcher
	availability Availability
	inferencer   *Inferencer
	cfg          DetectorConfig
	log          *logger.Logger
}

// NewDetector creates a detector.
func NewDetector(snapshots snapshot.Repository, fetcher OpenInterestFetcher, availability Availability, inferencer *Inferencer, cfg DetectorConfig) *Detector {
	if cfg.FetchPacing <= 0 {
		cfg.FetchPacing = 200 * time.Millisecond
	}
	if cfg.SnapshotTolerance <= 0 {
		cfg.SnapshotTolerance = 2 * time.Minute
	}
	if cfg.QuoteSuffix == "" {
		cfg.QuoteSuffix = "USDT"
	}

	return &Detector{
		snapshots:    snapshots,
		fetcher:      fetcher,
		availability: availability,
		inferencer:   inferencer,
		cfg:          cfg,
		log:          logger.Get().With("component", "detector"),
	}
}

// Detect runs one detection pass over instruments for the given policy.
// Failure on one instrument is logged and never aborts the others.
func (d *Detector) Detect(ctx context.Context, instruments []catalog.Instrument, settings subscriber.Settings) ([]alert.ChangeEvent, error) {
	if len(instruments) > settings.MaxInstrumentsPerCycle && settings.MaxInstrumentsPerCycle > 0 {
		instruments = instruments[:settings.MaxInstrumentsPerCycle]
	}

	exchange := d.fetcher.Name()

	var events []alert.ChangeEvent
	checked, skipped := 0, 0

	for idx, inst := range instruments {
		if ctx.Err() != nil {
			return events, ctx.Err()
		}

		pair := inst.Symbol + d.cfg.QuoteSuffix

		tradable, err := d.availability.IsTradable(ctx, exchange, pair)
		if err != nil {
			d.log.Warnf("Availability check failed for %s: %v", pair, err)
			skipped++
			continue
		}
		if !tradable {
			skipped++
			continue
		}

		instEvents, err := d.checkInstrument(ctx, pair, exchange, settings)
		if err != nil {
			d.log.Errorf("Error checking %s: %v", pair, err)
			continue
		}

		checked++
		for j := range instEvents {
			metrics.EventsEmitted.WithLabelValues(string(instEvents[j].Kind), "poll").Inc()
		}
		events = append(events, instEvents...)

		// space out exchange calls; skip the wait after the last instrument
		if idx < len(instruments)-1 {
			select {
			case <-time.After(d.cfg.FetchPacing):
			case <-ctx.Done():
				return events, ctx.Err()
			}
		}
	}

	d.log.Infow("Detection pass complete",
		"checked", checked,
		"skipped", skipped,
		"events", len(events),
	)

	return events, nil
}

func (d *Detector) checkInstrument(ctx context.Context, pair string, exchange snapshot.Exchange, settings subscriber.Settings) ([]alert.ChangeEvent, error) {
	current, capturedAt, err := d.fetcher.FetchOpenInterest(ctx, pair)
	if err != nil {
		return nil, err
	}

	// the most recent prior observation feeds the liquidation heuristic
	var prior *snapshot.Snapshot
	if settings.EnableLiquidationInference {
		prior, err = d.snapshots.Latest(ctx, pair, exchange)
		if err != nil && !errors.Is(err, errors.ErrNotFound) {
			d.log.Warnf("Latest snapshot lookup failed for %s: %v", pair, err)
		}
	}

	if err := d.snapshots.Record(ctx, &snapshot.Snapshot{
		Symbol:       pair,
		Exchange:     exchange,
		OpenInterest: current,
		CapturedAt:   capturedAt,
	}); err != nil {
		return nil, errors.Wrapf(err, "record snapshot for %s", pair)
	}
	metrics.SnapshotsRecorded.WithLabelValues(string(exchange)).Inc()

	var events []alert.ChangeEvent

	if settings.EnableChangeAlerts {
		events = append(events, d.timeframeEvents(ctx, pair, exchange, current, capturedAt, settings)...)
	}

	if settings.EnableLiquidationInference && prior != nil {
		ev := d.inferencer.Infer(pair, exchange, prior.OpenInterest, current,
			settings.LiquidationDropThresholdPercent, capturedAt)
		if ev != nil {
			d.log.Infof("Estimated liquidation: %s OI dropped %.2f%%", pair, ev.PercentChange)
			events = append(events, *ev)
		}
	}

	return events, nil
}

func (d *Detector) timeframeEvents(ctx context.Context, pair string, exchange snapshot.Exchange, current float64, capturedAt time.Time, settings subscriber.Settings) []alert.ChangeEvent {
	var events []alert.ChangeEvent

	for _, tf := range settings.Timeframes {
		target := capturedAt.Add(-time.Duration(tf.WindowMinutes) * time.Minute)

		previous, err := d.snapshots.Nearest(ctx, pair, exchange, target, d.cfg.SnapshotTolerance)
		if err != nil {
			if !errors.Is(err, errors.ErrNotFound) {
				d.log.Warnf("Nearest snapshot lookup failed for %s/%s: %v", pair, tf.Name, err)
			}
			// missing history is steady state, not a failure
			continue
		}
		if previous.OpenInterest <= 0 {
			continue
		}

		pct := snapshot.PercentChange(previous.OpenInterest, current)
		if pct < tf.ThresholdPercent && pct > -tf.ThresholdPercent {
			continue
		}

		increase := pct > 0
		if !settings.WantsDirection(increase) {
			continue
		}

		direction := alert.DirectionDecrease
		if increase {
			direction = alert.DirectionIncrease
		}

		d.log.Infof("OI alert [%s]: %s %+.2f%%", tf.Name, pair, pct)

		events = append(events, alert.ChangeEvent{
			Symbol:        pair,
			Exchange:      exchange,
			Kind:          alert.KindChange,
			Timeframe:     tf.Name,
			Direction:     direction,
			PercentChange: pct,
			CurrentValue:  current,
			PreviousValue: previous.OpenInterest,
			ObservedAt:    capturedAt,
		})
	}

	return events
}
