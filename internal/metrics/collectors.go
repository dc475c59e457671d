package metrics

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"oipulse/internal/domain/snapshot"
	"oipulse/pkg/logger"
)

const collectTimeout = 5 * time.Second

// StateCollector collects gauge-style counts straight from storage on each
// scrape, so they survive process restarts.
type StateCollector struct {
	log      *logger.Logger
	postgres *sqlx.DB
	redis    *redis.Client

	subscribers     *prometheus.Desc
	snapshots       *prometheus.Desc
	alerts24h       *prometheus.Desc
	tradableSymbols *prometheus.Desc
}

// NewStateCollector creates the storage-backed collector. redis may be nil
// when no availability cache is configured.
func NewStateCollector(log *logger.Logger, postgres *sqlx.DB, rdb *redis.Client) *StateCollector {
	return &StateCollector{
		log:      log.With("component", "state_collector"),
		postgres: postgres,
		redis:    rdb,

		subscribers: prometheus.NewDesc(
			"oipulse_subscribers",
			"Number of registered subscribers by monitoring state",
			[]string{"monitoring"}, nil,
		),
		snapshots: prometheus.NewDesc(
			"oipulse_snapshots_stored",
			"Number of open interest snapshots currently stored",
			nil, nil,
		),
		alerts24h: prometheus.NewDesc(
			"oipulse_alerts_24h",
			"Alerts recorded in the last 24 hours",
			nil, nil,
		),
		tradableSymbols: prometheus.NewDesc(
			"oipulse_tradable_symbols",
			"Size of the cached tradable symbol set per exchange",
			[]string{"exchange"}, nil,
		),
	}
}

// Describe implements prometheus.Collector
func (c *StateCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.subscribers
	ch <- c.snapshots
	ch <- c.alerts24h
	ch <- c.tradableSymbols
}

// Collect implements prometheus.Collector
func (c *StateCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), collectTimeout)
	defer cancel()

	c.collectSubscribers(ctx, ch)
	c.collectSnapshots(ctx, ch)
	c.collectAlerts(ctx, ch)
	c.collectTradable(ctx, ch)
}

func (c *StateCollector) collectSubscribers(ctx context.Context, ch chan<- prometheus.Metric) {
	rows, err := c.postgres.QueryxContext(ctx,
		`SELECT monitoring_enabled, COUNT(*) FROM subscribers GROUP BY monitoring_enabled`)
	if err != nil {
		c.log.Debugw("Failed to collect subscriber counts", "error", err)
		return
	}
	defer rows.Close()

	for rows.Next() {
		var enabled bool
		var count float64
		if err := rows.Scan(&enabled, &count); err != nil {
			continue
		}
		label := "off"
		if enabled {
			label = "on"
		}
		ch <- prometheus.MustNewConstMetric(c.subscribers, prometheus.GaugeValue, count, label)
	}
}

func (c *StateCollector) collectSnapshots(ctx context.Context, ch chan<- prometheus.Metric) {
	var count float64
	err := c.postgres.GetContext(ctx, &count, `SELECT COUNT(*) FROM oi_snapshots`)
	if err != nil {
		c.log.Debugw("Failed to collect snapshot count", "error", err)
		return
	}
	ch <- prometheus.MustNewConstMetric(c.snapshots, prometheus.GaugeValue, count)
}

func (c *StateCollector) collectAlerts(ctx context.Context, ch chan<- prometheus.Metric) {
	var count float64
	err := c.postgres.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM alerts WHERE created_at > NOW() - INTERVAL '24 hours'`)
	if err != nil {
		c.log.Debugw("Failed to collect alert count", "error", err)
		return
	}
	ch <- prometheus.MustNewConstMetric(c.alerts24h, prometheus.GaugeValue, count)
}

func (c *StateCollector) collectTradable(ctx context.Context, ch chan<- prometheus.Metric) {
	if c.redis == nil {
		return
	}

	for _, exchange := range []snapshot.Exchange{snapshot.ExchangeBinance, snapshot.ExchangeBybit} {
		key := "oipulse:tradable:" + string(exchange)
		size, err := c.redis.SCard(ctx, key).Result()
		if err != nil {
			c.log.Debugw("Failed to collect tradable set size", "exchange", exchange, "error", err)
			continue
		}
		ch <- prometheus.MustNewConstMetric(c.tradableSymbols, prometheus.GaugeValue, float64(size), string(exchange))
	}
}

// RegisterStateCollector registers the collector with the default registry
func RegisterStateCollector(collector *StateCollector) {
	prometheus.MustRegister(collector)
}
