package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Worker metrics
	WorkerExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oipulse_worker_executions_total",
			Help: "Total number of worker executions",
		},
		[]string{"worker", "status"}, // status: success|error
	)

	WorkerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "oipulse_worker_duration_seconds",
			Help:    "Worker execution duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"worker"},
	)

	WorkerLastRun = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "oipulse_worker_last_run_timestamp",
			Help: "Unix timestamp of last worker execution",
		},
		[]string{"worker"},
	)

	// Exchange metrics
	ExchangeAPICalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oipulse_exchange_api_calls_total",
			Help: "Total number of exchange API calls",
		},
		[]string{"exchange", "endpoint", "status"}, // status: success|error
	)

	ExchangeAPILatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "oipulse_exchange_api_latency_seconds",
			Help:    "Exchange API latency in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"exchange", "endpoint"},
	)

	// Detection metrics
	SnapshotsRecorded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oipulse_snapshots_recorded_total",
			Help: "Total number of open interest snapshots recorded",
		},
		[]string{"exchange"},
	)

	EventsEmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oipulse_events_emitted_total",
			Help: "Total number of detection events emitted",
		},
		[]string{"kind", "source"}, // kind: change|inferred_liquidation, source: poll|stream
	)

	// Delivery metrics
	AlertsDelivered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oipulse_alerts_delivered_total",
			Help: "Total number of alert messages delivered",
		},
		[]string{"status"}, // status: success|error
	)

	// Live stream metrics
	StreamConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "oipulse_stream_connected",
			Help: "Whether the shared open interest stream is connected (0/1)",
		},
	)

	StreamReconnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oipulse_stream_reconnects_total",
			Help: "Total number of live stream reconnect attempts",
		},
		[]string{"status"}, // status: success|failed
	)

	StreamMessages = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "oipulse_stream_messages_total",
			Help: "Total number of live stream messages processed",
		},
	)

	LiveUpdatesDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "oipulse_live_updates_dropped_total",
			Help: "Total number of live updates dropped due to a full queue",
		},
	)
)

// Init registers all metrics with the default registry
func Init() {
	prometheus.MustRegister(WorkerExecutions)
	prometheus.MustRegister(WorkerDuration)
	prometheus.MustRegister(WorkerLastRun)

	prometheus.MustRegister(ExchangeAPICalls)
	prometheus.MustRegister(ExchangeAPILatency)

	prometheus.MustRegister(SnapshotsRecorded)
	prometheus.MustRegister(EventsEmitted)
	prometheus.MustRegister(AlertsDelivered)

	prometheus.MustRegister(StreamConnected)
	prometheus.MustRegister(StreamReconnects)
	prometheus.MustRegister(StreamMessages)
	prometheus.MustRegister(LiveUpdatesDropped)
}

// Handler returns the Prometheus scrape handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordWorkerExecution records one worker iteration
func RecordWorkerExecution(worker string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	WorkerExecutions.WithLabelValues(worker, status).Inc()
	WorkerDuration.WithLabelValues(worker).Observe(duration.Seconds())
	WorkerLastRun.WithLabelValues(worker).SetToCurrentTime()
}

// RecordExchangeAPICall records one exchange API call
func RecordExchangeAPICall(exchange, endpoint string, latency time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	ExchangeAPICalls.WithLabelValues(exchange, endpoint, status).Inc()
	ExchangeAPILatency.WithLabelValues(exchange, endpoint).Observe(latency.Seconds())
}

// RecordDelivery records one alert message delivery attempt
func RecordDelivery(err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	AlertsDelivered.WithLabelValues(status).Inc()
}
