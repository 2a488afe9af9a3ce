// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the engine.
type Metrics struct {
	// Feed metrics
	FeedEventsReceived  prometheus.Counter
	FeedEventsDropped   prometheus.Counter
	FeedEventsDuplicate prometheus.Counter
	FeedReconnects      prometheus.Counter
	FeedQueueDepth      prometheus.Gauge

	// Safety metrics
	CandidatesScreened *prometheus.CounterVec

	// Entry metrics
	EntriesSubmitted prometheus.Counter
	EntriesRejected  *prometheus.CounterVec
	BuyOutcomes      *prometheus.CounterVec

	// Exit metrics
	ExitsFired   *prometheus.CounterVec
	SellOutcomes *prometheus.CounterVec
	SellAttempts prometheus.Histogram

	// State metrics
	OpenPositions   prometheus.Gauge
	Observers       prometheus.Gauge
	ActiveTelemetry prometheus.Gauge
	RealizedPnLSOL  prometheus.Gauge
	BreakerHalted   prometheus.Gauge

	// Latency metrics
	CommandLatency *prometheus.HistogramVec
	RPCCallLatency *prometheus.HistogramVec
}

// NewMetrics creates a Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "raysniper"
	}

	return &Metrics{
		FeedEventsReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "events_received_total",
			Help:      "Total number of feed events received",
		}),
		FeedEventsDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "events_dropped_total",
			Help:      "Total number of feed events dropped by the bounded queue",
		}),
		FeedEventsDuplicate: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "events_duplicate_total",
			Help:      "Total number of duplicate migration events suppressed",
		}),
		FeedReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "reconnects_total",
			Help:      "Total number of feed reconnect attempts",
		}),
		FeedQueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "queue_depth",
			Help:      "Current depth of the feed event queue",
		}),

		CandidatesScreened: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "safety",
			Name:      "candidates_screened_total",
			Help:      "Total number of candidates screened by verdict",
		}, []string{"verdict"}),

		EntriesSubmitted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "entry",
			Name:      "submitted_total",
			Help:      "Total number of buy orders submitted",
		}),
		EntriesRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "entry",
			Name:      "rejected_total",
			Help:      "Total number of entry requests rejected by reason",
		}, []string{"reason"}),
		BuyOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "entry",
			Name:      "buy_outcomes_total",
			Help:      "Total number of buy outcomes by result",
		}, []string{"result"}),

		ExitsFired: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "exit",
			Name:      "fired_total",
			Help:      "Total number of exits fired by reason",
		}, []string{"reason"}),
		SellOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "exit",
			Name:      "sell_outcomes_total",
			Help:      "Total number of sell outcomes by result",
		}, []string{"result"}),
		SellAttempts: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "exit",
			Name:      "sell_attempts",
			Help:      "Number of attempts per completed sell",
			Buckets:   []float64{1, 2, 3, 4, 5, 8},
		}),

		OpenPositions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "state",
			Name:      "open_positions",
			Help:      "Number of positions currently at risk",
		}),
		Observers: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "state",
			Name:      "observers",
			Help:      "Number of mints under observation",
		}),
		ActiveTelemetry: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "state",
			Name:      "active_telemetry",
			Help:      "Number of active per-mint feature subscriptions",
		}),
		RealizedPnLSOL: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "state",
			Name:      "realized_pnl_sol",
			Help:      "Realized profit and loss in SOL",
		}),
		BreakerHalted: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "state",
			Name:      "breaker_halted",
			Help:      "1 when the circuit breaker is halted, 0 when armed",
		}),

		CommandLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "command_latency_seconds",
			Help:      "Command apply latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"type"}),
		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "rpc_call_latency_seconds",
			Help:      "Chain RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Default is the process-wide metrics instance.
var Default = NewMetrics("")

func RecordFeedEvent()     { Default.FeedEventsReceived.Inc() }
func RecordFeedDrop()      { Default.FeedEventsDropped.Inc() }
func RecordFeedDuplicate() { Default.FeedEventsDuplicate.Inc() }
func RecordFeedReconnect() { Default.FeedReconnects.Inc() }

func SetFeedQueueDepth(n int) { Default.FeedQueueDepth.Set(float64(n)) }

func RecordVerdict(verdict string) {
	Default.CandidatesScreened.WithLabelValues(verdict).Inc()
}

func RecordEntrySubmitted() { Default.EntriesSubmitted.Inc() }

func RecordEntryRejected(reason string) {
	Default.EntriesRejected.WithLabelValues(reason).Inc()
}

func RecordBuyOutcome(result string) {
	Default.BuyOutcomes.WithLabelValues(result).Inc()
}

func RecordExitFired(reason string) {
	Default.ExitsFired.WithLabelValues(reason).Inc()
}

func RecordSellOutcome(result string, attempts int) {
	Default.SellOutcomes.WithLabelValues(result).Inc()
	Default.SellAttempts.Observe(float64(attempts))
}

func RecordRPCLatency(method string, seconds float64) {
	Default.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}
