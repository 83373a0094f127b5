package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the indexer's instrumentation. Each instance carries its
// own registry so tests never collide on registration.
type Metrics struct {
	registry *prometheus.Registry

	BlocksIndexed    prometheus.Counter
	EventsProcessed  *prometheus.CounterVec
	LogsSkipped      prometheus.Counter
	RangeFailures    prometheus.Counter
	LastIndexedBlock prometheus.Gauge
	ChainHead        prometheus.Gauge
	TrackedWallets   prometheus.Gauge
	BatchDuration    prometheus.Histogram
}

// New creates a Metrics with a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		BlocksIndexed: factory.NewCounter(prometheus.CounterOpts{
			Name: "indexer_blocks_indexed_total",
			Help: "Number of blocks the pipeline has indexed.",
		}),
		EventsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "indexer_events_processed_total",
			Help: "Number of decoded events projected, by event name.",
		}, []string{"event"}),
		LogsSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "indexer_logs_skipped_total",
			Help: "Number of logs skipped because they could not be decoded.",
		}),
		RangeFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "indexer_range_failures_total",
			Help: "Number of block ranges that failed and will be retried.",
		}),
		LastIndexedBlock: factory.NewGauge(prometheus.GaugeOpts{
			Name: "indexer_last_indexed_block",
			Help: "Highest block the checkpoint has been advanced to.",
		}),
		ChainHead: factory.NewGauge(prometheus.GaugeOpts{
			Name: "indexer_chain_head_block",
			Help: "Latest chain tip observed over RPC.",
		}),
		TrackedWallets: factory.NewGauge(prometheus.GaugeOpts{
			Name: "indexer_tracked_wallets",
			Help: "Number of wallet addresses in the tracked set.",
		}),
		BatchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "indexer_batch_duration_seconds",
			Help:    "Wall time spent indexing one block range.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
	}
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
