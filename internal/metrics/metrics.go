package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Set bundles the service's prometheus collectors on an explicit registry so
// multiple instances can coexist in tests.
type Set struct {
	registry *prometheus.Registry

	QueueDepth         prometheus.Gauge
	ItemsProcessed     *prometheus.CounterVec
	ProcessingDuration prometheus.Histogram
	EngineReady        prometheus.Gauge
	RequestsTotal      *prometheus.CounterVec
}

func New() *Set {
	s := &Set{
		registry: prometheus.NewRegistry(),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "voxbatch_queue_depth",
			Help: "Number of work items waiting in the batch queue",
		}),
		ItemsProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voxbatch_items_processed_total",
				Help: "Batch items processed, by outcome",
			},
			[]string{"outcome"},
		),
		ProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "voxbatch_item_processing_duration_seconds",
			Help:    "Wall time spent per batch item, success or failure",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		EngineReady: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "voxbatch_engine_ready",
			Help: "Whether the shared whisper engine is loaded (1) or not (0)",
		}),
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voxbatch_http_requests_total",
				Help: "HTTP requests handled, by endpoint and outcome",
			},
			[]string{"endpoint", "outcome"},
		),
	}

	s.registry.MustRegister(
		s.QueueDepth,
		s.ItemsProcessed,
		s.ProcessingDuration,
		s.EngineReady,
		s.RequestsTotal,
	)
	return s
}

// Handler serves the exposition endpoint for this set's registry.
func (s *Set) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}
