package tint

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors of a Service. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	CacheHits          prometheus.Counter
	CacheMisses        prometheus.Counter
	Extractions        *prometheus.CounterVec
	StoreErrors        *prometheus.CounterVec
	InFlight           prometheus.Gauge
	ExtractionDuration prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// creates unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "poster_tint_cache_hits_total",
			Help: "Color lookups served from the cache.",
		}),
		CacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "poster_tint_cache_misses_total",
			Help: "Color lookups that required an extraction.",
		}),
		Extractions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "poster_tint_extractions_total",
			Help: "Completed extractions by outcome.",
		}, []string{"outcome"}), // outcome: histogram, load_failed, empty_histogram, panic
		StoreErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "poster_tint_store_errors_total",
			Help: "Swallowed persistence failures by operation.",
		}, []string{"op"}),
		InFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "poster_tint_extractions_in_flight",
			Help: "Extractions currently running.",
		}),
		ExtractionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "poster_tint_extraction_duration_seconds",
			Help:    "Duration of extractions, load included.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8},
		}),
	}
}

func (m *Metrics) hit() {
	if m != nil {
		m.CacheHits.Inc()
	}
}

func (m *Metrics) miss() {
	if m != nil {
		m.CacheMisses.Inc()
	}
}

func (m *Metrics) extracted(outcome string, d time.Duration) {
	if m != nil {
		m.Extractions.WithLabelValues(outcome).Inc()
		m.ExtractionDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) storeError(op string) {
	if m != nil {
		m.StoreErrors.WithLabelValues(op).Inc()
	}
}

func (m *Metrics) started() {
	if m != nil {
		m.InFlight.Inc()
	}
}

func (m *Metrics) finished() {
	if m != nil {
		m.InFlight.Dec()
	}
}
