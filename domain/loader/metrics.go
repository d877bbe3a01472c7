package loader

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the load counters exported on /metrics.
type Metrics struct {
	loaded  *prometheus.CounterVec
	skipped *prometheus.CounterVec
	batch   *prometheus.HistogramVec
}

// NewMetrics creates and registers the load metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		loaded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ageload_items_loaded_total",
			Help: "Nodes or edges committed to the graph.",
		}, []string{"kind", "strategy"}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ageload_items_skipped_total",
			Help: "Edges skipped because an endpoint was missing or the statement failed.",
		}, []string{"kind", "strategy"}),
		batch: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ageload_batch_duration_seconds",
			Help:    "Time to write and commit one chunk.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 14),
		}, []string{"kind", "strategy"}),
	}
	reg.MustRegister(m.loaded, m.skipped, m.batch)
	return m
}

func (m *Metrics) observe(kind Kind, strategy string, loaded, skipped int, d time.Duration) {
	if m == nil {
		return
	}
	m.loaded.WithLabelValues(string(kind), strategy).Add(float64(loaded))
	m.skipped.WithLabelValues(string(kind), strategy).Add(float64(skipped))
	m.batch.WithLabelValues(string(kind), strategy).Observe(d.Seconds())
}
