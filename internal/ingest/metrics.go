package ingest

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics aggregates per-table ingestion outcomes for prometheus scraping.
// A nil *Metrics disables instrumentation.
type Metrics struct {
	ingests  *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics builds the collectors and registers them on reg when non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ingests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "icephys_ingest_total",
			Help: "Ingestion attempts by table and outcome.",
		}, []string{"table", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "icephys_ingest_duration_seconds",
			Help:    "Wall time of single-key ingestion runs by table.",
			Buckets: prometheus.DefBuckets,
		}, []string{"table"}),
	}
	if reg != nil {
		reg.MustRegister(m.ingests, m.duration)
	}
	return m
}

func (m *Metrics) observe(table string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.ingests.WithLabelValues(table, status).Inc()
	m.duration.WithLabelValues(table).Observe(elapsed.Seconds())
}
