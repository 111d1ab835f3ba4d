package differ

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all the Prometheus metrics for the differ.
type Metrics struct {
	diffDuration     *prometheus.HistogramVec
	protocolDuration *prometheus.HistogramVec
	diffsTotal       *prometheus.CounterVec
}

// NewMetrics creates and registers the metrics for the differ.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		diffDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "differ_diff_duration_seconds",
			Help:    "Total time taken to compute the full state diff.",
			Buckets: prometheus.DefBuckets,
		}, []string{}),
		protocolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "differ_protocol_duration_seconds",
			Help:    "Time taken to compute the diff for a single protocol.",
			Buckets: prometheus.DefBuckets,
		}, []string{"protocol"}),
		diffsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "differ_diffs_total",
			Help: "Total number of protocol diffs computed, labeled by protocol and result.",
		}, []string{"protocol", "result"}),
	}
	reg.MustRegister(m.diffDuration, m.protocolDuration, m.diffsTotal)
	return m
}
