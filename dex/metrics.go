package dex

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all the Prometheus metrics for the exchange.
type Metrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	poolsTotal        prometheus.Gauge
	poolReserves      *prometheus.GaugeVec
	poolShares        *prometheus.GaugeVec
	swapVolume        *prometheus.CounterVec
}

// NewMetrics creates and registers the metrics for the exchange.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dex",
			Name:      "operations_total",
			Help:      "Exchange operations, labeled by operation and result.",
		}, []string{"operation", "result"}),
		operationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dex",
			Name:      "operation_duration_seconds",
			Help:      "Time taken by exchange operations, token transfers included.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		poolsTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "dex",
			Name:      "pools",
			Help:      "Number of pools created.",
		}),
		poolReserves: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "dex",
			Name:      "pool_reserve",
			Help:      "Pool reserve in base units, approximated as a float.",
		}, []string{"pool", "token"}),
		poolShares: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "dex",
			Name:      "pool_total_shares",
			Help:      "Outstanding liquidity shares, approximated as a float.",
		}, []string{"pool"}),
		swapVolume: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dex",
			Name:      "swap_volume",
			Help:      "Swap input volume in base units, approximated as a float.",
		}, []string{"pool", "token"}),
	}
	reg.MustRegister(m.operationsTotal, m.operationDuration, m.poolsTotal, m.poolReserves, m.poolShares, m.swapVolume)
	return m
}
