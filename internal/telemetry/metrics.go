// Package telemetry provides observability primitives for the kycgate service.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ActiveRequests  prometheus.Gauge
	CacheHits       *prometheus.CounterVec
	CacheMisses     *prometheus.CounterVec
	CacheExpired    *prometheus.CounterVec
	ChainDuration   *prometheus.HistogramVec
	ChainErrors     *prometheus.CounterVec
	BreakerRejects  *prometheus.CounterVec
	ChainHeadBlock  prometheus.Gauge

	reg prometheus.Registerer
}

// NewMetrics creates and registers all metrics with the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		reg: reg,

		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kycgate",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "path", "namespace", "status"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:                       "kycgate",
			Name:                            "request_duration_seconds",
			Help:                            "HTTP request duration in seconds.",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 0,
		}, []string{"method", "path", "namespace"}),

		ActiveRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "kycgate",
			Name:      "active_requests",
			Help:      "Number of currently active requests.",
		}),

		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kycgate",
			Name:      "cache_hits_total",
			Help:      "Total cache hits per namespace.",
		}, []string{"namespace"}),

		CacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kycgate",
			Name:      "cache_misses_total",
			Help:      "Total cache misses per namespace.",
		}, []string{"namespace"}),

		CacheExpired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kycgate",
			Name:      "cache_expired_total",
			Help:      "Total entries dropped on read because their TTL elapsed.",
		}, []string{"namespace"}),

		ChainDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:                       "kycgate",
			Name:                            "chain_call_duration_seconds",
			Help:                            "Chain JSON-RPC call duration in seconds.",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 0,
		}, []string{"method"}),

		ChainErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kycgate",
			Name:      "chain_errors_total",
			Help:      "Total failed chain JSON-RPC calls.",
		}, []string{"method"}),

		BreakerRejects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kycgate",
			Name:      "chain_breaker_rejects_total",
			Help:      "Chain calls rejected by an open circuit breaker.",
		}, []string{"method"}),

		ChainHeadBlock: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "kycgate",
			Name:      "chain_head_block",
			Help:      "Latest block number observed by the block watcher.",
		}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.ActiveRequests,
		m.CacheHits,
		m.CacheMisses,
		m.CacheExpired,
		m.ChainDuration,
		m.ChainErrors,
		m.BreakerRejects,
		m.ChainHeadBlock,
	)

	return m
}
