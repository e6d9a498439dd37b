// Package metrics exposes the hub's Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Tracks outbound calls to the rate providers.
	ProviderRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hub_provider_requests_total",
			Help: "Total number of rate provider fetches (by source and outcome).",
		},
		[]string{"source", "outcome"},
	)

	// Measures duration of a full cache refresh.
	RefreshDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hub_rates_refresh_duration_seconds",
			Help:    "Duration of a full rate cache refresh in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms → ~16s
		},
	)

	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hub_rate_cache_lookups_total",
			Help: "Rate cache lookups by result (fresh, derived, refreshed, unavailable).",
		},
		[]string{"result"},
	)

	TradesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hub_trades_total",
			Help: "Settlement outcomes by side and status.",
		},
		[]string{"side", "status"},
	)

	NATSPublishErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nats_publish_errors_total",
			Help: "Number of NATS publish failures",
		},
		[]string{"subject"},
	)
)

// ObserveRefresh records the time taken by a cache refresh.
func ObserveRefresh(start time.Time) {
	RefreshDuration.Observe(time.Since(start).Seconds())
}

// IncProviderRequest counts one provider fetch attempt.
func IncProviderRequest(source, outcome string) {
	ProviderRequestsTotal.WithLabelValues(source, outcome).Inc()
}

// IncCacheLookup counts one cache lookup result.
func IncCacheLookup(result string) {
	CacheLookupsTotal.WithLabelValues(result).Inc()
}

// IncTrade counts one settlement outcome.
func IncTrade(side, status string) {
	TradesTotal.WithLabelValues(side, status).Inc()
}
