package querycache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querycache_requests_total",
			Help: "Total number of cache lookups by kind and result (hit, stale, miss)",
		},
		[]string{"kind", "result"},
	)

	cacheFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querycache_fetches_total",
			Help: "Total number of completed fetches by kind and outcome (applied, failed, discarded)",
		},
		[]string{"kind", "outcome"},
	)

	cacheRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querycache_fetch_retries_total",
			Help: "Total number of fetch retries after a transient failure",
		},
		[]string{"kind"},
	)

	cacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "querycache_evictions_total",
			Help: "Total number of entries evicted by retention collection",
		},
	)

	cacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "querycache_entries",
			Help: "Current number of cache entries",
		},
	)
)
