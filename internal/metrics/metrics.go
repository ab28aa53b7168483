package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	UpstreamCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherreminder_upstream_calls_total",
			Help: "Total upstream weather and geocoding API calls",
		},
		[]string{"endpoint", "status"},
	)

	UpstreamLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "weatherreminder_upstream_latency_seconds",
			Help:    "Upstream API call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherreminder_cache_lookups_total",
			Help: "Weather cache lookups by period and result (hit, miss, error)",
		},
		[]string{"period", "result"},
	)

	SnapshotsStored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherreminder_snapshots_stored_total",
			Help: "Total weather snapshots upserted into the store",
		},
		[]string{"period"},
	)

	RefreshRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherreminder_subscription_refreshes_total",
			Help: "Subscription refreshes by outcome",
		},
		[]string{"status"},
	)
)
