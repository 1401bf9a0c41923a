package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	UpstreamCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agroclimate_upstream_calls_total",
			Help: "Total calls to upstream climate sources",
		},
		[]string{"source", "status"},
	)

	UpstreamLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agroclimate_upstream_latency_seconds",
			Help:    "Upstream climate source call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	ChunksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agroclimate_chunks_total",
			Help: "Date-range chunks fetched, by outcome",
		},
		[]string{"source", "outcome"},
	)

	RecordsNormalized = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agroclimate_records_normalized_total",
			Help: "Daily payloads normalized, by outcome (kept or dropped)",
		},
		[]string{"source", "outcome"},
	)

	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agroclimate_cache_lookups_total",
			Help: "Series cache lookups, by result",
		},
		[]string{"result"},
	)
)
