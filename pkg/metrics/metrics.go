// Package metrics exposes the engine's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheLookups counts result-cache lookups by outcome (hit, miss, error).
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fedsearch_cache_lookups_total",
			Help: "Result cache lookups by outcome",
		},
		[]string{"outcome"},
	)

	// CacheWrites counts result-cache writes by outcome (stored, error).
	CacheWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fedsearch_cache_writes_total",
			Help: "Result cache writes by outcome",
		},
		[]string{"outcome"},
	)

	// SearchDuration tracks end-to-end search latency by mode and cache state.
	SearchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fedsearch_search_duration_seconds",
			Help:    "End-to-end search latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mode", "cached"},
	)

	// SourceFailures counts per-source fan-out failures by stage.
	SourceFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fedsearch_source_failures_total",
			Help: "Per-source fan-out failures by stage",
		},
		[]string{"stage"},
	)

	// RegisteredPools tracks the number of live datasource pools.
	RegisteredPools = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fedsearch_registered_pools",
			Help: "Number of live datasource connection pools",
		},
	)

	// AIRewrites counts semantic-rewrite attempts by outcome
	// (applied, low_confidence, unavailable, timeout).
	AIRewrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fedsearch_ai_rewrites_total",
			Help: "Semantic query rewrite attempts by outcome",
		},
		[]string{"outcome"},
	)
)
