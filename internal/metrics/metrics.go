// Package metrics exposes Prometheus instrumentation for generation runs.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Entity generation metrics
	EntitiesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "journeysim_entities_total",
			Help: "Total number of entities processed",
		},
		[]string{"vertical", "status"},
	)

	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "journeysim_timeline_events_total",
			Help: "Total number of timeline events emitted",
		},
		[]string{"vertical", "status"},
	)

	LinkedEntitiesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "journeysim_linked_entities_total",
			Help: "Total number of cross-vertical linked entities created",
		},
	)

	TimelineBuildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "journeysim_timeline_build_duration_seconds",
			Help:    "Duration of per-entity timeline construction in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Sink metrics
	SinkWriteDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "journeysim_sink_write_duration_seconds",
			Help:    "Duration of result sink writes in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	SinkErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "journeysim_sink_errors_total",
			Help: "Total number of sink write errors",
		},
	)
)
