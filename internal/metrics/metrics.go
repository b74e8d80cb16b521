// Package metrics declares the engine's Prometheus instrumentation
// (SPEC_FULL.md ambient stack). Every metric is constructed via promauto so
// registration happens once at import time and call sites never handle a
// registration error.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BusAppendSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "orgloop_bus_append_seconds",
		Help:    "Latency of WAL bus Append calls, including fsync.",
		Buckets: prometheus.DefBuckets,
	})

	BusAppendedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orgloop_bus_appended_total",
		Help: "Total events appended to the WAL, by source.",
	}, []string{"source"})

	SourcePollTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orgloop_source_poll_total",
		Help: "Total poll attempts, by source and outcome.",
	}, []string{"source", "outcome"})

	RouteMatchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orgloop_route_matched_total",
		Help: "Total events matched to a route, by route name.",
	}, []string{"route"})

	TransformDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orgloop_transform_dropped_total",
		Help: "Total events dropped by a route's transform chain, by route and reason (filtered or error).",
	}, []string{"route", "transform"})

	DeliveryAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orgloop_delivery_attempts_total",
		Help: "Total delivery attempts, by actor and terminal status.",
	}, []string{"actor", "status"})

	DeliveryDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "orgloop_delivery_duration_seconds",
		Help:    "Latency of actor.Deliver calls, by actor.",
		Buckets: prometheus.DefBuckets,
	}, []string{"actor"})

	ActorQueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "orgloop_actor_queue_depth",
		Help: "Current number of jobs queued per actor.",
	}, []string{"actor"})

	ListenerRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orgloop_listener_requests_total",
		Help: "Total HTTP requests handled by the listener, by path kind and status class.",
	}, []string{"kind", "status_class"})

	CheckpointWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orgloop_checkpoint_writes_total",
		Help: "Total checkpoint store writes, by source and outcome.",
	}, []string{"source", "outcome"})
)
