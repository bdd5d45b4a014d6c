// Package metrics holds the Prometheus collectors shared by the ingest
// pipeline and the HTTP server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "endpoint", "status"})

	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint"})

	MessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "swing_messages_total",
		Help: "Inbound messages by type and transport",
	}, []string{"type", "transport"})

	SamplesIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "swing_samples_ingested_total",
		Help: "Total number of samples accepted into session windows",
	})

	SamplesRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "swing_samples_rejected_total",
		Help: "Total number of samples rejected for non-monotonic timestamps",
	})

	SwingsDetected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "swings_detected_total",
		Help: "Total number of swings detected",
	})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "swing_active_sessions",
		Help: "Number of active sessions",
	})

	PersistQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "swing_persist_queue_depth",
		Help: "Persistence operations waiting in the writer queue",
	})

	PersistDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "swing_persist_dropped_total",
		Help: "Persistence operations dropped because the queue was full",
	})

	PersistFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "swing_persist_failures_total",
		Help: "Persistence operations that returned an error",
	}, []string{"op"})
)
