package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsDecoded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "presence",
		Name:      "events_decoded_total",
		Help:      "Total number of push-channel events decoded, by type",
	}, []string{"type"})

	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "presence",
		Name:      "events_dropped_total",
		Help:      "Total number of malformed push-channel messages dropped",
	})

	ActiveSessions = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "presence",
		Name:      "active_sessions",
		Help:      "Number of currently open presence sessions, by subject kind",
	}, []string{"kind"})

	SessionsClosed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "presence",
		Name:      "sessions_closed_total",
		Help:      "Total number of presence sessions closed, by subject kind",
	}, []string{"kind"})

	UnknownQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "presence",
		Name:      "unknown_queue_depth",
		Help:      "Number of unresolved unknown sightings in the queue",
	})

	Resolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "presence",
		Name:      "resolutions_total",
		Help:      "Total number of operator resolutions applied, by outcome",
	}, []string{"outcome"})

	DetectorReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "presence",
		Name:      "detector_reconnects_total",
		Help:      "Total number of detector push-channel reconnect attempts",
	})

	HeartbeatsSent = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "presence",
		Name:      "heartbeats_sent_total",
		Help:      "Total number of heartbeat pings sent on the push channel",
	})

	Resyncs = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "presence",
		Name:      "resyncs_total",
		Help:      "Total number of full state resyncs after (re)connect",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "presence",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "presence",
		Name:      "ws_connections",
		Help:      "Number of active dashboard WebSocket connections",
	})

	RollupsGenerated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "presence",
		Name:      "rollups_generated_total",
		Help:      "Total number of daily attendance rollups generated",
	})
)
