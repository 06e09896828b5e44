// Package metrics exposes the gateway's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gateway_connections_active",
		Help: "The current number of open WebSocket connections.",
	})
	TotalConnections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_connections_total",
		Help: "The total number of WebSocket connections accepted.",
	})
	HandshakeRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_handshake_rejections_total",
		Help: "The total number of connection attempts rejected during the handshake.",
	}, []string{"reason"})
	EventsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_events_dispatched_total",
		Help: "The total number of server events fanned out to connections.",
	}, []string{"type"})
	FramesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_client_frames_dropped_total",
		Help: "The total number of malformed or unknown client frames dropped.",
	})
)
