package server

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for the socket server.
type Metrics struct {
	Connections     prometheus.Gauge   // Currently open socket connections
	RejectedOrigins prometheus.Counter // Connections closed for a disallowed origin
	MalformedTotal  prometheus.Counter // Frames that did not decode as a message
}

// NewMetrics creates the server metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	connections := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "socket_connections",
		Help: "Currently open socket connections",
	})

	rejectedOrigins := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "socket_rejected_origins_total",
		Help: "Total number of connections closed for a disallowed origin",
	})

	malformedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "socket_malformed_messages_total",
		Help: "Total number of frames that did not decode as a message",
	})

	reg.MustRegister(connections)
	reg.MustRegister(rejectedOrigins)
	reg.MustRegister(malformedTotal)

	return &Metrics{
		Connections:     connections,
		RejectedOrigins: rejectedOrigins,
		MalformedTotal:  malformedTotal,
	}
}
