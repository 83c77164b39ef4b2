package session

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Run outcomes recorded by the driver.
const (
	outcomeCompleted = "completed"
	outcomeSuspended = "suspended"
	outcomeStopped   = "stopped"
	outcomeRejected  = "rejected"
	outcomeFailed    = "failed"
)

// Metrics holds Prometheus metrics for the session driver.
type Metrics struct {
	RunsTotal   *prometheus.CounterVec // Handled messages by outcome
	RunDuration prometheus.Histogram   // Time spent handling one message
}

// NewMetrics creates the driver metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	runsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "session_runs_total",
		Help: "Total number of handled messages by outcome",
	}, []string{"outcome"})

	runDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "session_run_duration_seconds",
		Help:    "Time spent handling one inbound message",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	reg.MustRegister(runsTotal)
	reg.MustRegister(runDuration)

	return &Metrics{
		RunsTotal:   runsTotal,
		RunDuration: runDuration,
	}
}

// RegisterGauges exports the number of known threads and of live
// checkpoints. store may be nil.
func RegisterGauges(reg prometheus.Registerer, registry *Registry, store interface{ Len() int }) {
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "session_threads",
		Help: "Number of users with a conversation thread",
	}, func() float64 { return float64(registry.Len()) }))

	if store != nil {
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "session_checkpoints",
			Help: "Number of thread checkpoints held in memory",
		}, func() float64 { return float64(store.Len()) }))
	}
}

func (m *Metrics) observe(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(outcome).Inc()
	m.RunDuration.Observe(elapsed.Seconds())
}
