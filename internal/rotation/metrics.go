package rotation

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	stepStartedTotal   *prometheus.CounterVec
	stepCompletedTotal *prometheus.CounterVec
	stepDuration       *prometheus.HistogramVec

	metricsOnce sync.Once
)

// Metrics records rotation step outcomes. Metrics are lazily registered
// on first use so short-lived step invocations pay nothing unless the
// serve harness exposes them.
type Metrics struct{}

// NewMetrics creates a Metrics instance, registering the collectors once.
func NewMetrics() *Metrics {
	InitMetrics()
	return &Metrics{}
}

// InitMetrics initializes all Prometheus collectors. Safe to call more
// than once.
func InitMetrics() {
	metricsOnce.Do(func() {
		stepStartedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pgrotate_step_started_total",
				Help: "Total number of rotation steps started",
			},
			[]string{"step"},
		)

		stepCompletedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pgrotate_step_completed_total",
				Help: "Total number of rotation steps completed",
			},
			[]string{"step", "status"},
		)

		stepDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pgrotate_step_duration_seconds",
				Help:    "Duration of rotation steps in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30},
			},
			[]string{"step"},
		)
	})
}

// RecordStarted counts a step invocation.
func (m *Metrics) RecordStarted(step Step) {
	stepStartedTotal.WithLabelValues(string(step)).Inc()
}

// RecordCompleted counts a step outcome and observes its duration.
func (m *Metrics) RecordCompleted(step Step, err error, elapsed time.Duration) {
	status := "success"
	if err != nil {
		status = "error"
	}
	stepCompletedTotal.WithLabelValues(string(step), status).Inc()
	stepDuration.WithLabelValues(string(step)).Observe(elapsed.Seconds())
}
