package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AcquireTotal tracks stream acquisition outcomes by error kind.
	AcquireTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camflip_acquire_total",
		Help: "Total number of stream acquisition attempts by result and error kind",
	}, []string{"result", "kind"})

	// AcquireDuration tracks how long a stream request took to settle,
	// including time spent waiting on permission.
	AcquireDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "camflip_acquire_duration_seconds",
		Help:    "Time from stream request to success or failure",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	})

	// ToggleTotal tracks facing-mode toggle and device switch outcomes.
	ToggleTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camflip_toggle_total",
		Help: "Total number of camera switch attempts by outcome",
	}, []string{"outcome"})

	// LiveStreams is the number of streams acquired and not yet stopped.
	LiveStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "camflip_live_streams",
		Help: "Streams currently holding camera hardware",
	})

	// StateTransitions counts session state changes.
	StateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camflip_session_transitions_total",
		Help: "Session state transitions by target state",
	}, []string{"state"})
)

// ObserveAcquire records an acquisition attempt.
func ObserveAcquire(kind string, duration time.Duration) {
	result := "success"
	if kind != "" {
		result = "failure"
	}
	AcquireTotal.WithLabelValues(result, kind).Inc()
	AcquireDuration.Observe(duration.Seconds())
}

// IncToggle records a switch attempt outcome.
func IncToggle(outcome string) {
	ToggleTotal.WithLabelValues(outcome).Inc()
}

// IncTransition records a state change.
func IncTransition(state string) {
	StateTransitions.WithLabelValues(state).Inc()
}
