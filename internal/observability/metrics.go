// Package observability provides Prometheus metrics for script runs.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RunBuckets covers interactive analysis scripts, from 50ms to 2m.
var RunBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120}

// OutcomeSuccess labels runs that completed without error.
const OutcomeSuccess = "success"

var (
	// RunsTotal counts finished runs by outcome: success or an error kind.
	RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scriptlab_runs_total",
			Help: "Script runs",
		},
		[]string{"outcome"},
	)

	// RunDuration records wall time spent inside the sandbox.
	RunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scriptlab_run_duration_seconds",
			Help:    "Script run duration",
			Buckets: RunBuckets,
		},
		[]string{"outcome"},
	)

	// RunsInFlight tracks runs currently executing.
	RunsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "scriptlab_runs_in_flight",
			Help: "Runs in flight",
		},
	)

	// ParametersDetectedTotal counts tunable parameters found, by category.
	ParametersDetectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scriptlab_parameters_detected_total",
			Help: "Detected parameters",
		},
		[]string{"category"},
	)

	// FiguresTotal counts figures rendered by scripts.
	FiguresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scriptlab_figures_total",
			Help: "Rendered figures",
		},
	)

	// UnavailableHandlesTotal counts library handles that failed to bind.
	UnavailableHandlesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scriptlab_unavailable_handles_total",
			Help: "Unavailable library handles",
		},
		[]string{"handle"},
	)

	// InvalidRequestsTotal counts broker messages that were skipped.
	InvalidRequestsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scriptlab_invalid_requests_total",
			Help: "Skipped invalid requests",
		},
	)
)

func init() {
	prometheus.MustRegister(
		RunsTotal,
		RunDuration,
		RunsInFlight,
		ParametersDetectedTotal,
		FiguresTotal,
		UnavailableHandlesTotal,
		InvalidRequestsTotal,
	)
}

// ObserveRun records one finished run.
func ObserveRun(outcome string, duration time.Duration, figures int, unavailable []string) {
	RunsTotal.WithLabelValues(outcome).Inc()
	RunDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	FiguresTotal.Add(float64(figures))
	for _, handle := range unavailable {
		UnavailableHandlesTotal.WithLabelValues(handle).Inc()
	}
}
