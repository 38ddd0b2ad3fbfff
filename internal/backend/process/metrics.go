package process

import "github.com/prometheus/client_golang/prometheus"

// Metric label values for run status.
const (
	statusCompleted = "completed"
	statusFailed    = "failed"
	statusKilled    = "killed"
)

var (
	activeProcesses = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "daskpool_process_active",
			Help: "Number of worker processes currently running.",
		},
	)

	runDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "daskpool_process_run_seconds",
			Help:    "Duration of worker processes that exited on their own, in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)

	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "daskpool_process_runs_total",
			Help: "Total number of worker processes run by the process backend.",
		},
		[]string{"runtime", "status"},
	)
)

func init() {
	prometheus.MustRegister(activeProcesses)
	prometheus.MustRegister(runDuration)
	prometheus.MustRegister(runsTotal)

	// Pre-initialize counter label combinations so they appear in /metrics
	// with value 0 from startup, rather than only after first observation.
	for _, rt := range SupportedRuntimes {
		runsTotal.WithLabelValues(rt, statusCompleted)
		runsTotal.WithLabelValues(rt, statusFailed)
		runsTotal.WithLabelValues(rt, statusKilled)
	}
}
