package await

import "github.com/prometheus/client_golang/prometheus"

// Metric label values for worker outcomes.
const (
	outcomeSucceededLabel = "succeeded"
	outcomeFailedLabel    = "failed"
	outcomeTimedOutLabel  = "timedout"
)

var (
	pollsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "daskpool_await_polls_total",
			Help: "Total number of worker listing snapshots taken by the awaiter.",
		},
	)

	workersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "daskpool_await_workers_total",
			Help: "Total number of awaited workers by outcome.",
		},
		[]string{"outcome"},
	)

	awaitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "daskpool_await_duration_seconds",
			Help:    "Wall-clock duration of await calls, in seconds.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)
)

func init() {
	prometheus.MustRegister(pollsTotal)
	prometheus.MustRegister(workersTotal)
	prometheus.MustRegister(awaitDuration)

	workersTotal.WithLabelValues(outcomeSucceededLabel)
	workersTotal.WithLabelValues(outcomeFailedLabel)
	workersTotal.WithLabelValues(outcomeTimedOutLabel)
}
