package cluster

import "github.com/prometheus/client_golang/prometheus"

var (
	schedulerStartupDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "daskpool_cluster_scheduler_startup_seconds",
			Help:    "Time from scheduler spawn until its port accepts connections.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)

	launchFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "daskpool_cluster_launch_failures_total",
			Help: "Total number of worker launch slots that returned an error payload.",
		},
	)

	clustersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "daskpool_cluster_runs_total",
			Help: "Total number of cluster bring-ups by result.",
		},
		[]string{"result"},
	)
)

// Result label values for clustersTotal.
const (
	resultReadyLabel   = "ready"
	resultPartialLabel = "partial"
	resultErrorLabel   = "error"
)

func init() {
	prometheus.MustRegister(schedulerStartupDuration)
	prometheus.MustRegister(launchFailuresTotal)
	prometheus.MustRegister(clustersTotal)

	clustersTotal.WithLabelValues(resultReadyLabel)
	clustersTotal.WithLabelValues(resultPartialLabel)
	clustersTotal.WithLabelValues(resultErrorLabel)
}
