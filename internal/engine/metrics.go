package engine

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/seantiz/daskpool/internal/model"
)

var (
	activeWorkers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "daskpool_engine_active_workers",
			Help: "Number of workers currently scheduling or running.",
		},
	)

	workersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "daskpool_engine_workers_total",
			Help: "Total number of finished workers by runtime and terminal status.",
		},
		[]string{"runtime", "status"},
	)

	rejectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "daskpool_engine_rejected_launches_total",
			Help: "Total number of launch slots rejected with an error payload.",
		},
	)
)

func init() {
	prometheus.MustRegister(activeWorkers)
	prometheus.MustRegister(workersTotal)
	prometheus.MustRegister(rejectedTotal)

	for _, rt := range []string{model.RuntimeShell, model.RuntimePython} {
		for _, st := range []string{model.StatusSucceeded, model.StatusFailed, model.StatusTimedOut, model.StatusStopped} {
			workersTotal.WithLabelValues(rt, st)
		}
	}
}
