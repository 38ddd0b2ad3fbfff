package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Operation labels. Requests are labelled by the worker API operation they
// map to, never by raw path.
const (
	opLaunch   = "launch"
	opList     = "list"
	opGet      = "get"
	opStop     = "stop"
	opLogs     = "logs"
	opRuntimes = "runtimes"
	opStats    = "stats"
	opHealth   = "health"
	opMetrics  = "metrics"
	opOther    = "other"
)

// Launch slot and stop outcome labels.
const (
	slotAccepted = "accepted"
	slotRejected = "rejected"

	stopStopped  = "stopped"
	stopFinished = "already_finished"
	stopNotFound = "not_found"

	// unsupportedRuntime replaces runtimes the registry does not know, which
	// keeps client input out of label values.
	unsupportedRuntime = "unsupported"
)

var operations = map[string]string{
	"POST /v1/workers":          opLaunch,
	"GET /v1/workers":           opList,
	"GET /v1/workers/{id}":      opGet,
	"DELETE /v1/workers/{id}":   opStop,
	"GET /v1/workers/{id}/logs": opLogs,
	"GET /v1/runtimes":          opRuntimes,
	"GET /v1/stats":             opStats,
	"GET /healthz":              opHealth,
	"GET /metrics":              opMetrics,
}

var (
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "daskpool_api_requests_total",
			Help: "Worker API requests by operation and status class.",
		},
		[]string{"op", "code"},
	)

	// DELETE waits for the worker to stop, so the buckets reach past the
	// default stop grace.
	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "daskpool_api_request_duration_seconds",
			Help:    "Worker API request duration in seconds. Log streams are not observed.",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"op"},
	)

	launchSlotsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "daskpool_api_launch_slots_total",
			Help: "Launch slots answered by POST /v1/workers, by runtime and result.",
		},
		[]string{"runtime", "result"},
	)

	stopsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "daskpool_api_stops_total",
			Help: "DELETE /v1/workers/{id} requests by result.",
		},
		[]string{"result"},
	)

	logStreams = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "daskpool_api_log_streams",
		Help: "Open worker log streams.",
	})
)

func init() {
	prometheus.MustRegister(requestsTotal, requestDuration, launchSlotsTotal, stopsTotal, logStreams)

	for _, result := range []string{stopStopped, stopFinished, stopNotFound} {
		stopsTotal.WithLabelValues(result)
	}
	launchSlotsTotal.WithLabelValues(unsupportedRuntime, slotRejected)
}

// operation maps a routed request to its operation label.
func operation(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil || rctx.RoutePattern() == "" {
		return opOther
	}
	if op, ok := operations[r.Method+" "+rctx.RoutePattern()]; ok {
		return op
	}
	return opOther
}

// statusClass folds a status code into "2xx", "4xx" and so on.
func statusClass(code int) string {
	if code == 0 {
		code = http.StatusOK
	}
	return strconv.Itoa(code/100) + "xx"
}

// recordRequest observes one finished request.
func recordRequest(op string, code int, seconds float64) {
	requestsTotal.WithLabelValues(op, statusClass(code)).Inc()
	// Log streams last as long as the worker.
	if op != opLogs {
		requestDuration.WithLabelValues(op).Observe(seconds)
	}
}

// metricsHandler returns the Prometheus metrics handler.
func metricsHandler() http.Handler {
	return promhttp.Handler()
}
