package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/seantiz/daskpool/internal/model"
	"github.com/seantiz/daskpool/internal/remote"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestOperationLabels(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	tests := []struct {
		method, path string
		op, code     string
	}{
		{http.MethodGet, "/v1/workers", opList, "2xx"},
		{http.MethodGet, "/v1/workers/missing", opGet, "4xx"},
		{http.MethodGet, "/v1/workers/missing/logs", opLogs, "4xx"},
		{http.MethodDelete, "/v1/workers/missing", opStop, "4xx"},
		{http.MethodGet, "/v1/runtimes", opRuntimes, "2xx"},
		{http.MethodGet, "/nowhere", opOther, "4xx"},
	}
	for _, tc := range tests {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			c := requestsTotal.WithLabelValues(tc.op, tc.code)
			before := counterValue(t, c)

			req, _ := http.NewRequest(tc.method, ts.URL+tc.path, nil)
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("%s %s: %v", tc.method, tc.path, err)
			}
			resp.Body.Close()

			if got := counterValue(t, c) - before; got != 1 {
				t.Errorf("requests{op=%q,code=%q} delta = %v, want 1", tc.op, tc.code, got)
			}
		})
	}
}

func TestLaunchSlotsCounted(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	accepted := launchSlotsTotal.WithLabelValues(model.RuntimeShell, slotAccepted)
	unsupported := launchSlotsTotal.WithLabelValues(unsupportedRuntime, slotRejected)
	beforeAccepted := counterValue(t, accepted)
	beforeUnsupported := counterValue(t, unsupported)

	for _, body := range []string{
		`{"n":2,"runtime":"shell","code":"true"}`,
		`{"n":3,"runtime":"cobol","code":"x"}`,
	} {
		resp, err := http.Post(ts.URL+"/v1/workers", "application/json", bytes.NewBufferString(body))
		if err != nil {
			t.Fatalf("POST: %v", err)
		}
		resp.Body.Close()
	}

	if got := counterValue(t, accepted) - beforeAccepted; got != 2 {
		t.Errorf("accepted shell slots delta = %v, want 2", got)
	}
	if got := counterValue(t, unsupported) - beforeUnsupported; got != 3 {
		t.Errorf("rejected unsupported slots delta = %v, want 3", got)
	}
}

func TestStopOutcomesCounted(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	client := remote.NewHTTPClient(ts.URL)
	ctx := context.Background()
	results, err := client.LaunchWorkers(ctx, remote.LaunchRequest{N: 1, Runtime: model.RuntimeShell, Code: "true"})
	if err != nil {
		t.Fatalf("LaunchWorkers: %v", err)
	}
	id := results[0].ID

	stopped := stopsTotal.WithLabelValues(stopStopped)
	finished := stopsTotal.WithLabelValues(stopFinished)
	beforeStopped := counterValue(t, stopped)
	beforeFinished := counterValue(t, finished)

	// The first stop ends the worker; the second finds it finished.
	for range 2 {
		if err := client.StopWorkers(ctx, id); err != nil {
			t.Fatalf("StopWorkers: %v", err)
		}
	}

	if got := counterValue(t, stopped) - beforeStopped; got != 1 {
		t.Errorf("stopped delta = %v, want 1", got)
	}
	if got := counterValue(t, finished) - beforeFinished; got != 1 {
		t.Errorf("already_finished delta = %v, want 1", got)
	}
}

func TestStatusClass(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{0, "2xx"},
		{http.StatusCreated, "2xx"},
		{http.StatusNotFound, "4xx"},
		{http.StatusInternalServerError, "5xx"},
	}
	for _, tc := range tests {
		if got := statusClass(tc.code); got != tc.want {
			t.Errorf("statusClass(%d) = %q, want %q", tc.code, got, tc.want)
		}
	}
}
