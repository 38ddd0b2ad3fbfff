package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/seantiz/daskpool/internal/await"
	"github.com/seantiz/daskpool/internal/model"
	"github.com/seantiz/daskpool/internal/remote"
)

func postLaunch(t *testing.T, ts *httptest.Server, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(ts.URL+"/v1/workers", "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("POST /v1/workers: %v", err)
	}
	return resp
}

func TestLaunchWorkersValid(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp := postLaunch(t, ts, `{"n":2,"cpu":0.2,"memory":0.5,"nvidia_gpu":0,"runtime":"shell","code":"true"}`)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Errorf("status = %d, want 201", resp.StatusCode)
	}

	var results []model.LaunchResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	for i, r := range results {
		if !r.OK() || len(r.ID) != 26 {
			t.Errorf("results[%d] = %+v, want a worker with a ULID", i, r)
		}
		if r.Runtime != model.RuntimeShell || r.CPU != 0.2 || r.MemoryGB != 0.5 {
			t.Errorf("results[%d] launch params = %q/%v/%v", i, r.Runtime, r.CPU, r.MemoryGB)
		}
	}
}

func TestLaunchWorkersRejectsBadRequests(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{`},
		{"zero workers", `{"n":0,"runtime":"shell"}`},
		{"too many workers", `{"n":1000,"runtime":"shell"}`},
		{"missing runtime", `{"n":1}`},
		{"negative cpu", `{"n":1,"runtime":"shell","cpu":-1}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp := postLaunch(t, ts, tc.body)
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
			var errResp map[string]string
			json.NewDecoder(resp.Body).Decode(&errResp)
			if errResp["error"] == "" {
				t.Error("expected error message in response")
			}
		})
	}
}

func TestLaunchWorkersUnsupportedRuntimeReturnsPayloads(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp := postLaunch(t, ts, `{"n":2,"runtime":"python3","code":"print(1)"}`)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Errorf("status = %d, want 201", resp.StatusCode)
	}
	var results []model.LaunchResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	for i, r := range results {
		if r.OK() || r.Message == "" || r.EngineID == "" {
			t.Errorf("results[%d] = %+v, want error payload", i, r)
		}
	}
}

func TestGetWorkerNotFound(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/workers/nonexistent")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestStopWorkerNotFound(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/v1/workers/nonexistent", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestListWorkersStatusFilter(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()
	client := remote.NewHTTPClient(ts.URL)
	ctx := context.Background()

	results, err := client.LaunchWorkers(ctx, remote.LaunchRequest{N: 2, Runtime: model.RuntimeShell, Code: "true"})
	if err != nil {
		t.Fatalf("LaunchWorkers: %v", err)
	}
	if _, err := srv.engine.StopWorker(ctx, results[0].ID); err != nil {
		t.Fatalf("StopWorker: %v", err)
	}

	resp, err := http.Get(ts.URL + "/v1/workers?status=stopped")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	var workers []model.Worker
	if err := json.NewDecoder(resp.Body).Decode(&workers); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(workers) != 1 || workers[0].ID != results[0].ID {
		t.Errorf("stopped workers = %+v, want only %s", workers, results[0].ID)
	}
}

// The HTTP client, the API and the awaiter together: launch over HTTP,
// await readiness over HTTP, then stop over HTTP.
func TestWorkerLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	client := remote.NewHTTPClient(ts.URL)
	ctx := context.Background()

	results, err := client.LaunchWorkers(ctx, remote.LaunchRequest{N: 2, CPU: 0.2, MemoryGB: 0.5, Runtime: model.RuntimeShell, Code: "true"})
	if err != nil {
		t.Fatalf("LaunchWorkers: %v", err)
	}
	ids := []string{results[0].ID, results[1].ID}

	a := await.New(client, await.WithPollInterval(10*time.Millisecond))
	res, err := a.Await(ctx, await.Request{IDs: ids, TimeoutS: 5})
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if len(res.Succeeded) != 2 {
		t.Fatalf("succeeded = %d, want 2 (failed: %+v)", len(res.Succeeded), res.Failed)
	}
	for _, w := range res.Succeeded {
		if w.IPAddress != "10.0.0.2" {
			t.Errorf("worker %s ip = %q, want %q", w.ID, w.IPAddress, "10.0.0.2")
		}
	}

	if err := client.StopWorkers(ctx, ids...); err != nil {
		t.Fatalf("StopWorkers: %v", err)
	}

	workers, err := client.ListWorkers(ctx)
	if err != nil {
		t.Fatalf("ListWorkers: %v", err)
	}
	for _, w := range workers {
		if w.Status != model.StatusStopped {
			t.Errorf("worker %s status = %q, want %q", w.ID, w.Status, model.StatusStopped)
		}
	}
}
