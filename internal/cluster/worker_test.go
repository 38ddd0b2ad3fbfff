package cluster

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (lb *lockedBuffer) Write(p []byte) (int, error) {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	return lb.buf.Write(p)
}

func (lb *lockedBuffer) String() string {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	return lb.buf.String()
}

// fakeWorkerBin writes an executable shell script standing in for dask-worker.
func fakeWorkerBin(t *testing.T, body string) string {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	path := filepath.Join(t.TempDir(), "dask-worker")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func TestWorkerArgs(t *testing.T) {
	got := WorkerArgs(WorkerConfig{MasterIP: "10.0.0.5", WorkerBin: "dask-worker", Args: []string{"--nthreads", "1"}})
	want := []string{"dask-worker", "10.0.0.5:2323", "--nthreads", "1"}
	if strings.Join(got, " ") != strings.Join(want, " ") {
		t.Errorf("WorkerArgs = %v, want %v", got, want)
	}
}

func TestRunWorkerExitCode(t *testing.T) {
	bin := fakeWorkerBin(t, `echo "connecting to $1"; exit 4`)

	var out lockedBuffer
	code, err := RunWorker(context.Background(), WorkerConfig{
		MasterIP:      "10.0.0.5",
		SchedulerPort: 2400,
		WorkerBin:     bin,
		Output:        &out,
	}, testLogger())
	if err != nil {
		t.Fatalf("RunWorker: %v", err)
	}
	if code != 4 {
		t.Errorf("exit code = %d, want 4", code)
	}
	if !strings.Contains(out.String(), "connecting to 10.0.0.5:2400") {
		t.Errorf("output = %q", out.String())
	}
}

func TestRunWorkerNoMasterIP(t *testing.T) {
	if _, err := RunWorker(context.Background(), WorkerConfig{WorkerBin: "dask-worker"}, testLogger()); !errors.Is(err, ErrNoMasterIP) {
		t.Errorf("error = %v, want ErrNoMasterIP", err)
	}
}

func TestRunWorkerContextCancel(t *testing.T) {
	bin := fakeWorkerBin(t, "exec sleep 30")

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := RunWorker(ctx, WorkerConfig{MasterIP: "127.0.0.1", WorkerBin: bin}, testLogger())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want context.DeadlineExceeded", err)
	}
	if time.Since(start) > 10*time.Second {
		t.Errorf("RunWorker took %v after cancel", time.Since(start))
	}
}
