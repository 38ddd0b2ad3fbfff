package api

import (
	"encoding/json"
	"net/http"
	"slices"

	"github.com/seantiz/daskpool/internal/model"
	"github.com/seantiz/daskpool/internal/remote"
)

const (
	maxBodySize   = 1 << 20 // 1 MB
	maxLaunchSize = 256
)

func (s *Server) handleLaunchWorkers(w http.ResponseWriter, r *http.Request) {
	var req remote.LaunchRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	switch {
	case req.N < 1 || req.N > maxLaunchSize:
		s.writeError(w, http.StatusBadRequest, "n must be between 1 and 256")
		return
	case req.Runtime == "":
		s.writeError(w, http.StatusBadRequest, "runtime is required")
		return
	case req.CPU < 0 || req.MemoryGB < 0 || req.GPU < 0:
		s.writeError(w, http.StatusBadRequest, "resources must not be negative")
		return
	}

	results, err := s.engine.LaunchWorkers(r.Context(), req)
	if err != nil {
		s.logger.Error("launch workers", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to launch workers")
		return
	}

	s.recordLaunch(req.Runtime, results)
	s.writeJSON(w, http.StatusCreated, results)
}

// recordLaunch counts the launch slots of one request by outcome.
func (s *Server) recordLaunch(runtime string, results []model.LaunchResult) {
	if !slices.Contains(s.registry.Runtimes(), runtime) {
		runtime = unsupportedRuntime
	}
	var accepted, rejected int
	for _, res := range results {
		if res.OK() {
			accepted++
		} else {
			rejected++
		}
	}
	launchSlotsTotal.WithLabelValues(runtime, slotAccepted).Add(float64(accepted))
	launchSlotsTotal.WithLabelValues(runtime, slotRejected).Add(float64(rejected))
}

func (s *Server) handleListWorkers(w http.ResponseWriter, r *http.Request) {
	workers, err := s.engine.ListWorkers(r.Context())
	if err != nil {
		s.logger.Error("list workers", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list workers")
		return
	}

	if status := r.URL.Query().Get("status"); status != "" {
		filtered := workers[:0]
		for _, wk := range workers {
			if wk.Status == status {
				filtered = append(filtered, wk)
			}
		}
		workers = filtered
	}

	s.writeJSON(w, http.StatusOK, workers)
}

func (s *Server) handleGetWorker(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, workerFrom(r))
}

// handleStopWorker stops a live worker and answers once it is terminal.
// A worker that already finished is returned as is.
func (s *Server) handleStopWorker(w http.ResponseWriter, r *http.Request) {
	wk := workerFrom(r)
	if model.IsTerminal(wk.Status) {
		stopsTotal.WithLabelValues(stopFinished).Inc()
		s.writeJSON(w, http.StatusOK, wk)
		return
	}

	stopped, err := s.engine.StopWorker(r.Context(), wk.ID)
	if err != nil {
		s.logger.Error("stop worker", "worker_id", wk.ID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to stop worker")
		return
	}
	stopsTotal.WithLabelValues(stopStopped).Inc()
	s.writeJSON(w, http.StatusOK, stopped)
}

// writeJSON writes a JSON response with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
