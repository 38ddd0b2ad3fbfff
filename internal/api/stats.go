package api

import (
	"net/http"
)

// statsResponse is the JSON response for GET /v1/stats.
type statsResponse struct {
	Total         int            `json:"total"`
	Active        int            `json:"active"`
	ByStatus      map[string]int `json:"by_status"`
	ByRuntime     map[string]int `json:"by_runtime"`
	AvgDurationMS float64        `json:"avg_duration_ms"`
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetWorkerStats(r.Context())
	if err != nil {
		s.logger.Error("get worker stats", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}

	s.writeJSON(w, http.StatusOK, statsResponse{
		Total:         stats.Total,
		Active:        s.engine.Active(),
		ByStatus:      stats.CountByStatus,
		ByRuntime:     stats.CountByRuntime,
		AvgDurationMS: stats.AvgDurationMS,
	})
}
