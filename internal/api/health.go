package api

import (
	"net/http"
)

type healthResponse struct {
	Status   string   `json:"status"`
	Runtimes []string `json:"runtimes"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, healthResponse{
		Status:   "ok",
		Runtimes: s.registry.Runtimes(),
	})
}
