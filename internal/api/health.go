package api

import (
	"net/http"
)

type healthResponse struct {
	Status string `json:"status"`

	// Degraded lists pools that are stopped or running fewer workers than
	// they were opened with.
	Degraded []string `json:"degraded,omitempty"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{Status: "ok"}
	for _, name := range s.poolNames() {
		st := s.pools[name].Stats()
		if st.Closed || st.ActiveWorkers < st.Workers {
			resp.Degraded = append(resp.Degraded, name)
		}
	}

	status := http.StatusOK
	if len(resp.Degraded) > 0 {
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, resp)
}
