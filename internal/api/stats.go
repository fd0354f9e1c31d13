package api

import (
	"net/http"

	"github.com/seantiz/sqlworker/internal/engine"
)

// journalStats summarises the operation journal.
type journalStats struct {
	Total         int            `json:"total"`
	ByStatus      map[string]int `json:"by_status"`
	ByKind        map[string]int `json:"by_kind"`
	AvgDurationMS float64        `json:"avg_duration_ms"`
}

// statsResponse is the JSON response for GET /v1/stats.
type statsResponse struct {
	Journal *journalStats      `json:"journal,omitempty"`
	Pools   []engine.PoolStats `json:"pools"`
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	resp := statsResponse{Pools: make([]engine.PoolStats, 0, len(s.pools))}
	for _, name := range s.poolNames() {
		resp.Pools = append(resp.Pools, s.pools[name].Stats())
	}

	if s.journal != nil {
		stats, err := s.journal.GetOperationStats(r.Context())
		if err != nil {
			s.logger.Error("get operation stats", "error", err)
			s.writeError(w, http.StatusInternalServerError, "failed to get stats")
			return
		}
		resp.Journal = &journalStats{
			Total:         stats.Total,
			ByStatus:      stats.CountByStatus,
			ByKind:        stats.CountByKind,
			AvgDurationMS: stats.AvgDurationMS,
		}
	}

	s.writeJSON(w, http.StatusOK, resp)
}
