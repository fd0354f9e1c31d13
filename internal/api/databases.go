package api

import "net/http"

// databaseResponse describes one registered database and whether a pool
// is serving it.
type databaseResponse struct {
	Name    string `json:"name"`
	Dialect string `json:"dialect"`
	Serving bool   `json:"serving"`
}

func (s *Server) handleListDatabases(w http.ResponseWriter, _ *http.Request) {
	infos := s.registry.List()
	out := make([]databaseResponse, len(infos))
	for i, info := range infos {
		_, serving := s.pools[info.Name]
		out[i] = databaseResponse{
			Name:    info.Name,
			Dialect: info.Dialect,
			Serving: serving,
		}
	}
	s.writeJSON(w, http.StatusOK, out)
}
