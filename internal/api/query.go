package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/seantiz/sqlworker/internal/database"
	"github.com/seantiz/sqlworker/internal/engine"
)

const (
	defaultQueryTimeout = 10 * time.Second

	// maxQueryTimeout stays under the server write timeout.
	maxQueryTimeout = 25 * time.Second
)

// statementRequest is the JSON body for POST /v1/query and POST /v1/exec.
type statementRequest struct {
	Database  string `json:"database"`
	SQL       string `json:"sql"`
	TimeoutMS int    `json:"timeout_ms"`
}

type queryResponse struct {
	OperationID string   `json:"operation_id"`
	Database    string   `json:"database"`
	Columns     []string `json:"columns"`
	Rows        [][]any  `json:"rows"`
	RowCount    int      `json:"row_count"`
}

type execResponse struct {
	OperationID string `json:"operation_id"`
	Database    string `json:"database"`
}

// decodeStatement parses the request body and resolves the target pool.
// It writes the error response itself and reports false on failure.
func (s *Server) decodeStatement(w http.ResponseWriter, r *http.Request) (statementRequest, string, *engine.Pool, bool) {
	var req statementRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return req, "", nil, false
	}
	if strings.TrimSpace(req.SQL) == "" {
		s.writeError(w, http.StatusBadRequest, "sql is required")
		return req, "", nil, false
	}

	name, p, err := s.pool(req.Database)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errUnknownDatabase) {
			status = http.StatusNotFound
		}
		s.writeError(w, status, err.Error())
		return req, "", nil, false
	}
	if p.Stats().Closed {
		s.writeError(w, http.StatusServiceUnavailable, "worker pool is stopped")
		return req, "", nil, false
	}
	return req, name, p, true
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	req, name, p, ok := s.decodeStatement(w, r)
	if !ok {
		return
	}

	timeout := defaultQueryTimeout
	if req.TimeoutMS > 0 {
		timeout = min(time.Duration(req.TimeoutMS)*time.Millisecond, maxQueryTimeout)
	}

	f := engine.NewFuture[*database.ResultSet]()
	op := engine.NewAdhocOperation(req.SQL, f)
	p.Enqueue(op)

	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	rs, err := f.Wait(ctx)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		recordStatement(name, "query", outcomeTimeout)
		s.writeJSON(w, http.StatusGatewayTimeout, map[string]string{
			"error":        "query did not finish in time",
			"operation_id": op.ID(),
		})
		return
	case errors.Is(err, context.Canceled):
		return
	case errors.Is(err, engine.ErrOperationDropped), errors.Is(err, engine.ErrPoolClosed):
		recordStatement(name, "query", outcomeDropped)
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	case err != nil:
		recordStatement(name, "query", outcomeFailed)
		s.writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error":        err.Error(),
			"operation_id": op.ID(),
		})
		return
	}

	recordStatement(name, "query", outcomeOK)
	resp := queryResponse{
		OperationID: op.ID(),
		Database:    name,
		Columns:     []string{},
		Rows:        [][]any{},
		RowCount:    rs.RowCount(),
	}
	if rs != nil {
		resp.Columns = rs.Columns
		resp.Rows = jsonRows(rs.Rows)
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleExec(w http.ResponseWriter, r *http.Request) {
	req, name, p, ok := s.decodeStatement(w, r)
	if !ok {
		return
	}

	op := engine.NewAdhocOperation(req.SQL, nil)
	p.Enqueue(op)
	recordStatement(name, "exec", outcomeAccepted)

	s.writeJSON(w, http.StatusAccepted, execResponse{
		OperationID: op.ID(),
		Database:    name,
	})
}

// jsonRows renders byte slices as text so they are readable in JSON.
func jsonRows(rows [][]any) [][]any {
	if rows == nil {
		return [][]any{}
	}
	for _, row := range rows {
		for i, v := range row {
			if b, ok := v.([]byte); ok {
				row[i] = string(b)
			}
		}
	}
	return rows
}
