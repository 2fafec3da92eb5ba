package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/mattjoyce/knock/internal/history"
)

const (
	defaultExecutionsLimit = 50
	maxExecutionsLimit     = 1000
)

// handleHealthz handles GET /healthz
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := HealthzResponse{
		Status:         "ok",
		Version:        s.config.Version,
		UptimeSeconds:  int64(time.Since(s.startedAt).Seconds()),
		Worker:         s.worker.State().String(),
		Processed:      s.worker.Processed(),
		QueueDepth:     s.queue.Len(),
		HistoryEnabled: s.history != nil,
	}

	if s.history != nil {
		n, err := s.history.Count(r.Context())
		if err != nil {
			s.logger.Error("failed to count executions", "error", err)
			s.writeError(w, http.StatusInternalServerError, "failed to count executions")
			return
		}
		resp.Executions = n
	}

	respondJSON(w, http.StatusOK, resp)
}

// handleExecutions handles GET /executions?limit=N
func (s *Server) handleExecutions(w http.ResponseWriter, r *http.Request) {
	limit := defaultExecutionsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxExecutionsLimit)
	}

	resp := ExecutionsResponse{Executions: []Execution{}}
	if s.history == nil {
		respondJSON(w, http.StatusOK, resp)
		return
	}

	entries, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to read executions", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to read executions")
		return
	}
	for _, e := range entries {
		resp.Executions = append(resp.Executions, toExecution(e))
	}

	respondJSON(w, http.StatusOK, resp)
}

// handleOpenAPI handles GET /openapi.json
func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, buildOpenAPIDoc(s.config.Version, s.config.Token != ""))
}

func toExecution(e history.Entry) Execution {
	return Execution{
		ID:         e.ID,
		Command:    e.Command,
		Value:      e.Value,
		Line:       e.Line,
		ExitStatus: e.ExitStatus,
		Stdout:     e.Stdout,
		Stderr:     e.Stderr,
		Error:      e.Error,
		Succeeded:  e.Succeeded(),
		Truncated:  e.Truncated,
		StartedAt:  e.StartedAt,
		FinishedAt: e.FinishedAt,
		DurationMS: e.FinishedAt.Sub(e.StartedAt).Milliseconds(),
	}
}

func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
