package api

import "time"

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status         string `json:"status"`
	Version        string `json:"version,omitempty"`
	UptimeSeconds  int64  `json:"uptime_seconds"`
	Worker         string `json:"worker"`
	Processed      int64  `json:"processed"`
	QueueDepth     int    `json:"queue_depth"`
	HistoryEnabled bool   `json:"history_enabled"`
	Executions     int64  `json:"executions"`
}

// Execution is one row of GET /executions.
type Execution struct {
	ID         string    `json:"id"`
	Command    byte      `json:"command"`
	Value      byte      `json:"value"`
	Line       string    `json:"line"`
	ExitStatus int       `json:"exit_status"`
	Stdout     string    `json:"stdout,omitempty"`
	Stderr     string    `json:"stderr,omitempty"`
	Error      string    `json:"error,omitempty"`
	Succeeded  bool      `json:"succeeded"`
	Truncated  bool      `json:"truncated,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	DurationMS int64     `json:"duration_ms"`
}

// ExecutionsResponse is returned by GET /executions.
type ExecutionsResponse struct {
	Executions []Execution `json:"executions"`
}
