package httpserver

import (
	"sessionhub/internal/chatsession"
	"sessionhub/internal/transcript"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// ActiveSessionsResponse is the body of GET /sessions/active.
type ActiveSessionsResponse struct {
	ProjectPath string                    `json:"projectPath,omitempty"`
	Sessions    []chatsession.SessionInfo `json:"sessions"`
}

// ProjectsResponse is the body of GET /projects.
type ProjectsResponse struct {
	Projects []transcript.ProjectInfo `json:"projects"`
}

// TokenUsageResponse is the body of GET /sessions/{id}/token-usage.
type TokenUsageResponse struct {
	Used      int64                `json:"used"`
	Total     int64                `json:"total"`
	Breakdown transcript.Breakdown `json:"breakdown"`
}
