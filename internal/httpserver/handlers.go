package httpserver

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"sessionhub/internal/stats"
	"sessionhub/internal/transcript"
)

const tokenUsageSuffix = "/token-usage"

// handleHealth handles GET /health
func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	respondJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: s.version,
	})
}

// handleActiveSessions handles GET /sessions/active?projectPath=
func (s *HTTPServer) handleActiveSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.sync == nil {
		respondError(w, http.StatusServiceUnavailable, "session sync unavailable")
		return
	}

	projectPath := r.URL.Query().Get("projectPath")
	respondJSON(w, http.StatusOK, ActiveSessionsResponse{
		ProjectPath: projectPath,
		Sessions:    s.sync.Active(projectPath),
	})
}

// handleCurrentSession handles GET /sessions/current?cwd=
func (s *HTTPServer) handleCurrentSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.sync == nil {
		respondError(w, http.StatusServiceUnavailable, "session sync unavailable")
		return
	}

	cwd := r.URL.Query().Get("cwd")
	if cwd == "" {
		respondError(w, http.StatusBadRequest, "query parameter 'cwd' is required")
		return
	}
	cur, err := s.sync.Current(cwd)
	if err != nil {
		s.respondTranscriptError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, cur)
}

// isTokenUsagePath reports whether the escaped request path is
// /sessions/{id}/token-usage. It is matched before the mux so an id holding
// encoded slashes or dots reaches validation instead of a path-clean redirect.
func isTokenUsagePath(r *http.Request) bool {
	p := r.URL.EscapedPath()
	return strings.HasPrefix(p, "/sessions/") && strings.HasSuffix(p, tokenUsageSuffix) &&
		len(p) > len("/sessions/")+len(tokenUsageSuffix)
}

// handleTokenUsage handles GET /sessions/{sessionId}/token-usage?projectName=
// (or projectPath=).
func (s *HTTPServer) handleTokenUsage(w http.ResponseWriter, r *http.Request) {
	if !isTokenUsagePath(r) {
		respondError(w, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.store == nil {
		respondError(w, http.StatusServiceUnavailable, "transcripts unavailable")
		return
	}

	p := r.URL.EscapedPath()
	rawID := strings.TrimSuffix(strings.TrimPrefix(p, "/sessions/"), tokenUsageSuffix)
	sessionID, err := url.PathUnescape(rawID)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid session id")
		return
	}

	projectDir := projectDirParam(r.URL.Query())
	if projectDir == "" {
		respondError(w, http.StatusBadRequest, "query parameter 'projectName' or 'projectPath' is required")
		return
	}

	usage, err := s.store.TokenUsage(projectDir, sessionID, s.contextWindow)
	if err != nil {
		s.respondTranscriptError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, TokenUsageResponse{
		Used:      usage.Used,
		Total:     usage.Total,
		Breakdown: usage.Breakdown,
	})
}

// handleProjects handles GET /projects, most recently active first.
func (s *HTTPServer) handleProjects(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.store == nil {
		respondError(w, http.StatusServiceUnavailable, "transcripts unavailable")
		return
	}
	projects, err := s.store.ListProjects()
	if err != nil {
		s.log.WithError(err).Error("list projects failed")
		respondError(w, http.StatusInternalServerError, "failed to list projects")
		return
	}
	if projects == nil {
		projects = []transcript.ProjectInfo{}
	}
	respondJSON(w, http.StatusOK, ProjectsResponse{Projects: projects})
}

// projectDirParam reads the encoded project directory from projectName, or
// encodes projectPath.
func projectDirParam(q url.Values) string {
	if dir := q.Get("projectName"); dir != "" {
		return dir
	}
	if projectPath := q.Get("projectPath"); projectPath != "" {
		return transcript.EncodeProjectDir(projectPath)
	}
	return ""
}

// handleStats handles GET /stats?period=&projectName= (or projectPath=).
// Without a project every project under the transcript root is summarized.
func (s *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.stats == nil {
		respondError(w, http.StatusServiceUnavailable, "transcripts unavailable")
		return
	}

	q := r.URL.Query()
	period := q.Get("period")
	if period == "" {
		period = stats.PeriodWeek
	}
	from, to, err := stats.PeriodRange(period, time.Now())
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var records []stats.SessionRecord
	if projectDir := projectDirParam(q); projectDir != "" {
		records, err = s.stats.Project(projectDir, from)
	} else {
		records, err = s.stats.All(from)
	}
	if err != nil {
		s.respondTranscriptError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, stats.Summarize(period, records, from, to))
}

// respondTranscriptError maps transcript errors to status codes. Messages
// never echo the requested path.
func (s *HTTPServer) respondTranscriptError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, transcript.ErrInvalidSessionID):
		respondError(w, http.StatusBadRequest, "invalid session id")
	case errors.Is(err, transcript.ErrInvalidPath):
		respondError(w, http.StatusBadRequest, "invalid path")
	case errors.Is(err, transcript.ErrNotFound):
		respondError(w, http.StatusNotFound, "session transcript not found")
	default:
		s.log.WithError(err).Error("transcript lookup failed")
		respondError(w, http.StatusInternalServerError, "failed to read transcript")
	}
}
