package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"sessionhub/internal/chatsession"
	"sessionhub/internal/sessionsync"
	"sessionhub/internal/stats"
	"sessionhub/internal/transcript"
)

func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
		Name:        "list_projects",
		Description: "List projects that have session transcripts, most recently active first",
	}, s.listProjects)

	mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
		Name:        "current_session",
		Description: "Get the most recently modified session transcript of the project at cwd",
	}, s.currentSession)

	mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
		Name:        "active_sessions",
		Description: "List live chat sessions, optionally limited to one project path",
	}, s.activeSessions)

	mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
		Name:        "token_usage",
		Description: "Get the context-window usage of a session from its transcript",
	}, s.tokenUsage)

	mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
		Name:        "usage_stats",
		Description: "Summarize token usage and estimated cost for a period (today, week, month, all)",
	}, s.usageStats)
}

// Tool results are returned as untyped values so no output schema is
// inferred; several carry time.Time fields.

// projectDir resolves a project named by encoded directory or by path.
func projectDir(name, path string) string {
	if name != "" {
		return name
	}
	if path != "" {
		return transcript.EncodeProjectDir(path)
	}
	return ""
}

// list_projects

type listProjectsInput struct{}

type listProjectsOutput struct {
	Projects []transcript.ProjectInfo `json:"projects"`
}

func (s *Server) listProjects(ctx context.Context, req *mcpsdk.CallToolRequest, _ listProjectsInput) (*mcpsdk.CallToolResult, any, error) {
	projects, err := s.store.ListProjects()
	if err != nil {
		return nil, nil, fmt.Errorf("list projects: %w", err)
	}
	if projects == nil {
		projects = []transcript.ProjectInfo{}
	}
	return nil, listProjectsOutput{Projects: projects}, nil
}

// current_session

type currentSessionInput struct {
	Cwd string `json:"cwd" jsonschema:"Absolute path of the project directory"`
}

type currentSessionOutput struct {
	Found   bool                        `json:"found"`
	Session *sessionsync.CurrentSession `json:"session,omitempty"`
}

func (s *Server) currentSession(ctx context.Context, req *mcpsdk.CallToolRequest, in currentSessionInput) (*mcpsdk.CallToolResult, any, error) {
	if in.Cwd == "" {
		return nil, nil, fmt.Errorf("cwd is required")
	}
	cur, err := s.sync.Current(in.Cwd)
	if err != nil {
		if errors.Is(err, transcript.ErrNotFound) {
			return nil, currentSessionOutput{Found: false}, nil
		}
		return nil, nil, err
	}
	return nil, currentSessionOutput{Found: true, Session: cur}, nil
}

// active_sessions

type activeSessionsInput struct {
	ProjectPath string `json:"projectPath,omitempty" jsonschema:"Only sessions started in this project path"`
}

type activeSessionsOutput struct {
	Sessions []chatsession.SessionInfo `json:"sessions"`
}

func (s *Server) activeSessions(ctx context.Context, req *mcpsdk.CallToolRequest, in activeSessionsInput) (*mcpsdk.CallToolResult, any, error) {
	sessions := s.sync.Active(in.ProjectPath)
	if sessions == nil {
		sessions = []chatsession.SessionInfo{}
	}
	return nil, activeSessionsOutput{Sessions: sessions}, nil
}

// token_usage

type tokenUsageInput struct {
	SessionID   string `json:"sessionId" jsonschema:"Session id (transcript file name without .jsonl)"`
	ProjectName string `json:"projectName,omitempty" jsonschema:"Encoded transcript directory name, e.g. -home-me-app"`
	ProjectPath string `json:"projectPath,omitempty" jsonschema:"Absolute project path, used when projectName is empty"`
}

func (s *Server) tokenUsage(ctx context.Context, req *mcpsdk.CallToolRequest, in tokenUsageInput) (*mcpsdk.CallToolResult, any, error) {
	dir := projectDir(in.ProjectName, in.ProjectPath)
	if in.SessionID == "" || dir == "" {
		return nil, nil, fmt.Errorf("sessionId and projectName or projectPath are required")
	}
	usage, err := s.store.TokenUsage(dir, in.SessionID, s.contextWindow)
	if err != nil {
		return nil, nil, err
	}
	return nil, usage, nil
}

// usage_stats

type usageStatsInput struct {
	Period      string `json:"period,omitempty" jsonschema:"today, week, month or all (default week)"`
	ProjectName string `json:"projectName,omitempty" jsonschema:"Limit to this encoded transcript directory"`
	ProjectPath string `json:"projectPath,omitempty" jsonschema:"Limit to this project path"`
}

func (s *Server) usageStats(ctx context.Context, req *mcpsdk.CallToolRequest, in usageStatsInput) (*mcpsdk.CallToolResult, any, error) {
	period := in.Period
	if period == "" {
		period = stats.PeriodWeek
	}
	from, to, err := stats.PeriodRange(period, time.Now())
	if err != nil {
		return nil, nil, err
	}

	var records []stats.SessionRecord
	if dir := projectDir(in.ProjectName, in.ProjectPath); dir != "" {
		records, err = s.stats.Project(dir, from)
	} else {
		records, err = s.stats.All(from)
	}
	if err != nil {
		return nil, nil, err
	}
	return nil, stats.Summarize(period, records, from, to), nil
}
