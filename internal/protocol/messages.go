package protocol

import "encoding/json"

// Outbound message types.
const (
	TypeSessionCreated   = "session-created"
	TypeProviderOutput   = "provider-output"
	TypeSessionComplete  = "session-complete"
	TypeSessionAborted   = "session-aborted"
	TypeSessionStatus    = "session-status"
	TypeActiveSessions   = "active-sessions"
	TypeError            = "error"
	TypeProjectsUpdated  = "projects-updated"
	TypeSessionsSnapshot = "sessions-snapshot"
)

// SessionCreated announces the id of a freshly started or resumed session.
type SessionCreated struct {
	Type      string   `json:"type"`
	SessionID string   `json:"sessionId"`
	Provider  Provider `json:"provider"`
	Resumed   bool     `json:"resumed,omitempty"`
}

// ProviderOutput relays one backend event unchanged.
type ProviderOutput struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Provider  Provider        `json:"provider"`
	Event     json.RawMessage `json:"event"`
}

// SessionComplete is the terminal event of a session that finished on its own.
type SessionComplete struct {
	Type      string   `json:"type"`
	SessionID string   `json:"sessionId"`
	Provider  Provider `json:"provider"`
	Status    string   `json:"status"`
	ExitCode  *int     `json:"exitCode,omitempty"`
}

// SessionAborted acknowledges an abort request.
type SessionAborted struct {
	Type      string   `json:"type"`
	SessionID string   `json:"sessionId"`
	Provider  Provider `json:"provider"`
	Success   bool     `json:"success"`
}

// SessionStatus answers check-session-status.
type SessionStatus struct {
	Type         string   `json:"type"`
	SessionID    string   `json:"sessionId"`
	Provider     Provider `json:"provider"`
	IsProcessing bool     `json:"isProcessing"`
}

// ActiveSessions answers get-active-sessions.
type ActiveSessions struct {
	Type     string                `json:"type"`
	Sessions map[Provider][]string `json:"sessions"`
}

// Error reports a protocol or backend failure. The connection stays open.
type Error struct {
	Type      string   `json:"type"`
	Error     string   `json:"error"`
	SessionID string   `json:"sessionId,omitempty"`
	Provider  Provider `json:"provider,omitempty"`
}

// ProjectsUpdated is broadcast to every chat connection when transcripts change.
type ProjectsUpdated struct {
	Type        string `json:"type"`
	ProjectDir  string `json:"projectDir"`
	ProjectPath string `json:"projectPath,omitempty"`
}

// NewError builds an error reply.
func NewError(msg string) Error {
	return Error{Type: TypeError, Error: msg}
}
