package chatsession

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"sessionhub/internal/protocol"
)

// ErrUnknownProvider is returned when no manager is registered for a provider.
var ErrUnknownProvider = errors.New("unknown provider")

// Status is the lifecycle state of a provider session.
type Status string

const (
	StatusStarting  Status = "starting"
	StatusRunning   Status = "running"
	StatusAborted   Status = "aborted"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusAborted || s == StatusCompleted || s == StatusFailed
}

// Sink receives the outbound messages of a session, usually a websocket connection.
type Sink interface {
	Send(v any) error
}

// SpawnOptions configures SpawnOrResume.
type SpawnOptions struct {
	SessionID   string
	ProjectPath string
	Model       string
	Resume      bool
	Extra       map[string]json.RawMessage
}

// Manager owns the live sessions of one provider.
type Manager interface {
	Provider() protocol.Provider
	// SpawnOrResume starts a backend for command, or re-attaches sink to the
	// live session named by opts.SessionID. It returns the session id.
	SpawnOrResume(ctx context.Context, command string, opts SpawnOptions, sink Sink) (string, error)
	// Abort cancels a live session. It returns false for unknown or finished ids.
	Abort(sessionID string) bool
	IsActive(sessionID string) bool
	ListActive() []string
	Sessions() []SessionInfo
	OnChange(fn func(SessionInfo))
	CloseAll()
}

// Session is one live unit of work owned by a manager.
type Session struct {
	ID          string
	Provider    protocol.Provider
	ProjectPath string
	StartedAt   time.Time

	// status is guarded by the owning registry's mutex.
	status Status

	mu           sync.Mutex
	sink         Sink
	backendID    string
	lastActiveAt time.Time
	cancel       context.CancelFunc
	terminate    func()
	done         chan struct{}
}

// SessionInfo is a read-only view of a Session.
type SessionInfo struct {
	ID               string            `json:"sessionId"`
	Provider         protocol.Provider `json:"provider"`
	Status           Status            `json:"status"`
	ProjectPath      string            `json:"projectPath"`
	BackendSessionID string            `json:"backendSessionId,omitempty"`
	StartedAt        time.Time         `json:"startedAt"`
	LastActiveAt     time.Time         `json:"lastActiveAt"`
}
