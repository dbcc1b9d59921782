// Package sessionsync answers "which sessions are live for this project" and
// "what is the latest session here", and pushes those answers to subscribed
// clients as they change.
package sessionsync

import (
	"errors"
	"fmt"
	"path/filepath"

	"sessionhub/internal/chatsession"
	"sessionhub/internal/protocol"
	"sessionhub/internal/transcript"
)

// Service combines the live session managers with the on-disk transcripts.
type Service struct {
	store    *transcript.Store
	managers []chatsession.Manager
}

// NewService creates a Service over store and managers.
func NewService(store *transcript.Store, managers ...chatsession.Manager) *Service {
	return &Service{store: store, managers: managers}
}

// Managers returns the managers the service reads from.
func (s *Service) Managers() []chatsession.Manager {
	return s.managers
}

// Active returns the live sessions of every provider whose project path equals
// projectPath. An empty projectPath matches every session.
func (s *Service) Active(projectPath string) []chatsession.SessionInfo {
	want := cleanPath(projectPath)
	out := []chatsession.SessionInfo{}
	for _, m := range s.managers {
		for _, info := range m.Sessions() {
			if info.Status.Terminal() {
				continue
			}
			if want != "" && cleanPath(info.ProjectPath) != want {
				continue
			}
			out = append(out, info)
		}
	}
	return out
}

// Live reports which provider, if any, has sessionID running.
func (s *Service) Live(sessionID string) (protocol.Provider, bool) {
	for _, m := range s.managers {
		if m.IsActive(sessionID) {
			return m.Provider(), true
		}
	}
	return "", false
}

// CurrentSession is the most recently modified transcript of a project.
type CurrentSession struct {
	transcript.SessionFileInfo
	Active   bool              `json:"active"`
	Provider protocol.Provider `json:"provider,omitempty"`
}

// Current returns the latest transcript for the project rooted at cwd. It
// returns transcript.ErrNotFound when the project has no transcripts.
func (s *Service) Current(cwd string) (*CurrentSession, error) {
	if cwd == "" {
		return nil, fmt.Errorf("cwd is required")
	}
	latest, err := s.store.LatestSession(transcript.EncodeProjectDir(cleanPath(cwd)))
	if err != nil {
		return nil, err
	}
	cur := &CurrentSession{SessionFileInfo: *latest}
	cur.Provider, cur.Active = s.Live(latest.SessionID)
	return cur, nil
}

// Snapshot is the sessions-snapshot message pushed on the sync channel.
type Snapshot struct {
	Type        string                    `json:"type"`
	ProjectPath string                    `json:"projectPath"`
	Active      []chatsession.SessionInfo `json:"active"`
	Current     *CurrentSession           `json:"current,omitempty"`
}

// Snapshot builds the current state of projectPath.
func (s *Service) Snapshot(projectPath string) (Snapshot, error) {
	snap := Snapshot{
		Type:        protocol.TypeSessionsSnapshot,
		ProjectPath: projectPath,
		Active:      s.Active(projectPath),
	}
	cur, err := s.Current(projectPath)
	switch {
	case err == nil:
		snap.Current = cur
	case errors.Is(err, transcript.ErrNotFound):
	default:
		return snap, err
	}
	return snap, nil
}

func cleanPath(p string) string {
	if p == "" {
		return ""
	}
	return filepath.Clean(p)
}
