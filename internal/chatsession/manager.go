package chatsession

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"sessionhub/internal/logging"
	"sessionhub/internal/protocol"
)

// registry is the live session table of one provider. Every status change
// happens under mu, so an abort and a natural completion racing on the same
// session resolve to exactly one winner.
type registry struct {
	provider protocol.Provider
	log      *logrus.Entry

	mu       sync.Mutex
	sessions map[string]*Session

	hooksMu sync.RWMutex
	hooks   []func(SessionInfo)

	wg sync.WaitGroup
}

func newRegistry(p protocol.Provider) *registry {
	return &registry{
		provider: p,
		log:      logging.NewLogger("chatsession").WithField("provider", string(p)),
		sessions: make(map[string]*Session),
	}
}

// Provider returns the provider this registry serves.
func (r *registry) Provider() protocol.Provider {
	return r.provider
}

// begin returns the live session for id with sink attached, or registers a
// new session in starting state. An empty id allocates a fresh one.
func (r *registry) begin(id, projectPath string, sink Sink) (*Session, context.Context, bool) {
	r.mu.Lock()
	if id != "" {
		if cur, ok := r.sessions[id]; ok && !cur.status.Terminal() {
			r.mu.Unlock()
			cur.attach(sink)
			return cur, nil, true
		}
	} else {
		id = generateID()
	}

	ctx, cancel := context.WithCancel(context.Background())
	now := time.Now()
	s := &Session{
		ID:           id,
		Provider:     r.provider,
		ProjectPath:  projectPath,
		StartedAt:    now,
		status:       StatusStarting,
		sink:         sink,
		lastActiveAt: now,
		cancel:       cancel,
		done:         make(chan struct{}),
	}
	r.sessions[id] = s
	r.mu.Unlock()

	r.notify(s.info(StatusStarting))
	return s, ctx, false
}

// markRunning moves a starting session to running. It is a no-op once the
// session has reached a terminal state.
func (r *registry) markRunning(s *Session) {
	r.mu.Lock()
	changed := s.status == StatusStarting
	if changed {
		s.status = StatusRunning
	}
	r.mu.Unlock()

	if changed {
		r.notify(s.info(StatusRunning))
	}
}

// finish records a terminal status and removes the session. It returns false
// when another transition (usually an abort) got there first.
func (r *registry) finish(s *Session, status Status) bool {
	r.mu.Lock()
	if s.status.Terminal() {
		r.mu.Unlock()
		return false
	}
	s.status = status
	if r.sessions[s.ID] == s {
		delete(r.sessions, s.ID)
	}
	r.mu.Unlock()

	r.notify(s.info(status))
	return true
}

// abort marks the live session aborted, removes it and stops its backend.
func (r *registry) abort(id string) (*Session, bool) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if !ok || s.status.Terminal() {
		r.mu.Unlock()
		return nil, false
	}
	s.status = StatusAborted
	delete(r.sessions, id)
	r.mu.Unlock()

	s.stop()
	r.log.WithField("sessionId", id).Info("session aborted")
	r.notify(s.info(StatusAborted))
	return s, true
}

// live reports whether s has not reached a terminal state.
func (r *registry) live(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !s.status.Terminal()
}

// Abort implements Manager.
func (r *registry) Abort(sessionID string) bool {
	_, ok := r.abort(sessionID)
	return ok
}

// IsActive implements Manager.
func (r *registry) IsActive(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	return ok && (s.status == StatusStarting || s.status == StatusRunning)
}

// ListActive implements Manager.
func (r *registry) ListActive() []string {
	r.mu.Lock()
	ids := make([]string, 0, len(r.sessions))
	for id, s := range r.sessions {
		if !s.status.Terminal() {
			ids = append(ids, id)
		}
	}
	r.mu.Unlock()

	sort.Strings(ids)
	return ids
}

// Sessions implements Manager.
func (r *registry) Sessions() []SessionInfo {
	r.mu.Lock()
	type entry struct {
		s      *Session
		status Status
	}
	entries := make([]entry, 0, len(r.sessions))
	for _, s := range r.sessions {
		entries = append(entries, entry{s, s.status})
	}
	r.mu.Unlock()

	out := make([]SessionInfo, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.s.info(e.status))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// OnChange registers fn to be called after every lifecycle transition.
func (r *registry) OnChange(fn func(SessionInfo)) {
	r.hooksMu.Lock()
	r.hooks = append(r.hooks, fn)
	r.hooksMu.Unlock()
}

func (r *registry) notify(info SessionInfo) {
	r.hooksMu.RLock()
	hooks := r.hooks
	r.hooksMu.RUnlock()
	for _, fn := range hooks {
		fn(info)
	}
}

// CloseAll aborts every live session and waits for the backends to return.
// Used during server shutdown.
func (r *registry) CloseAll() {
	for _, id := range r.ListActive() {
		r.abort(id)
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		r.log.Warn("timed out waiting for session backends to exit")
	}
}

// emit relays one backend event unless the session is already finished.
func (r *registry) emit(s *Session, event json.RawMessage) {
	if !r.live(s) {
		return
	}
	s.send(protocol.ProviderOutput{
		Type:      protocol.TypeProviderOutput,
		SessionID: s.ID,
		Provider:  r.provider,
		Event:     event,
	}, r.log)
}

// launch runs the backend in its own goroutine and reports the terminal
// status, unless an abort already claimed the session.
func (r *registry) launch(s *Session, run func() (*int, error)) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer close(s.done)

		exitCode, err := run()
		s.release()

		status := StatusCompleted
		if err != nil {
			status = StatusFailed
		}
		if !r.finish(s, status) {
			r.log.WithField("sessionId", s.ID).Debug("completion suppressed, session already terminal")
			return
		}

		entry := r.log.WithField("sessionId", s.ID).WithField("status", status)
		if err != nil {
			entry.WithError(err).Warn("session failed")
			s.send(protocol.Error{
				Type:      protocol.TypeError,
				Error:     err.Error(),
				SessionID: s.ID,
				Provider:  r.provider,
			}, r.log)
		} else {
			entry.Info("session completed")
		}
		s.send(protocol.SessionComplete{
			Type:      protocol.TypeSessionComplete,
			SessionID: s.ID,
			Provider:  r.provider,
			Status:    string(status),
			ExitCode:  exitCode,
		}, r.log)
	}()
}

// announce tells the sink which session it is talking to.
func (r *registry) announce(s *Session, resumed bool) {
	s.send(protocol.SessionCreated{
		Type:      protocol.TypeSessionCreated,
		SessionID: s.ID,
		Provider:  r.provider,
		Resumed:   resumed,
	}, r.log)
}

// generateID produces a random UUIDv4-formatted session identifier.
func generateID() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	b[6] = (b[6] & 0x0f) | 0x40
	b[8] = (b[8] & 0x3f) | 0x80
	return fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:16])
}
