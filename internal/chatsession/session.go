package chatsession

import (
	"time"

	"github.com/sirupsen/logrus"
)

// attach replaces the session's output sink. Output already delivered to a
// previous sink is not replayed.
func (s *Session) attach(sink Sink) {
	s.mu.Lock()
	s.sink = sink
	s.mu.Unlock()
}

// send delivers v to the current sink. A failing sink is detached so the
// session keeps running after its connection goes away.
func (s *Session) send(v any, log *logrus.Entry) {
	s.mu.Lock()
	sink := s.sink
	s.lastActiveAt = time.Now()
	s.mu.Unlock()

	if sink == nil {
		return
	}
	if err := sink.Send(v); err != nil {
		log.WithError(err).WithField("sessionId", s.ID).Debug("detaching sink after write error")
		s.mu.Lock()
		if s.sink == sink {
			s.sink = nil
		}
		s.mu.Unlock()
	}
}

func (s *Session) setBackendID(id string) {
	s.mu.Lock()
	s.backendID = id
	s.mu.Unlock()
}

func (s *Session) setTerminate(fn func()) {
	s.mu.Lock()
	s.terminate = fn
	s.mu.Unlock()
}

// stop cancels the backend context and forcefully terminates it when the
// backend registered a terminate function.
func (s *Session) stop() {
	s.mu.Lock()
	cancel, terminate := s.cancel, s.terminate
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if terminate != nil {
		terminate()
	}
}

// release cancels the backend context after the backend has returned.
func (s *Session) release() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Done is closed once the backend goroutine has returned.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) info(status Status) SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionInfo{
		ID:               s.ID,
		Provider:         s.Provider,
		Status:           status,
		ProjectPath:      s.ProjectPath,
		BackendSessionID: s.backendID,
		StartedAt:        s.StartedAt,
		LastActiveAt:     s.lastActiveAt,
	}
}
