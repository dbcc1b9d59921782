package sessionsync

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"sessionhub/internal/chatsession"
	"sessionhub/internal/logging"
	"sessionhub/internal/protocol"
	"sessionhub/internal/transcript"
)

// Channel serves /session-sync connections. Each connection follows one
// project path and receives a fresh snapshot whenever the sessions of that
// project change.
type Channel struct {
	svc *Service
	log *logrus.Entry

	mu   sync.Mutex
	subs map[*subscriber]struct{}
}

type subscriber struct {
	conn  *chatsession.Conn
	dirty chan struct{}

	mu          sync.Mutex
	projectPath string
}

func (s *subscriber) path() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.projectPath
}

func (s *subscriber) setPath(p string) {
	s.mu.Lock()
	s.projectPath = cleanPath(p)
	s.mu.Unlock()
}

// mark requests a snapshot push. Requests made while one is pending collapse.
func (s *subscriber) mark() {
	select {
	case s.dirty <- struct{}{}:
	default:
	}
}

// NewChannel creates a channel fed by the service's managers and, when
// non-nil, by watcher.
func NewChannel(svc *Service, watcher *Watcher) *Channel {
	c := &Channel{
		svc:  svc,
		log:  logging.NewLogger("session-sync"),
		subs: make(map[*subscriber]struct{}),
	}
	for _, m := range svc.Managers() {
		m.OnChange(func(info chatsession.SessionInfo) {
			c.ProjectChanged(info.ProjectPath)
		})
	}
	if watcher != nil {
		watcher.Subscribe(c.ProjectDirChanged)
	}
	return c
}

// ProjectChanged pushes snapshots to subscribers following projectPath.
func (c *Channel) ProjectChanged(projectPath string) {
	want := cleanPath(projectPath)
	c.each(func(s *subscriber) bool { return s.path() == want })
}

// ProjectDirChanged pushes snapshots to subscribers whose project encodes to
// the transcript directory name projectDir.
func (c *Channel) ProjectDirChanged(projectDir string) {
	c.each(func(s *subscriber) bool {
		p := s.path()
		return p != "" && transcript.EncodeProjectDir(p) == projectDir
	})
}

func (c *Channel) each(match func(*subscriber) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for s := range c.subs {
		if match(s) {
			s.mark()
		}
	}
}

type subscribeMessage struct {
	Type        string `json:"type"`
	ProjectPath string `json:"projectPath"`
}

// Serve runs one sync connection until it closes. projectPath, when set,
// subscribes immediately; clients may (re)subscribe with a
// {"type":"subscribe","projectPath":...} message.
func (c *Channel) Serve(ctx context.Context, conn *chatsession.Conn, projectPath string) {
	s := &subscriber{conn: conn, dirty: make(chan struct{}, 1)}
	s.setPath(projectPath)

	c.mu.Lock()
	c.subs[s] = struct{}{}
	c.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		c.mu.Lock()
		delete(c.subs, s)
		c.mu.Unlock()
	}()

	go c.pushLoop(ctx, s)
	if projectPath != "" {
		s.mark()
	}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.WithError(err).Debug("sync connection read error")
			}
			return
		}
		var msg subscribeMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			_ = conn.Send(protocol.NewError("invalid JSON"))
			continue
		}
		switch msg.Type {
		case "subscribe":
			if msg.ProjectPath == "" {
				_ = conn.Send(protocol.NewError("projectPath is required"))
				continue
			}
			s.setPath(msg.ProjectPath)
			s.mark()
		case "refresh":
			s.mark()
		default:
			_ = conn.Send(protocol.NewError("unknown message type: " + msg.Type))
		}
	}
}

// pushLoop sends a snapshot each time the subscriber is marked. The snapshot
// is built at send time so a burst of changes yields the latest state.
func (c *Channel) pushLoop(ctx context.Context, s *subscriber) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.dirty:
		}
		p := s.path()
		if p == "" {
			continue
		}
		snap, err := c.svc.Snapshot(p)
		if err != nil {
			c.log.WithError(err).WithField("projectPath", p).Warn("failed to build snapshot")
			_ = s.conn.Send(protocol.NewError("failed to read sessions"))
			continue
		}
		if err := s.conn.Send(snap); err != nil {
			c.log.WithError(err).Debug("failed to push snapshot")
			return
		}
	}
}
