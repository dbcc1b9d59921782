package chatsession

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"sessionhub/internal/logging"
	"sessionhub/internal/protocol"
)

const writeWait = 10 * time.Second

var errConnClosed = errors.New("connection closed")

// Conn wraps a websocket connection so several goroutines (session backends,
// broadcasts and the read loop) can write to it safely.
type Conn struct {
	ws *websocket.Conn

	mu     sync.Mutex
	closed bool
}

// NewConn wraps ws.
func NewConn(ws *websocket.Conn) *Conn {
	return &Conn{ws: ws}
}

// Send writes v as a JSON text frame.
func (c *Conn) Send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errConnClosed
	}
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(v)
}

// SendBinary writes data as one binary frame.
func (c *Conn) SendBinary(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errConnClosed
	}
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.BinaryMessage, data)
}

// ReadMessage reads the next frame from the peer.
func (c *Conn) ReadMessage() (int, []byte, error) {
	return c.ws.ReadMessage()
}

// Close marks the connection closed and closes the socket.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	return c.ws.Close()
}

// Multiplexer executes chat protocol commands from one or more connections
// against the provider managers.
type Multiplexer struct {
	managers map[protocol.Provider]Manager
	log      *logrus.Entry
}

// NewMultiplexer registers managers by their provider.
func NewMultiplexer(managers ...Manager) *Multiplexer {
	m := &Multiplexer{
		managers: make(map[protocol.Provider]Manager, len(managers)),
		log:      logging.NewLogger("multiplexer"),
	}
	for _, mgr := range managers {
		m.managers[mgr.Provider()] = mgr
	}
	return m
}

// Manager returns the manager for p.
func (m *Multiplexer) Manager(p protocol.Provider) (Manager, error) {
	mgr, ok := m.managers[p]
	if !ok {
		return nil, ErrUnknownProvider
	}
	return mgr, nil
}

// Managers returns every registered manager in provider order.
func (m *Multiplexer) Managers() []Manager {
	out := make([]Manager, 0, len(m.managers))
	for _, p := range protocol.Providers {
		if mgr, ok := m.managers[p]; ok {
			out = append(out, mgr)
		}
	}
	return out
}

// ActiveSessions snapshots the live session ids of every provider.
func (m *Multiplexer) ActiveSessions() map[protocol.Provider][]string {
	out := make(map[protocol.Provider][]string, len(m.managers))
	for p, mgr := range m.managers {
		out[p] = mgr.ListActive()
	}
	return out
}

// CloseAll aborts every live session of every provider.
func (m *Multiplexer) CloseAll() {
	var wg sync.WaitGroup
	for _, mgr := range m.managers {
		wg.Add(1)
		go func(mgr Manager) {
			defer wg.Done()
			mgr.CloseAll()
		}(mgr)
	}
	wg.Wait()
}

// Serve reads commands from conn until it closes. Sessions started over conn
// keep running after it closes.
func (m *Multiplexer) Serve(ctx context.Context, conn *Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
			) {
				m.log.WithError(err).Debug("chat connection read error")
			}
			return
		}
		m.Handle(ctx, conn, raw)
	}
}

// Handle executes one inbound message and replies on sink. Protocol errors
// are reported to the sink and never end the connection.
func (m *Multiplexer) Handle(ctx context.Context, sink Sink, raw []byte) {
	cmd, err := protocol.Parse(raw)
	if err != nil {
		m.reply(sink, protocol.NewError(err.Error()))
		return
	}

	switch cmd.Type {
	case protocol.TypeRunCommand:
		mgr, err := m.Manager(cmd.Provider)
		if err != nil {
			m.reply(sink, protocol.NewError(err.Error()))
			return
		}
		_, err = mgr.SpawnOrResume(ctx, cmd.Text, SpawnOptions{
			SessionID:   cmd.SessionID,
			ProjectPath: cmd.Options.Path(),
			Model:       cmd.Options.Model,
			Resume:      cmd.Options.Resume,
			Extra:       cmd.Options.Extra,
		}, sink)
		if err != nil {
			m.reply(sink, protocol.Error{
				Type:      protocol.TypeError,
				Error:     err.Error(),
				SessionID: cmd.SessionID,
				Provider:  cmd.Provider,
			})
		}

	case protocol.TypeAbortSession:
		success := false
		if mgr, err := m.Manager(cmd.Provider); err == nil {
			success = mgr.Abort(cmd.SessionID)
		}
		m.reply(sink, protocol.SessionAborted{
			Type:      protocol.TypeSessionAborted,
			SessionID: cmd.SessionID,
			Provider:  cmd.Provider,
			Success:   success,
		})

	case protocol.TypeCheckStatus:
		processing := false
		if mgr, err := m.Manager(cmd.Provider); err == nil {
			processing = mgr.IsActive(cmd.SessionID)
		}
		m.reply(sink, protocol.SessionStatus{
			Type:         protocol.TypeSessionStatus,
			SessionID:    cmd.SessionID,
			Provider:     cmd.Provider,
			IsProcessing: processing,
		})

	case protocol.TypeGetActiveSessions:
		m.reply(sink, protocol.ActiveSessions{
			Type:     protocol.TypeActiveSessions,
			Sessions: m.ActiveSessions(),
		})
	}
}

func (m *Multiplexer) reply(sink Sink, v any) {
	if err := sink.Send(v); err != nil {
		m.log.WithError(err).Debug("failed to write reply")
	}
}
