package httpserver

import (
	"net/http"

	"sessionhub/internal/chatsession"
)

// Websocket paths.
const (
	PathChat        = "/ws"
	PathShell       = "/shell"
	PathSessionSync = "/session-sync"
)

// handleUpgrade authenticates the handshake and dispatches by path. An
// unauthenticated request gets 401 before any upgrade. An unknown path is
// closed without writing a single byte.
func (s *HTTPServer) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	log := s.log.WithField("path", r.URL.Path)

	if _, err := s.auth.Authenticate(r); err != nil {
		log.Warn("rejected unauthenticated upgrade")
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	switch r.URL.Path {
	case PathChat, PathShell, PathSessionSync:
	default:
		log.Debug("closing upgrade for unknown path")
		dropConnection(w)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote an HTTP error.
		log.WithError(err).Debug("websocket upgrade failed")
		return
	}
	conn := chatsession.NewConn(ws)
	defer conn.Close()

	// The request context ends with the hijacked connection's handler.
	ctx := r.Context()
	query := r.URL.Query()

	switch r.URL.Path {
	case PathChat:
		s.hub.Add(conn)
		defer s.hub.Remove(conn)
		log.WithField("connections", s.hub.Len()).Info("chat client connected")
		if s.chat == nil {
			return
		}
		s.chat.Serve(ctx, conn)
		log.Info("chat client disconnected")

	case PathShell:
		if s.shell == nil {
			return
		}
		s.shell.Serve(ctx, conn, query.Get("cwd"))

	case PathSessionSync:
		if s.syncChannel == nil {
			return
		}
		s.syncChannel.Serve(ctx, conn, query.Get("projectPath"))
	}
}

// dropConnection closes the underlying TCP connection with no response.
func dropConnection(w http.ResponseWriter) {
	hj, ok := w.(http.Hijacker)
	if !ok {
		panic(http.ErrAbortHandler)
	}
	c, _, err := hj.Hijack()
	if err != nil {
		return
	}
	_ = c.Close()
}
