package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"sessionhub/internal/chatsession"
	"sessionhub/internal/config"
	"sessionhub/internal/logging"
	"sessionhub/internal/sessionsync"
	"sessionhub/internal/shell"
	"sessionhub/internal/stats"
	"sessionhub/internal/transcript"
)

// Options wires the server to its collaborators.
type Options struct {
	Version       string
	Auth          Authenticator
	Chat          *chatsession.Multiplexer
	Sync          *sessionsync.Service
	SyncChannel   *sessionsync.Channel
	Shell         *shell.Bridge
	Store         *transcript.Store
	ContextWindow int
	// MCP, when set, is mounted at /mcp behind the same authentication.
	MCP http.Handler
}

// HTTPServer serves the REST API and routes websocket upgrades to the chat,
// shell and session-sync handlers.
type HTTPServer struct {
	mux        *http.ServeMux
	upgrader   websocket.Upgrader
	log        *logrus.Entry
	tokenUsage http.HandlerFunc

	version       string
	auth          Authenticator
	chat          *chatsession.Multiplexer
	sync          *sessionsync.Service
	syncChannel   *sessionsync.Channel
	shell         *shell.Bridge
	store         *transcript.Store
	stats         *stats.Scanner
	mcp           http.Handler
	contextWindow int
	hub           *Hub
}

// NewHTTPServer creates a new HTTP server instance
func NewHTTPServer(opts Options) *HTTPServer {
	s := &HTTPServer{
		mux: http.NewServeMux(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Browser clients connect from other origins; auth runs before the upgrade.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log:           logging.NewLogger("http"),
		version:       opts.Version,
		auth:          opts.Auth,
		chat:          opts.Chat,
		sync:          opts.Sync,
		syncChannel:   opts.SyncChannel,
		shell:         opts.Shell,
		store:         opts.Store,
		mcp:           opts.MCP,
		contextWindow: opts.ContextWindow,
	}
	if s.auth == nil {
		s.auth = NewTokenAuthenticator(nil)
	}
	if s.contextWindow <= 0 {
		s.contextWindow = config.DefaultContextWindow
	}
	if s.store != nil {
		s.stats = stats.NewScanner(s.store)
	}
	s.hub = NewHub(s.log)

	s.registerRoutes()
	return s
}

// registerRoutes sets up all HTTP routes with middleware
func (s *HTTPServer) registerRoutes() {
	// Health check (no auth required)
	s.mux.HandleFunc("/health", loggingMiddleware(s.handleHealth))

	s.mux.HandleFunc("/sessions/active", loggingMiddleware(s.authMiddleware(s.handleActiveSessions)))
	s.mux.HandleFunc("/sessions/current", loggingMiddleware(s.authMiddleware(s.handleCurrentSession)))
	s.mux.HandleFunc("/projects", loggingMiddleware(s.authMiddleware(s.handleProjects)))
	s.mux.HandleFunc("/stats", loggingMiddleware(s.authMiddleware(s.handleStats)))
	s.tokenUsage = loggingMiddleware(s.authMiddleware(s.handleTokenUsage))
	s.mux.HandleFunc("/sessions/", s.tokenUsage)

	if s.mcp != nil {
		// Not wrapped in loggingMiddleware: streamed responses need the
		// original writer's Flusher.
		mcp := s.authMiddleware(s.mcp.ServeHTTP)
		s.mux.HandleFunc("/mcp", mcp)
		s.mux.HandleFunc("/mcp/", mcp)
	}
}

// Hub returns the broadcast registry of chat connections.
func (s *HTTPServer) Hub() *Hub {
	return s.hub
}

// ServeHTTP routes websocket upgrades to their handlers and everything else
// to the REST mux.
func (s *HTTPServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if websocket.IsWebSocketUpgrade(r) {
		s.handleUpgrade(w, r)
		return
	}
	if isTokenUsagePath(r) {
		s.tokenUsage(w, r)
		return
	}
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully. Hijacked websocket connections are not tracked by Shutdown;
// callers close sessions separately.
func (s *HTTPServer) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *HTTPServer) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", ln.Addr().String()).Info("listening")
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.log.WithError(err).Warn("graceful shutdown failed")
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
