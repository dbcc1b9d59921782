// Package mcpserver exposes session and transcript queries as MCP tools,
// over stdio or mounted on the HTTP server.
package mcpserver

import (
	"context"
	"net/http"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"sessionhub/internal/chatsession"
	"sessionhub/internal/config"
	"sessionhub/internal/logging"
	"sessionhub/internal/sessionsync"
	"sessionhub/internal/stats"
	"sessionhub/internal/transcript"
)

// Options wires the tools to the hub's state.
type Options struct {
	Version       string
	Store         *transcript.Store
	Sync          *sessionsync.Service
	ContextWindow int
}

// Server is an MCP server bound to one transcript store.
type Server struct {
	mcp           *mcpsdk.Server
	store         *transcript.Store
	sync          *sessionsync.Service
	stats         *stats.Scanner
	contextWindow int
	log           *logrus.Entry
}

// New creates the server and registers its tools.
func New(opts Options) *Server {
	s := &Server{
		mcp: mcpsdk.NewServer(&mcpsdk.Implementation{
			Name:    "sessionhub",
			Version: opts.Version,
		}, nil),
		store:         opts.Store,
		sync:          opts.Sync,
		stats:         stats.NewScanner(opts.Store),
		contextWindow: opts.ContextWindow,
		log:           logging.NewLogger("mcp"),
	}
	if s.sync == nil {
		s.sync = sessionsync.NewService(opts.Store)
	}
	if s.contextWindow <= 0 {
		s.contextWindow = config.DefaultContextWindow
	}
	s.registerTools()
	return s
}

// Handler serves the streamable HTTP transport.
func (s *Server) Handler() http.Handler {
	return mcpsdk.NewStreamableHTTPHandler(func(*http.Request) *mcpsdk.Server {
		return s.mcp
	}, nil)
}

// RunStdio serves a single client over stdin/stdout until ctx is done or
// the client disconnects.
func (s *Server) RunStdio(ctx context.Context) error {
	return s.mcp.Run(ctx, &mcpsdk.StdioTransport{})
}

// Connect serves one client over t. Used with in-memory transports.
func (s *Server) Connect(ctx context.Context, t mcpsdk.Transport) (*mcpsdk.ServerSession, error) {
	return s.mcp.Connect(ctx, t, nil)
}

// WatchSessions pushes lifecycle transitions of the managers' sessions to
// connected clients as MCP log messages. Clients that never set a log level
// do not receive them.
func (s *Server) WatchSessions(managers ...chatsession.Manager) {
	for _, m := range managers {
		m.OnChange(func(info chatsession.SessionInfo) {
			go s.broadcast(info)
		})
	}
}

func (s *Server) broadcast(info chatsession.SessionInfo) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for ss := range s.mcp.Sessions() {
		err := ss.Log(ctx, &mcpsdk.LoggingMessageParams{
			Level:  "info",
			Logger: "sessions",
			Data:   info,
		})
		if err != nil {
			s.log.WithError(err).Debug("session log push failed")
		}
	}
}
