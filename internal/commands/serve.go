package commands

import (
	"context"
	"fmt"
	"os"

	"sessionhub/internal/chatsession"
	"sessionhub/internal/config"
	"sessionhub/internal/httpserver"
	"sessionhub/internal/logging"
	mcpserver "sessionhub/internal/mcp"
	"sessionhub/internal/notify"
	"sessionhub/internal/protocol"
	"sessionhub/internal/sessionsync"
	"sessionhub/internal/shell"
	"sessionhub/internal/transcript"
)

// LogLevel is set from the root --log-level flag and overrides the config.
var LogLevel string

// RunServe is the entry point for `sessionhub serve`. It blocks until an
// interrupt or termination signal arrives.
func RunServe(addr string, advertise bool) error {
	cfg, err := config.LoadConfig(ConfigFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	level := cfg.LogLevel
	if LogLevel != "" {
		level = LogLevel
	}
	logging.Configure(level, os.Stderr)
	log := logging.NewLogger("serve")

	if addr == "" {
		addr = cfg.Addr
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		sigCh := make(chan os.Signal, 1)
		notifySignals(sigCh)
		select {
		case sig := <-sigCh:
			log.WithField("signal", sig.String()).Info("shutting down")
			cancel()
		case <-ctx.Done():
		}
	}()

	store := transcript.NewStore(cfg.ProjectsDir)
	streamMgr := chatsession.NewStreamManager(chatsession.NewAnthropicStreamer(cfg.Stream, store))
	processMgr := chatsession.NewProcessManager(chatsession.CursorCommand(cfg.Process.Command, cfg.Process.Args))
	mux := chatsession.NewMultiplexer(streamMgr, processMgr)
	defer mux.CloseAll()

	if n := notify.FromConfig(cfg.Notify); n != nil {
		notify.NewSessionNotifier(n, cfg.Notify.Statuses, cfg.Notify.Sound).Watch(streamMgr, processMgr)
		log.WithField("notifier", n.Name()).Info("session notifications enabled")
	}

	svc := sessionsync.NewService(store, streamMgr, processMgr)
	watcher, err := sessionsync.NewWatcher(cfg.ProjectsDir, sessionsync.DefaultDebounce)
	if err != nil {
		log.WithError(err).Warn("transcript watcher disabled")
		watcher = nil
	}
	channel := sessionsync.NewChannel(svc, watcher)

	auth := httpserver.NewTokenAuthenticator(cfg.Tokens)
	if !auth.Enabled() {
		log.Warn("no API tokens configured; accepting unauthenticated requests (run `sessionhub token add`)")
	}

	tools := mcpserver.New(mcpserver.Options{
		Version:       Version,
		Store:         store,
		Sync:          svc,
		ContextWindow: cfg.ContextWindow,
	})
	tools.WatchSessions(streamMgr, processMgr)

	server := httpserver.NewHTTPServer(httpserver.Options{
		Version:       Version,
		Auth:          auth,
		Chat:          mux,
		Sync:          svc,
		SyncChannel:   channel,
		Shell:         shell.NewBridge(cfg.Shell),
		Store:         store,
		ContextWindow: cfg.ContextWindow,
		MCP:           tools.Handler(),
	})

	if watcher != nil {
		watcher.Subscribe(func(projectDir string) {
			server.Hub().Broadcast(protocol.ProjectsUpdated{
				Type:        protocol.TypeProjectsUpdated,
				ProjectDir:  projectDir,
				ProjectPath: transcript.DecodeProjectDir(projectDir),
			})
		})
		go watcher.Run(ctx)
	}

	if advertise {
		stop := httpserver.Advertise(addr, Version, auth.Enabled())
		defer stop()
	}

	log.WithField("projectsDir", cfg.ProjectsDir).WithField("version", Version).Info("session hub starting")
	if err := server.ListenAndServe(ctx, addr); err != nil {
		return fmt.Errorf("serve %s: %w", addr, err)
	}
	return nil
}
