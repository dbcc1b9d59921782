package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"sessionhub/internal/config"
	"sessionhub/internal/logging"
	mcpserver "sessionhub/internal/mcp"
	"sessionhub/internal/transcript"
)

// RunMCP serves the MCP tools over stdio. Stdout carries the protocol, so
// logs go to stderr. Live-session tools report nothing in this mode since
// sessions belong to the serve process.
func RunMCP() error {
	cfg, err := config.LoadConfig(ConfigFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	level := cfg.LogLevel
	if LogLevel != "" {
		level = LogLevel
	}
	logging.Configure(level, os.Stderr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		sigCh := make(chan os.Signal, 1)
		notifySignals(sigCh)
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	srv := mcpserver.New(mcpserver.Options{
		Version:       Version,
		Store:         transcript.NewStore(cfg.ProjectsDir),
		ContextWindow: cfg.ContextWindow,
	})
	if err := srv.RunStdio(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, io.EOF) {
		return fmt.Errorf("mcp stdio: %w", err)
	}
	return nil
}
