package commands

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"sessionhub/internal/config"
	"sessionhub/internal/output"
	"sessionhub/internal/sessionsync"
	"sessionhub/internal/transcript"
	"sessionhub/internal/ui"
)

func loadStore() (*config.Config, *transcript.Store, error) {
	cfg, err := config.LoadConfig(ConfigFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, transcript.NewStore(cfg.ProjectsDir), nil
}

// projectDirArg accepts either an encoded project directory ("-home-me-app")
// or a filesystem path, relative paths resolved against the working directory.
func projectDirArg(arg string) (string, error) {
	if strings.HasPrefix(arg, "-") && !strings.ContainsRune(arg, filepath.Separator) {
		return arg, nil
	}
	abs, err := filepath.Abs(arg)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", arg, err)
	}
	return transcript.EncodeProjectDir(abs), nil
}

// RunUsage prints the context usage of one session.
func RunUsage(project, sessionID string) error {
	cfg, store, err := loadStore()
	if err != nil {
		return output.PrintError(err)
	}
	dir, err := projectDirArg(project)
	if err != nil {
		return output.PrintError(err)
	}
	usage, err := store.TokenUsage(dir, sessionID, cfg.ContextWindow)
	if err != nil {
		if errors.Is(err, transcript.ErrNotFound) {
			err = fmt.Errorf("no transcript for session %s in %s", sessionID, dir)
		}
		return output.PrintError(err)
	}
	return output.Print(usage, func() {
		ui.ShowHeader("Session " + sessionID)
		ui.ShowField("used", formatTokens(usage.Used))
		ui.ShowField("total", formatTokens(usage.Total))
		ui.ShowField("percent", fmt.Sprintf("%.1f%%", percent(usage.Used, usage.Total)))
		ui.ShowField("input", formatTokens(usage.Breakdown.Input))
		ui.ShowField("cache write", formatTokens(usage.Breakdown.CacheCreation))
		ui.ShowField("cache read", formatTokens(usage.Breakdown.CacheRead))
	})
}

// RunCurrent prints the latest transcript of the project at cwd.
func RunCurrent(cwd string) error {
	_, store, err := loadStore()
	if err != nil {
		return output.PrintError(err)
	}
	if cwd == "" {
		if cwd, err = os.Getwd(); err != nil {
			return output.PrintError(err)
		}
	}
	if cwd, err = filepath.Abs(cwd); err != nil {
		return output.PrintError(err)
	}

	cur, err := sessionsync.NewService(store).Current(cwd)
	if err != nil {
		if errors.Is(err, transcript.ErrNotFound) {
			err = fmt.Errorf("no sessions recorded for %s", cwd)
		}
		return output.PrintError(err)
	}
	return output.Print(cur, func() {
		ui.ShowField("session", cur.SessionID)
		ui.ShowField("project", cur.ProjectDir)
		ui.ShowField("modified", cur.ModifiedAt.Format(time.RFC3339))
		ui.ShowField("size", fmt.Sprintf("%d bytes", cur.Size))
	})
}

// RunProjects lists every project under the transcript root.
func RunProjects() error {
	_, store, err := loadStore()
	if err != nil {
		return output.PrintError(err)
	}
	projects, err := store.ListProjects()
	if err != nil {
		return output.PrintError(err)
	}
	return output.Print(projects, func() {
		if len(projects) == 0 {
			ui.ShowInfo("No projects found in %s", store.Root)
			return
		}
		for _, p := range projects {
			name := p.Path
			if name == "" {
				name = p.ProjectDir
			}
			fmt.Fprintf(ui.Out, " %-50s %3d sessions  %s\n", name, p.SessionCount, p.LastActive.Format("2006-01-02 15:04"))
		}
	})
}

func percent(used, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(used) * 100 / float64(total)
}

// formatTokens groups digits by thousands: 1234567 -> "1,234,567".
func formatTokens(n int64) string {
	s := fmt.Sprintf("%d", n)
	if n < 0 {
		return "-" + formatTokens(-n)
	}
	parts := []string{}
	for i := len(s); i > 0; i -= 3 {
		start := i - 3
		if start < 0 {
			start = 0
		}
		parts = append([]string{s[start:i]}, parts...)
	}
	return strings.Join(parts, ",")
}
