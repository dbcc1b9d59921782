package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const hookTimeout = 30 * time.Second

// HookPayload is written as JSON to the hook script's stdin.
type HookPayload struct {
	SessionID   string `json:"sessionId"`
	Provider    string `json:"provider"`
	ProjectPath string `json:"projectPath"`
	Status      string `json:"status"`
	Title       string `json:"title"`
	Message     string `json:"message"`
	Timestamp   string `json:"timestamp"`
}

// HookNotifier runs a local script for every notification.
type HookNotifier struct {
	ScriptPath string
}

// NewHookNotifier creates a HookNotifier for scriptPath.
func NewHookNotifier(scriptPath string) *HookNotifier {
	return &HookNotifier{ScriptPath: scriptPath}
}

// Send runs the script with the payload on stdin, killing it after 30s.
func (h *HookNotifier) Send(n Notification) error {
	ctx, cancel := context.WithTimeout(context.Background(), hookTimeout)
	defer cancel()

	data, err := json.Marshal(HookPayload{
		SessionID:   n.SessionID,
		Provider:    string(n.Provider),
		ProjectPath: n.ProjectPath,
		Status:      string(n.Status),
		Title:       n.Title,
		Message:     n.Message,
		Timestamp:   n.FinishedAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("hook marshal payload: %w", err)
	}

	cmd := exec.CommandContext(ctx, h.ScriptPath)
	cmd.Stdin = strings.NewReader(string(data))
	out, err := cmd.CombinedOutput()
	if ctx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("hook timed out after %s: %s", hookTimeout, h.ScriptPath)
	}
	if err != nil {
		return fmt.Errorf("hook %s failed: %w (output: %s)", h.ScriptPath, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Name returns "hook".
func (h *HookNotifier) Name() string { return "hook" }
