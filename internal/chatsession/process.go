package chatsession

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"sessionhub/internal/protocol"
	"sessionhub/internal/transcript"
)

const (
	// defaultKillWait is how long Abort waits for a killed process to be reaped.
	defaultKillWait = 5 * time.Second
	// defaultBackendIDLimit caps how many finished sessions keep their
	// backend id for a later resume.
	defaultBackendIDLimit = 1024
)

// ProcessRequest describes one CLI invocation.
type ProcessRequest struct {
	SessionID        string
	BackendSessionID string
	ProjectPath      string
	Model            string
	Prompt           string
	Resume           bool
	Extra            map[string]json.RawMessage
}

// CommandFactory builds the command for a request. The command must be
// created with exec.CommandContext(ctx, ...) so cancellation reaches it.
type CommandFactory func(ctx context.Context, req ProcessRequest) *exec.Cmd

// CursorCommand returns a factory invoking the cursor-agent CLI in
// stream-json mode.
func CursorCommand(binary string, baseArgs []string) CommandFactory {
	return func(ctx context.Context, req ProcessRequest) *exec.Cmd {
		args := append([]string{}, baseArgs...)
		if req.Resume {
			id := req.BackendSessionID
			if id == "" {
				id = req.SessionID
			}
			args = append(args, "--resume="+id)
		}
		if req.Prompt != "" {
			args = append(args, "-p", req.Prompt)
			if !req.Resume && req.Model != "" {
				args = append(args, "--model", req.Model)
			}
			args = append(args, "--output-format", "stream-json")
		}
		if v, ok := req.Extra["skipPermissions"]; ok && string(v) == "true" {
			args = append(args, "-f")
		}

		cmd := exec.CommandContext(ctx, binary, args...)
		cmd.Dir = req.ProjectPath
		cmd.Env = os.Environ()
		return cmd
	}
}

// ProcessManager runs each session as a child process. Abort kills the
// child's whole process group and waits for it to be reaped.
type ProcessManager struct {
	*registry
	factory  CommandFactory
	killWait time.Duration

	idsMu          sync.Mutex
	backendIDs     map[string]string
	backendOrder   []string
	backendIDLimit int
}

var _ Manager = (*ProcessManager)(nil)

// NewProcessManager creates a manager for the process-style provider.
func NewProcessManager(factory CommandFactory) *ProcessManager {
	return &ProcessManager{
		registry:       newRegistry(protocol.ProviderProcess),
		factory:        factory,
		killWait:       defaultKillWait,
		backendIDs:     make(map[string]string),
		backendIDLimit: defaultBackendIDLimit,
	}
}

// SpawnOrResume implements Manager.
func (m *ProcessManager) SpawnOrResume(_ context.Context, command string, opts SpawnOptions, sink Sink) (string, error) {
	projectPath := opts.ProjectPath
	if projectPath == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("resolve working directory: %w", err)
		}
		projectPath = wd
	}

	s, ctx, resumed := m.begin(opts.SessionID, projectPath, sink)
	if resumed {
		m.announce(s, true)
		if command != "" {
			s.send(protocol.Error{
				Type:      protocol.TypeError,
				Error:     "session is still running; command ignored",
				SessionID: s.ID,
				Provider:  m.provider,
			}, m.log)
		}
		return s.ID, nil
	}

	m.announce(s, opts.Resume)

	req := ProcessRequest{
		SessionID:        s.ID,
		BackendSessionID: m.backendID(s.ID),
		ProjectPath:      projectPath,
		Model:            opts.Model,
		Prompt:           command,
		Resume:           opts.Resume,
		Extra:            opts.Extra,
	}
	cmd := m.factory(ctx, req)
	setSysProcAttr(cmd)
	cmd.Cancel = func() error { return killProcessTree(cmd) }
	cmd.WaitDelay = 2 * time.Second

	m.log.WithField("sessionId", s.ID).WithField("command", filepath.Base(cmd.Path)).
		WithField("projectPath", projectPath).Info("spawning process session")

	m.launch(s, func() (*int, error) {
		return m.run(s, cmd)
	})
	return s.ID, nil
}

// Abort implements Manager. It returns once the process has exited or the
// kill wait elapsed.
func (m *ProcessManager) Abort(sessionID string) bool {
	s, ok := m.abort(sessionID)
	if !ok {
		return false
	}
	select {
	case <-s.Done():
	case <-time.After(m.killWait):
		m.log.WithField("sessionId", sessionID).Warn("process did not exit after kill")
	}
	return true
}

// run starts cmd and relays its stdout line by line until it exits.
func (m *ProcessManager) run(s *Session, cmd *exec.Cmd) (*int, error) {
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", filepath.Base(cmd.Path), err)
	}

	s.setTerminate(func() { _ = killProcessTree(cmd) })
	if !m.live(s) {
		// Aborted while starting.
		_ = killProcessTree(cmd)
	}
	m.markRunning(s)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		m.drainStderr(s, stderr)
	}()

	readErr := transcript.ForEachLine(stdout, func(line []byte) {
		m.emit(s, m.toEvent(s, line))
	})
	if readErr != nil {
		// The rest of the output is lost; stop the child rather than
		// reporting a partial run as complete.
		_ = killProcessTree(cmd)
	}
	wg.Wait()

	waitErr := cmd.Wait()
	var exitCode *int
	if cmd.ProcessState != nil {
		code := cmd.ProcessState.ExitCode()
		exitCode = &code
	}
	if readErr != nil {
		return exitCode, fmt.Errorf("read %s output: %w", filepath.Base(cmd.Path), readErr)
	}
	if waitErr != nil {
		return exitCode, fmt.Errorf("%s exited: %w", filepath.Base(cmd.Path), waitErr)
	}
	return exitCode, nil
}

// toEvent passes JSON lines through and wraps plain text. A session_id in
// the event is remembered for later resumes.
func (m *ProcessManager) toEvent(s *Session, line []byte) json.RawMessage {
	if json.Valid(line) {
		var meta struct {
			SessionID string `json:"session_id"`
		}
		if json.Unmarshal(line, &meta) == nil && meta.SessionID != "" {
			s.setBackendID(meta.SessionID)
			m.rememberBackendID(s.ID, meta.SessionID)
		}
		raw := make(json.RawMessage, len(line))
		copy(raw, line)
		return raw
	}
	data, _ := json.Marshal(map[string]string{"type": "text", "text": string(line)})
	return data
}

func (m *ProcessManager) drainStderr(s *Session, r io.Reader) {
	err := transcript.ForEachLine(r, func(line []byte) {
		m.log.WithField("sessionId", s.ID).Debug(string(line))
	})
	if err != nil {
		_, _ = io.Copy(io.Discard, r)
	}
}

// rememberBackendID records backendID for id, forgetting the oldest entries
// beyond backendIDLimit.
func (m *ProcessManager) rememberBackendID(id, backendID string) {
	m.idsMu.Lock()
	defer m.idsMu.Unlock()
	if _, ok := m.backendIDs[id]; !ok {
		m.backendOrder = append(m.backendOrder, id)
	}
	m.backendIDs[id] = backendID
	for len(m.backendOrder) > m.backendIDLimit {
		delete(m.backendIDs, m.backendOrder[0])
		m.backendOrder = m.backendOrder[1:]
	}
}

func (m *ProcessManager) backendID(id string) string {
	m.idsMu.Lock()
	defer m.idsMu.Unlock()
	return m.backendIDs[id]
}
