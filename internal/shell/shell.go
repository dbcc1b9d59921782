// Package shell bridges a websocket connection to an interactive shell
// running on a pseudo-terminal.
package shell

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/creack/pty"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"sessionhub/internal/chatsession"
	"sessionhub/internal/logging"
)

const (
	defaultCols = 80
	defaultRows = 24
	readBufSize = 32 * 1024
)

// Message is an inbound control or input frame. Text frames that are not
// JSON are written to the shell as-is.
type Message struct {
	Type string `json:"type"`
	Data string `json:"data,omitempty"`
	Cols uint16 `json:"cols,omitempty"`
	Rows uint16 `json:"rows,omitempty"`
}

// Exit is sent once the shell process ends.
type Exit struct {
	Type     string `json:"type"`
	ExitCode int    `json:"exitCode"`
}

// Bridge starts one shell per connection. Shell output is sent as binary
// frames.
type Bridge struct {
	shell string
	log   *logrus.Entry
}

// NewBridge returns a bridge running shell, or $SHELL, or /bin/sh.
func NewBridge(shell string) *Bridge {
	if shell == "" {
		shell = os.Getenv("SHELL")
	}
	if shell == "" {
		shell = "/bin/sh"
	}
	return &Bridge{shell: shell, log: logging.NewLogger("shell")}
}

// Serve runs a shell in cwd and pumps data both ways until either side
// closes. The shell is killed when the connection goes away.
func (b *Bridge) Serve(ctx context.Context, conn *chatsession.Conn, cwd string) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cmd := exec.CommandContext(ctx, b.shell)
	cmd.Dir = workDir(cwd)
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: defaultCols, Rows: defaultRows})
	if err != nil {
		b.log.WithError(err).Warn("failed to start shell")
		_ = conn.Send(map[string]string{"type": "error", "error": "failed to start shell"})
		return
	}
	defer ptmx.Close()

	log := b.log.WithField("pid", cmd.Process.Pid).WithField("cwd", cmd.Dir)
	log.Info("shell started")

	exited := make(chan struct{})
	go func() {
		defer close(exited)
		b.pumpOutput(ptmx, conn)
		code := 0
		if err := cmd.Wait(); err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				code = exitErr.ExitCode()
			}
		}
		log.WithField("exitCode", code).Info("shell exited")
		_ = conn.Send(Exit{Type: "exit", ExitCode: code})
		_ = conn.Close()
	}()

	b.pumpInput(conn, ptmx)
	cancel()
	_ = ptmx.Close()
	select {
	case <-exited:
	case <-time.After(5 * time.Second):
		log.Warn("shell did not exit after connection closed")
	}
}

func (b *Bridge) pumpOutput(ptmx io.Reader, conn *chatsession.Conn) {
	buf := make([]byte, readBufSize)
	for {
		n, err := ptmx.Read(buf)
		if n > 0 {
			if werr := conn.SendBinary(buf[:n]); werr != nil {
				return
			}
		}
		if err != nil {
			return
		}
	}
}

func (b *Bridge) pumpInput(conn *chatsession.Conn, ptmx *os.File) {
	for {
		kind, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				b.log.WithError(err).Debug("shell connection read error")
			}
			return
		}
		if err := handleFrame(ptmx, kind, raw); err != nil {
			b.log.WithError(err).Debug("failed to write to shell")
			return
		}
	}
}

// handleFrame applies one inbound frame to the terminal.
func handleFrame(ptmx *os.File, kind int, raw []byte) error {
	if kind == websocket.BinaryMessage {
		_, err := ptmx.Write(raw)
		return err
	}
	var msg Message
	if json.Unmarshal(raw, &msg) != nil || msg.Type == "" {
		_, err := ptmx.Write(raw)
		return err
	}
	switch msg.Type {
	case "input":
		_, err := ptmx.Write([]byte(msg.Data))
		return err
	case "resize":
		if msg.Cols == 0 || msg.Rows == 0 {
			return nil
		}
		return pty.Setsize(ptmx, &pty.Winsize{Cols: msg.Cols, Rows: msg.Rows})
	}
	return nil
}

func workDir(cwd string) string {
	if cwd != "" {
		if info, err := os.Stat(cwd); err == nil && info.IsDir() {
			return cwd
		}
	}
	if home, err := os.UserHomeDir(); err == nil {
		return home
	}
	return "/"
}
