// Package protocol defines the JSON messages exchanged on the chat connection.
//
// Inbound messages are normalized at parse time: legacy and provider-specific
// shapes are rewritten into the canonical run/abort/status/list commands so the
// rest of the server never branches on them.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Provider names a backend integration.
type Provider string

const (
	ProviderStream  Provider = "stream"
	ProviderProcess Provider = "process"
)

// Providers lists every provider in reporting order.
var Providers = []Provider{ProviderStream, ProviderProcess}

// ParseProvider accepts canonical names and the backend aliases "claude" and "cursor".
func ParseProvider(s string) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "stream", "claude":
		return ProviderStream, nil
	case "process", "cursor":
		return ProviderProcess, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownProvider, s)
}

var (
	ErrUnknownType     = errors.New("unknown message type")
	ErrUnknownProvider = errors.New("unknown provider")
	ErrMissingField    = errors.New("missing required field")
)

// Command kinds after normalization.
const (
	TypeRunCommand        = "run-command"
	TypeAbortSession      = "abort-session"
	TypeCheckStatus       = "check-session-status"
	TypeGetActiveSessions = "get-active-sessions"
)

// Options carries run-command options. Unknown keys are kept in Extra for the
// provider backend.
type Options struct {
	SessionID   string                     `json:"sessionId,omitempty"`
	ProjectPath string                     `json:"projectPath,omitempty"`
	Cwd         string                     `json:"cwd,omitempty"`
	Model       string                     `json:"model,omitempty"`
	Resume      bool                       `json:"resume,omitempty"`
	Extra       map[string]json.RawMessage `json:"-"`
}

// Path returns the working directory for the command.
func (o Options) Path() string {
	if o.ProjectPath != "" {
		return o.ProjectPath
	}
	return o.Cwd
}

// Command is a normalized inbound message.
type Command struct {
	Type      string
	Provider  Provider
	Text      string
	SessionID string
	Options   Options
}

// inbound is the union of every accepted inbound shape.
type inbound struct {
	Type      string          `json:"type"`
	Provider  string          `json:"provider"`
	Command   string          `json:"command"`
	SessionID string          `json:"sessionId"`
	Options   json.RawMessage `json:"options"`
}

// Parse decodes one inbound message and rewrites legacy shapes.
func Parse(data []byte) (Command, error) {
	var in inbound
	if err := json.Unmarshal(data, &in); err != nil {
		return Command{}, fmt.Errorf("invalid JSON: %w", err)
	}
	if in.Type == "" {
		return Command{}, fmt.Errorf("%w: type", ErrMissingField)
	}

	opts, err := parseOptions(in.Options)
	if err != nil {
		return Command{}, err
	}

	switch in.Type {
	case TypeRunCommand:
		p, err := ParseProvider(in.Provider)
		if err != nil {
			return Command{}, err
		}
		return runCommand(p, in.Command, opts), nil

	case "claude-command":
		return runCommand(ProviderStream, in.Command, opts), nil

	case "cursor-command":
		return runCommand(ProviderProcess, in.Command, opts), nil

	case "resume-legacy", "cursor-resume":
		if in.SessionID == "" && opts.SessionID == "" {
			return Command{}, fmt.Errorf("%w: sessionId", ErrMissingField)
		}
		if in.SessionID != "" {
			opts.SessionID = in.SessionID
		}
		opts.Resume = true
		return runCommand(ProviderProcess, "", opts), nil

	case TypeAbortSession, TypeCheckStatus:
		if in.SessionID == "" {
			return Command{}, fmt.Errorf("%w: sessionId", ErrMissingField)
		}
		p := ProviderStream
		if in.Provider != "" {
			if p, err = ParseProvider(in.Provider); err != nil {
				return Command{}, err
			}
		}
		return Command{Type: in.Type, Provider: p, SessionID: in.SessionID}, nil

	case "provider-specific-abort", "cursor-abort":
		if in.SessionID == "" {
			return Command{}, fmt.Errorf("%w: sessionId", ErrMissingField)
		}
		return Command{Type: TypeAbortSession, Provider: ProviderProcess, SessionID: in.SessionID}, nil

	case TypeGetActiveSessions:
		return Command{Type: TypeGetActiveSessions}, nil
	}

	return Command{}, fmt.Errorf("%w: %s", ErrUnknownType, in.Type)
}

func runCommand(p Provider, text string, opts Options) Command {
	if opts.SessionID != "" {
		opts.Resume = true
	}
	return Command{
		Type:      TypeRunCommand,
		Provider:  p,
		Text:      text,
		SessionID: opts.SessionID,
		Options:   opts,
	}
}

func parseOptions(raw json.RawMessage) (Options, error) {
	var opts Options
	if len(raw) == 0 || string(raw) == "null" {
		return opts, nil
	}
	if err := json.Unmarshal(raw, &opts); err != nil {
		return opts, fmt.Errorf("invalid options: %w", err)
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(raw, &all); err == nil {
		for _, k := range []string{"sessionId", "projectPath", "cwd", "model", "resume"} {
			delete(all, k)
		}
		if len(all) > 0 {
			opts.Extra = all
		}
	}
	return opts, nil
}
