package chatsession

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"sessionhub/internal/protocol"
)

// StreamRequest is one turn handed to a Streamer.
type StreamRequest struct {
	SessionID   string
	ProjectPath string
	Model       string
	Prompt      string
	Resume      bool
}

// Streamer is a streaming backend call. Stream blocks until the turn ends,
// calling emit for each event in order. Cancelling ctx must make it return.
type Streamer interface {
	Stream(ctx context.Context, req StreamRequest, emit func(json.RawMessage)) error
}

// StreamManager runs sessions against a Streamer. Abort is cooperative: it
// cancels the turn's context and the Streamer unwinds on its own.
type StreamManager struct {
	*registry
	streamer Streamer
}

var _ Manager = (*StreamManager)(nil)

// NewStreamManager creates a manager for the stream-style provider.
func NewStreamManager(streamer Streamer) *StreamManager {
	return &StreamManager{
		registry: newRegistry(protocol.ProviderStream),
		streamer: streamer,
	}
}

// SpawnOrResume implements Manager.
func (m *StreamManager) SpawnOrResume(_ context.Context, command string, opts SpawnOptions, sink Sink) (string, error) {
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
	m.log.WithField("sessionId", s.ID).WithField("projectPath", projectPath).Info("starting stream session")

	req := StreamRequest{
		SessionID:   s.ID,
		ProjectPath: projectPath,
		Model:       opts.Model,
		Prompt:      command,
		Resume:      opts.Resume,
	}
	m.launch(s, func() (*int, error) {
		m.markRunning(s)
		err := m.streamer.Stream(ctx, req, func(event json.RawMessage) {
			m.emit(s, event)
		})
		if err != nil && ctx.Err() != nil {
			// Cancelled by abort; the abort already owns the terminal state.
			return nil, ctx.Err()
		}
		return nil, err
	})
	return s.ID, nil
}
