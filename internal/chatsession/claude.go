package chatsession

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/sirupsen/logrus"

	"sessionhub/internal/config"
	"sessionhub/internal/logging"
	"sessionhub/internal/transcript"
)

// AnthropicStreamer streams turns from the Messages API and records each
// turn in the session transcript, which is also where resumed sessions load
// their history from.
type AnthropicStreamer struct {
	client    anthropic.Client
	store     *transcript.Store
	model     string
	maxTokens int64
	log       *logrus.Entry
}

// NewAnthropicStreamer builds a streamer from the stream provider config.
// Credentials fall back to the SDK's environment lookup when unset.
func NewAnthropicStreamer(cfg config.StreamConfig, store *transcript.Store) *AnthropicStreamer {
	var opts []option.RequestOption
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &AnthropicStreamer{
		client:    anthropic.NewClient(opts...),
		store:     store,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		log:       logging.NewLogger("anthropic"),
	}
}

// transcriptLine is the shape this backend appends to a session transcript.
type transcriptLine struct {
	Type      string            `json:"type"`
	SessionID string            `json:"sessionId"`
	Cwd       string            `json:"cwd,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Message   transcriptMessage `json:"message"`
}

type transcriptMessage struct {
	Role    string                 `json:"role"`
	Model   string                 `json:"model,omitempty"`
	Content string                 `json:"content"`
	Usage   *transcript.EntryUsage `json:"usage,omitempty"`
}

// Stream implements Streamer.
func (a *AnthropicStreamer) Stream(ctx context.Context, req StreamRequest, emit func(json.RawMessage)) error {
	var history []anthropic.MessageParam
	if req.Resume {
		h, err := a.loadHistory(req.ProjectPath, req.SessionID)
		if err != nil && !errors.Is(err, transcript.ErrNotFound) {
			return fmt.Errorf("load history: %w", err)
		}
		history = h
	}
	if req.Prompt == "" {
		if req.Resume {
			return nil
		}
		return fmt.Errorf("command is required")
	}

	model := req.Model
	if model == "" {
		model = a.model
	}

	history = append(history, anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)))
	a.record(req, transcriptLine{
		Type:    "user",
		Message: transcriptMessage{Role: "user", Content: req.Prompt},
	})

	stream := a.client.Messages.NewStreaming(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: a.maxTokens,
		Messages:  history,
	})
	defer stream.Close()

	var msg anthropic.Message
	for stream.Next() {
		event := stream.Current()
		if err := msg.Accumulate(event); err != nil {
			return fmt.Errorf("accumulate event: %w", err)
		}
		raw := event.RawJSON()
		if raw == "" {
			data, err := json.Marshal(event)
			if err != nil {
				continue
			}
			raw = string(data)
		}
		emit(json.RawMessage(raw))
	}
	if err := stream.Err(); err != nil {
		return fmt.Errorf("stream messages: %w", err)
	}

	a.record(req, transcriptLine{
		Type: "assistant",
		Message: transcriptMessage{
			Role:    "assistant",
			Model:   string(msg.Model),
			Content: messageText(msg),
			Usage: &transcript.EntryUsage{
				InputTokens:         msg.Usage.InputTokens,
				OutputTokens:        msg.Usage.OutputTokens,
				CacheCreationTokens: msg.Usage.CacheCreationInputTokens,
				CacheReadTokens:     msg.Usage.CacheReadInputTokens,
			},
		},
	})
	return nil
}

// record appends a line to the transcript. Failures are logged, not returned:
// the turn itself already succeeded.
func (a *AnthropicStreamer) record(req StreamRequest, line transcriptLine) {
	if a.store == nil {
		return
	}
	line.SessionID = req.SessionID
	line.Cwd = req.ProjectPath
	line.Timestamp = time.Now().UTC()
	if err := a.store.Append(req.ProjectPath, req.SessionID, line); err != nil {
		a.log.WithError(err).WithField("sessionId", req.SessionID).Warn("failed to append transcript")
	}
}

// loadHistory rebuilds the conversation from the session transcript. Adjacent
// turns with the same role are merged and leading assistant turns dropped so
// the result is a valid alternating conversation.
func (a *AnthropicStreamer) loadHistory(projectPath, sessionID string) ([]anthropic.MessageParam, error) {
	if a.store == nil {
		return nil, nil
	}
	path, err := a.store.SessionFile(transcript.EncodeProjectDir(projectPath), sessionID)
	if err != nil {
		return nil, err
	}
	entries, err := transcript.ReadEntries(path)
	if err != nil {
		return nil, err
	}

	type turn struct {
		role string
		text string
	}
	var turns []turn
	for _, raw := range entries {
		var e struct {
			Type    string `json:"type"`
			Message *struct {
				Role    string          `json:"role"`
				Content json.RawMessage `json:"content"`
			} `json:"message"`
		}
		if json.Unmarshal(raw, &e) != nil || e.Message == nil {
			continue
		}
		role := e.Message.Role
		if role != "user" && role != "assistant" {
			continue
		}
		text := contentText(e.Message.Content)
		if text == "" {
			continue
		}
		if len(turns) == 0 && role == "assistant" {
			continue
		}
		if n := len(turns); n > 0 && turns[n-1].role == role {
			turns[n-1].text += "\n\n" + text
			continue
		}
		turns = append(turns, turn{role, text})
	}

	// The caller appends a user turn next.
	if n := len(turns); n > 0 && turns[n-1].role == "user" {
		turns = turns[:n-1]
	}

	history := make([]anthropic.MessageParam, 0, len(turns))
	for _, t := range turns {
		if t.role == "user" {
			history = append(history, anthropic.NewUserMessage(anthropic.NewTextBlock(t.text)))
		} else {
			history = append(history, anthropic.NewAssistantMessage(anthropic.NewTextBlock(t.text)))
		}
	}
	return history, nil
}

// contentText extracts text from either a plain string or an array of
// content blocks.
func contentText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var blocks []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if json.Unmarshal(raw, &blocks) != nil {
		return ""
	}
	var parts []string
	for _, b := range blocks {
		if b.Type == "text" && b.Text != "" {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// messageText pulls all text blocks of the accumulated message into one string.
func messageText(msg anthropic.Message) string {
	var parts []string
	for _, block := range msg.Content {
		if b, ok := block.AsAny().(anthropic.TextBlock); ok && b.Text != "" {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n")
}
