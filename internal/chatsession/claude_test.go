package chatsession

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sessionhub/internal/config"
	"sessionhub/internal/transcript"
)

const sseTurn = `event: message_start
data: {"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","model":"claude-test","content":[],"stop_reason":null,"stop_sequence":null,"usage":{"input_tokens":40,"output_tokens":1,"cache_creation_input_tokens":7,"cache_read_input_tokens":3}}}

event: content_block_start
data: {"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}

event: content_block_delta
data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"%s"}}

event: content_block_stop
data: {"type":"content_block_stop","index":0}

event: message_delta
data: {"type":"message_delta","delta":{"stop_reason":"end_turn","stop_sequence":null},"usage":{"input_tokens":40,"output_tokens":12,"cache_creation_input_tokens":7,"cache_read_input_tokens":3}}

event: message_stop
data: {"type":"message_stop"}

`

type fakeMessagesAPI struct {
	mu     sync.Mutex
	bodies []map[string]any
	reply  string
}

func (f *fakeMessagesAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/messages" {
		http.NotFound(w, r)
		return
	}
	data, _ := io.ReadAll(r.Body)
	var body map[string]any
	_ = json.Unmarshal(data, &body)
	f.mu.Lock()
	f.bodies = append(f.bodies, body)
	f.mu.Unlock()

	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, sseTurn, f.reply)
}

func (f *fakeMessagesAPI) lastMessages(t *testing.T) []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.bodies)
	return f.bodies[len(f.bodies)-1]["messages"].([]any)
}

func newTestStreamer(t *testing.T, api *fakeMessagesAPI) (*AnthropicStreamer, *transcript.Store) {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	store := transcript.NewStore(t.TempDir())
	return NewAnthropicStreamer(config.StreamConfig{
		Model:     "claude-test",
		MaxTokens: 256,
		APIKey:    "test-key",
		BaseURL:   srv.URL,
	}, store), store
}

func TestAnthropicStreamerRecordsTranscript(t *testing.T) {
	api := &fakeMessagesAPI{reply: "Hello there"}
	streamer, store := newTestStreamer(t, api)

	var events []json.RawMessage
	err := streamer.Stream(context.Background(), StreamRequest{
		SessionID:   "s1",
		ProjectPath: "/home/me/app",
		Prompt:      "hi",
	}, func(e json.RawMessage) { events = append(events, e) })
	require.NoError(t, err)

	require.Len(t, events, 6)
	assert.Contains(t, string(events[0]), `"message_start"`)
	assert.Contains(t, string(events[2]), `Hello there`)

	path, err := store.SessionFile(transcript.EncodeProjectDir("/home/me/app"), "s1")
	require.NoError(t, err)
	entries, err := transcript.ReadEntries(path)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Contains(t, string(entries[0]), `"role":"user"`)
	assert.Contains(t, string(entries[1]), `"content":"Hello there"`)

	u, err := store.TokenUsage(transcript.EncodeProjectDir("/home/me/app"), "s1", 1000)
	require.NoError(t, err)
	assert.Equal(t, int64(50), u.Used)
}

func TestAnthropicStreamerResumeSendsHistory(t *testing.T) {
	api := &fakeMessagesAPI{reply: "first answer"}
	streamer, _ := newTestStreamer(t, api)
	req := StreamRequest{SessionID: "s2", ProjectPath: "/p", Prompt: "first question"}
	require.NoError(t, streamer.Stream(context.Background(), req, func(json.RawMessage) {}))

	api.reply = "second answer"
	req.Prompt = "second question"
	req.Resume = true
	require.NoError(t, streamer.Stream(context.Background(), req, func(json.RawMessage) {}))

	msgs := api.lastMessages(t)
	require.Len(t, msgs, 3)
	assert.Equal(t, "user", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "assistant", msgs[1].(map[string]any)["role"])
	assert.Equal(t, "user", msgs[2].(map[string]any)["role"])
	assert.Contains(t, fmt.Sprint(msgs[1]), "first answer")
}

func TestAnthropicStreamerResumeWithoutPrompt(t *testing.T) {
	api := &fakeMessagesAPI{}
	streamer, _ := newTestStreamer(t, api)

	err := streamer.Stream(context.Background(), StreamRequest{SessionID: "s3", ProjectPath: "/p", Resume: true}, func(json.RawMessage) {})
	require.NoError(t, err)
	assert.Empty(t, api.bodies)

	err = streamer.Stream(context.Background(), StreamRequest{SessionID: "s3", ProjectPath: "/p"}, func(json.RawMessage) {})
	assert.Error(t, err)
}

func TestContentText(t *testing.T) {
	assert.Equal(t, "plain", contentText(json.RawMessage(`"plain"`)))
	assert.Equal(t, "a\nb", contentText(json.RawMessage(`[{"type":"text","text":"a"},{"type":"tool_use","id":"x"},{"type":"text","text":"b"}]`)))
	assert.Equal(t, "", contentText(json.RawMessage(`{"odd":true}`)))
	assert.Equal(t, "", contentText(nil))
}
