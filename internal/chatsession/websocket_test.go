package chatsession

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sessionhub/internal/protocol"
)

func TestMultiplexerProtocolErrorsKeepGoing(t *testing.T) {
	mux := NewMultiplexer(NewStreamManager(blockingStreamer(nil)))
	sink := &recorder{}

	mux.Handle(context.Background(), sink, []byte(`{not json`))
	mux.Handle(context.Background(), sink, []byte(`{"type":"teleport"}`))
	mux.Handle(context.Background(), sink, []byte(`{"type":"run-command","provider":"process","command":"x"}`))
	mux.Handle(context.Background(), sink, []byte(`{"type":"get-active-sessions"}`))

	assert.Equal(t, []string{
		protocol.TypeError,
		protocol.TypeError,
		protocol.TypeError,
		protocol.TypeActiveSessions,
	}, sink.types())
}

func TestMultiplexerAbortAndStatus(t *testing.T) {
	sm := NewStreamManager(blockingStreamer(nil))
	mux := NewMultiplexer(sm)
	sink := &recorder{}

	mux.Handle(context.Background(), sink, []byte(`{"type":"claude-command","command":"hi","options":{"projectPath":"/tmp"}}`))
	created := sink.waitFor(t, protocol.TypeSessionCreated)
	id := created["sessionId"].(string)
	sink.waitFor(t, protocol.TypeProviderOutput)

	mux.Handle(context.Background(), sink, []byte(`{"type":"check-session-status","sessionId":"`+id+`"}`))
	status := sink.ofType(protocol.TypeSessionStatus)
	require.Len(t, status, 1)
	assert.Equal(t, true, status[0]["isProcessing"])

	mux.Handle(context.Background(), sink, []byte(`{"type":"get-active-sessions"}`))
	active := sink.ofType(protocol.TypeActiveSessions)
	require.Len(t, active, 1)
	assert.Equal(t, []any{id}, active[0]["sessions"].(map[string]any)["stream"])

	mux.Handle(context.Background(), sink, []byte(`{"type":"abort-session","sessionId":"`+id+`"}`))
	mux.Handle(context.Background(), sink, []byte(`{"type":"abort-session","sessionId":"`+id+`"}`))
	aborted := sink.ofType(protocol.TypeSessionAborted)
	require.Len(t, aborted, 2)
	assert.Equal(t, true, aborted[0]["success"])
	assert.Equal(t, false, aborted[1]["success"])

	mux.Handle(context.Background(), sink, []byte(`{"type":"check-session-status","sessionId":"`+id+`"}`))
	status = sink.ofType(protocol.TypeSessionStatus)
	require.Len(t, status, 2)
	assert.Equal(t, false, status[1]["isProcessing"])

	mux.CloseAll()
}

func TestMultiplexerAbortUnknownProvider(t *testing.T) {
	mux := NewMultiplexer(NewStreamManager(blockingStreamer(nil)))
	sink := &recorder{}

	mux.Handle(context.Background(), sink, []byte(`{"type":"cursor-abort","sessionId":"s1"}`))
	aborted := sink.ofType(protocol.TypeSessionAborted)
	require.Len(t, aborted, 1)
	assert.Equal(t, false, aborted[0]["success"])
	assert.Equal(t, "process", aborted[0]["provider"])
}

func TestServeOverWebsocket(t *testing.T) {
	sm := NewStreamManager(blockingStreamer(nil))
	mux := NewMultiplexer(sm)
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn := NewConn(ws)
		defer conn.Close()
		mux.Serve(r.Context(), conn)
	}))
	defer srv.Close()

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)

	require.NoError(t, client.WriteJSON(map[string]any{
		"type":     "run-command",
		"provider": "stream",
		"command":  "hello",
		"options":  map[string]any{"projectPath": "/tmp"},
	}))

	var created protocol.SessionCreated
	require.NoError(t, client.SetReadDeadline(time.Now().Add(5*time.Second)))
	require.NoError(t, client.ReadJSON(&created))
	assert.Equal(t, protocol.TypeSessionCreated, created.Type)
	assert.Equal(t, protocol.ProviderStream, created.Provider)

	var output protocol.ProviderOutput
	require.NoError(t, client.ReadJSON(&output))
	assert.JSONEq(t, `{"type":"started"}`, string(output.Event))

	// Closing the connection leaves the session running.
	require.NoError(t, client.Close())
	time.Sleep(50 * time.Millisecond)
	assert.True(t, sm.IsActive(created.SessionID))

	mux.CloseAll()
	assert.False(t, sm.IsActive(created.SessionID))
}

func TestConnSendAfterClose(t *testing.T) {
	upgrader := websocket.Upgrader{}
	result := make(chan error, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			result <- err
			return
		}
		conn := NewConn(ws)
		assert.NoError(t, conn.Send(json.RawMessage(`{"type":"ping"}`)))
		assert.NoError(t, conn.Close())
		assert.NoError(t, conn.Close())
		result <- conn.Send(map[string]string{"type": "late"})
	}))
	defer srv.Close()

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer client.Close()

	_, data, err := client.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"ping"}`, string(data))
	assert.ErrorIs(t, <-result, errConnClosed)
}
