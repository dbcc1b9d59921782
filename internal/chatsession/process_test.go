//go:build !windows

package chatsession

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sessionhub/internal/protocol"
)

func shellCommand(script string) CommandFactory {
	return func(ctx context.Context, req ProcessRequest) *exec.Cmd {
		cmd := exec.CommandContext(ctx, "sh", "-c", script)
		cmd.Dir = req.ProjectPath
		return cmd
	}
}

func TestProcessSessionRelaysOutput(t *testing.T) {
	m := NewProcessManager(shellCommand(`echo '{"type":"system","session_id":"backend-1"}'; echo 'plain text'; echo ''; echo '{"type":"result"}'`))
	sink := &recorder{}

	id, err := m.SpawnOrResume(context.Background(), "hi", SpawnOptions{ProjectPath: t.TempDir()}, sink)
	require.NoError(t, err)

	done := sink.waitFor(t, protocol.TypeSessionComplete)
	assert.Equal(t, "completed", done["status"])
	assert.Equal(t, float64(0), done["exitCode"])

	outputs := sink.ofType(protocol.TypeProviderOutput)
	require.Len(t, outputs, 3)
	assert.Equal(t, "system", outputs[0]["event"].(map[string]any)["type"])
	assert.Equal(t, map[string]any{"type": "text", "text": "plain text"}, outputs[1]["event"])
	assert.Equal(t, "result", outputs[2]["event"].(map[string]any)["type"])

	assert.Equal(t, "backend-1", m.backendID(id))
	assert.False(t, m.IsActive(id))
}

func TestProcessSessionRelaysOversizedLine(t *testing.T) {
	// 5 MB without a newline, then one more event.
	m := NewProcessManager(shellCommand(`echo '{"type":"before"}'; head -c 5000000 /dev/zero | tr '\0' a; echo; echo '{"type":"after"}'`))
	sink := &recorder{}

	_, err := m.SpawnOrResume(context.Background(), "hi", SpawnOptions{ProjectPath: t.TempDir()}, sink)
	require.NoError(t, err)

	done := sink.waitFor(t, protocol.TypeSessionComplete)
	assert.Equal(t, "completed", done["status"])
	assert.Empty(t, sink.ofType(protocol.TypeError))

	outputs := sink.ofType(protocol.TypeProviderOutput)
	require.Len(t, outputs, 3)
	assert.Equal(t, "before", outputs[0]["event"].(map[string]any)["type"])
	long := outputs[1]["event"].(map[string]any)
	assert.Equal(t, "text", long["type"])
	assert.Len(t, long["text"], 5000000)
	assert.Equal(t, "after", outputs[2]["event"].(map[string]any)["type"])
}

func TestBackendIDsAreBounded(t *testing.T) {
	m := NewProcessManager(shellCommand(`true`))
	m.backendIDLimit = 3

	for i := range 5 {
		m.rememberBackendID(fmt.Sprintf("s%d", i), fmt.Sprintf("b%d", i))
	}
	m.rememberBackendID("s4", "b4-new")

	assert.Len(t, m.backendIDs, 3)
	assert.Empty(t, m.backendID("s0"))
	assert.Empty(t, m.backendID("s1"))
	assert.Equal(t, "b2", m.backendID("s2"))
	assert.Equal(t, "b4-new", m.backendID("s4"))
}

func TestMultiplexerProcessRunToCompletion(t *testing.T) {
	pm := NewProcessManager(shellCommand(`echo '{"type":"progress","step":"build"}'; echo '{"type":"result"}'`))
	mux := NewMultiplexer(NewStreamManager(blockingStreamer(nil)), pm)
	defer mux.CloseAll()
	sink := &recorder{}

	cmd, err := json.Marshal(map[string]any{
		"type":     "run-command",
		"provider": "process",
		"command":  "build",
		"options":  map[string]any{"projectPath": t.TempDir()},
	})
	require.NoError(t, err)
	mux.Handle(context.Background(), sink, cmd)

	id := sink.waitFor(t, protocol.TypeSessionCreated)["sessionId"].(string)
	require.NotEmpty(t, id)
	done := sink.waitFor(t, protocol.TypeSessionComplete)
	assert.Equal(t, id, done["sessionId"])
	assert.Equal(t, "completed", done["status"])
	assert.Len(t, sink.ofType(protocol.TypeProviderOutput), 2)

	mux.Handle(context.Background(), sink, []byte(`{"type":"check-session-status","sessionId":"`+id+`"}`))
	mux.Handle(context.Background(), sink, []byte(`{"type":"check-session-status","provider":"process","sessionId":"`+id+`"}`))
	for _, status := range sink.ofType(protocol.TypeSessionStatus) {
		assert.Equal(t, false, status["isProcessing"])
	}
	require.Len(t, sink.ofType(protocol.TypeSessionStatus), 2)

	mux.Handle(context.Background(), sink, []byte(`{"type":"abort-session","provider":"process","sessionId":"`+id+`"}`))
	aborted := sink.ofType(protocol.TypeSessionAborted)
	require.Len(t, aborted, 1)
	assert.Equal(t, false, aborted[0]["success"])
	assert.False(t, pm.IsActive(id))
}

func TestProcessSessionNonZeroExit(t *testing.T) {
	m := NewProcessManager(shellCommand(`echo oops >&2; exit 3`))
	sink := &recorder{}

	_, err := m.SpawnOrResume(context.Background(), "hi", SpawnOptions{ProjectPath: t.TempDir()}, sink)
	require.NoError(t, err)

	done := sink.waitFor(t, protocol.TypeSessionComplete)
	assert.Equal(t, "failed", done["status"])
	assert.Equal(t, float64(3), done["exitCode"])
	assert.Len(t, sink.ofType(protocol.TypeError), 1)
}

func TestProcessSessionStartFailure(t *testing.T) {
	m := NewProcessManager(func(ctx context.Context, req ProcessRequest) *exec.Cmd {
		return exec.CommandContext(ctx, "/nonexistent/binary-for-test")
	})
	sink := &recorder{}

	id, err := m.SpawnOrResume(context.Background(), "hi", SpawnOptions{ProjectPath: t.TempDir()}, sink)
	require.NoError(t, err)

	done := sink.waitFor(t, protocol.TypeSessionComplete)
	assert.Equal(t, "failed", done["status"])
	assert.False(t, m.IsActive(id))
}

func TestProcessAbortKillsProcessGroup(t *testing.T) {
	// The inner sleep is a grandchild; killing only the shell would leave it
	// holding stdout open.
	m := NewProcessManager(shellCommand(`echo '{"type":"started"}'; sleep 30 & wait`))
	sink := &recorder{}

	id, err := m.SpawnOrResume(context.Background(), "work", SpawnOptions{ProjectPath: t.TempDir()}, sink)
	require.NoError(t, err)
	sink.waitFor(t, protocol.TypeProviderOutput)
	require.True(t, m.IsActive(id))

	start := time.Now()
	assert.True(t, m.Abort(id))
	assert.Less(t, time.Since(start), 4*time.Second)
	assert.False(t, m.Abort(id))
	assert.False(t, m.IsActive(id))
	assert.NotContains(t, m.ListActive(), id)

	m.CloseAll()
	assert.Empty(t, sink.ofType(protocol.TypeSessionComplete))
}

func TestProcessResumePassesBackendID(t *testing.T) {
	reqs := make(chan ProcessRequest, 2)
	m := NewProcessManager(func(ctx context.Context, req ProcessRequest) *exec.Cmd {
		reqs <- req
		return exec.CommandContext(ctx, "sh", "-c", `echo '{"type":"init","session_id":"cursor-9"}'`)
	})
	dir := t.TempDir()

	first := &recorder{}
	id, err := m.SpawnOrResume(context.Background(), "one", SpawnOptions{ProjectPath: dir}, first)
	require.NoError(t, err)
	first.waitFor(t, protocol.TypeSessionComplete)
	<-reqs

	second := &recorder{}
	got, err := m.SpawnOrResume(context.Background(), "two", SpawnOptions{SessionID: id, ProjectPath: dir, Resume: true}, second)
	require.NoError(t, err)
	assert.Equal(t, id, got)
	second.waitFor(t, protocol.TypeSessionComplete)

	req := <-reqs
	assert.True(t, req.Resume)
	assert.Equal(t, "cursor-9", req.BackendSessionID)
	assert.Equal(t, "two", req.Prompt)
}

func TestCursorCommandArgs(t *testing.T) {
	factory := CursorCommand("cursor-agent", []string{"--print"})

	cmd := factory(context.Background(), ProcessRequest{
		ProjectPath: "/work",
		Prompt:      "fix it",
		Model:       "gpt-5",
		Extra:       map[string]json.RawMessage{"skipPermissions": json.RawMessage("true")},
	})
	assert.Equal(t, []string{"cursor-agent", "--print", "-p", "fix it", "--model", "gpt-5", "--output-format", "stream-json", "-f"}, cmd.Args)
	assert.Equal(t, "/work", cmd.Dir)

	cmd = factory(context.Background(), ProcessRequest{
		SessionID:        "ours",
		BackendSessionID: "theirs",
		Prompt:           "more",
		Model:            "ignored-on-resume",
		Resume:           true,
	})
	assert.Equal(t, []string{"cursor-agent", "--print", "--resume=theirs", "-p", "more", "--output-format", "stream-json"}, cmd.Args)

	cmd = factory(context.Background(), ProcessRequest{SessionID: "ours", Resume: true})
	assert.Equal(t, []string{"cursor-agent", "--print", "--resume=ours"}, cmd.Args)
}
