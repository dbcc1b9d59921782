package chatsession

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sessionhub/internal/protocol"
)

func TestStreamSessionCompletes(t *testing.T) {
	streamer := streamFunc(func(ctx context.Context, req StreamRequest, emit func(json.RawMessage)) error {
		emit(json.RawMessage(`{"type":"delta","text":"hel"}`))
		emit(json.RawMessage(`{"type":"delta","text":"lo"}`))
		return nil
	})
	m := NewStreamManager(streamer)
	sink := &recorder{}

	id, err := m.SpawnOrResume(context.Background(), "hello", SpawnOptions{ProjectPath: t.TempDir()}, sink)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	done := sink.waitFor(t, protocol.TypeSessionComplete)
	assert.Equal(t, "completed", done["status"])
	assert.Equal(t, id, done["sessionId"])
	assert.Equal(t, []string{
		protocol.TypeSessionCreated,
		protocol.TypeProviderOutput,
		protocol.TypeProviderOutput,
		protocol.TypeSessionComplete,
	}, sink.types())

	outputs := sink.ofType(protocol.TypeProviderOutput)
	assert.Equal(t, "hel", outputs[0]["event"].(map[string]any)["text"])
	assert.Equal(t, "lo", outputs[1]["event"].(map[string]any)["text"])

	assert.False(t, m.IsActive(id))
	assert.Empty(t, m.ListActive())
}

func TestStreamSessionFailureReportsError(t *testing.T) {
	m := NewStreamManager(streamFunc(func(context.Context, StreamRequest, func(json.RawMessage)) error {
		return errors.New("upstream unavailable")
	}))
	sink := &recorder{}

	_, err := m.SpawnOrResume(context.Background(), "hi", SpawnOptions{ProjectPath: t.TempDir()}, sink)
	require.NoError(t, err)

	done := sink.waitFor(t, protocol.TypeSessionComplete)
	assert.Equal(t, "failed", done["status"])
	errs := sink.ofType(protocol.TypeError)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0]["error"], "upstream unavailable")
}

func TestAbortIsIdempotent(t *testing.T) {
	m := NewStreamManager(blockingStreamer(nil))
	sink := &recorder{}

	id, err := m.SpawnOrResume(context.Background(), "work", SpawnOptions{ProjectPath: t.TempDir()}, sink)
	require.NoError(t, err)
	sink.waitFor(t, protocol.TypeProviderOutput)
	require.True(t, m.IsActive(id))

	assert.True(t, m.Abort(id))
	assert.False(t, m.Abort(id))
	assert.False(t, m.IsActive(id))
	assert.NotContains(t, m.ListActive(), id)

	m.CloseAll()
	assert.Empty(t, sink.ofType(protocol.TypeSessionComplete), "aborted session must not report completion")
}

func TestAbortUnknownSession(t *testing.T) {
	m := NewStreamManager(blockingStreamer(nil))
	assert.False(t, m.Abort("nope"))
	assert.False(t, m.IsActive("nope"))
}

func TestResumeLiveSessionReattaches(t *testing.T) {
	reqs := make(chan StreamRequest, 4)
	m := NewStreamManager(blockingStreamer(reqs))
	first := &recorder{}

	id, err := m.SpawnOrResume(context.Background(), "start", SpawnOptions{ProjectPath: t.TempDir()}, first)
	require.NoError(t, err)
	<-reqs

	second := &recorder{}
	got, err := m.SpawnOrResume(context.Background(), "again", SpawnOptions{SessionID: id, Resume: true}, second)
	require.NoError(t, err)
	assert.Equal(t, id, got)

	assert.Equal(t, []string{id}, m.ListActive())
	assert.Len(t, m.Sessions(), 1)
	assert.Empty(t, reqs, "no second backend call")

	created := second.waitFor(t, protocol.TypeSessionCreated)
	assert.Equal(t, true, created["resumed"])
	second.waitFor(t, protocol.TypeError)

	m.CloseAll()
}

func TestResumeFinishedSessionStartsNewTurn(t *testing.T) {
	reqs := make(chan StreamRequest, 1)
	m := NewStreamManager(streamFunc(func(_ context.Context, req StreamRequest, _ func(json.RawMessage)) error {
		reqs <- req
		return nil
	}))
	sink := &recorder{}

	id, err := m.SpawnOrResume(context.Background(), "continue", SpawnOptions{
		SessionID:   "abc-123",
		ProjectPath: "/tmp/project",
		Resume:      true,
	}, sink)
	require.NoError(t, err)
	assert.Equal(t, "abc-123", id)

	req := <-reqs
	assert.True(t, req.Resume)
	assert.Equal(t, "abc-123", req.SessionID)
	assert.Equal(t, "/tmp/project", req.ProjectPath)
	assert.Equal(t, "continue", req.Prompt)
	sink.waitFor(t, protocol.TypeSessionComplete)
}

func TestFailingSinkIsDetached(t *testing.T) {
	release := make(chan struct{})
	m := NewStreamManager(streamFunc(func(_ context.Context, _ StreamRequest, emit func(json.RawMessage)) error {
		<-release
		emit(json.RawMessage(`{"type":"late"}`))
		return nil
	}))
	sink := &recorder{}

	id, err := m.SpawnOrResume(context.Background(), "go", SpawnOptions{ProjectPath: t.TempDir()}, sink)
	require.NoError(t, err)

	sink.mu.Lock()
	sink.fail = true
	sink.mu.Unlock()
	close(release)

	require.Eventually(t, func() bool { return !m.IsActive(id) }, 5*time.Second, 10*time.Millisecond)
	m.CloseAll()
	assert.Equal(t, []string{protocol.TypeSessionCreated}, sink.types())
}

// An abort racing with natural completion must resolve to exactly one
// terminal outcome.
func TestAbortCompletionRace(t *testing.T) {
	for i := 0; i < 200; i++ {
		start := make(chan struct{})
		m := NewStreamManager(streamFunc(func(ctx context.Context, _ StreamRequest, _ func(json.RawMessage)) error {
			<-start
			return nil
		}))
		sink := &recorder{}
		id, err := m.SpawnOrResume(context.Background(), "x", SpawnOptions{ProjectPath: "/tmp"}, sink)
		require.NoError(t, err)

		var aborted bool
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			aborted = m.Abort(id)
		}()
		close(start)
		wg.Wait()
		m.CloseAll()

		completes := len(sink.ofType(protocol.TypeSessionComplete))
		if aborted {
			assert.Equal(t, 0, completes, "iteration %d", i)
		} else {
			assert.Equal(t, 1, completes, "iteration %d", i)
		}
		assert.False(t, m.IsActive(id))
	}
}

func TestOnChangeReportsTransitions(t *testing.T) {
	m := NewStreamManager(blockingStreamer(nil))
	var mu sync.Mutex
	var seen []Status
	m.OnChange(func(info SessionInfo) {
		mu.Lock()
		seen = append(seen, info.Status)
		mu.Unlock()
	})

	sink := &recorder{}
	id, err := m.SpawnOrResume(context.Background(), "x", SpawnOptions{ProjectPath: "/tmp"}, sink)
	require.NoError(t, err)
	sink.waitFor(t, protocol.TypeProviderOutput)
	require.True(t, m.Abort(id))
	m.CloseAll()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []Status{StatusStarting, StatusRunning, StatusAborted}, seen)
}

func TestGenerateIDFormat(t *testing.T) {
	id := generateID()
	assert.Regexp(t, `^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`, id)
	assert.NotEqual(t, id, generateID())
}
