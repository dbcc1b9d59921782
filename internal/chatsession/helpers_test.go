package chatsession

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// recorder is a Sink that keeps every message as a decoded JSON object.
type recorder struct {
	mu   sync.Mutex
	msgs []map[string]any
	fail bool
}

func (r *recorder) Send(v any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("broken pipe")
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	r.msgs = append(r.msgs, m)
	return nil
}

func (r *recorder) messages() []map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]map[string]any(nil), r.msgs...)
}

func (r *recorder) types() []string {
	var out []string
	for _, m := range r.messages() {
		out = append(out, m["type"].(string))
	}
	return out
}

func (r *recorder) ofType(typ string) []map[string]any {
	var out []map[string]any
	for _, m := range r.messages() {
		if m["type"] == typ {
			out = append(out, m)
		}
	}
	return out
}

// waitFor polls until the recorder has seen a message of typ.
func (r *recorder) waitFor(t *testing.T, typ string) map[string]any {
	t.Helper()
	var found map[string]any
	require.Eventually(t, func() bool {
		msgs := r.ofType(typ)
		if len(msgs) == 0 {
			return false
		}
		found = msgs[0]
		return true
	}, 5*time.Second, 10*time.Millisecond, "no %s message", typ)
	return found
}

// streamFunc adapts a function to Streamer.
type streamFunc func(ctx context.Context, req StreamRequest, emit func(json.RawMessage)) error

func (f streamFunc) Stream(ctx context.Context, req StreamRequest, emit func(json.RawMessage)) error {
	return f(ctx, req, emit)
}

// blockingStreamer emits one event and then waits for cancellation.
func blockingStreamer(reqs chan<- StreamRequest) Streamer {
	return streamFunc(func(ctx context.Context, req StreamRequest, emit func(json.RawMessage)) error {
		if reqs != nil {
			reqs <- req
		}
		emit(json.RawMessage(`{"type":"started"}`))
		<-ctx.Done()
		return ctx.Err()
	})
}
