package transcript

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// readChunk is the block size used when walking a transcript from its end.
const readChunk = 64 * 1024

// Entry is one line of a transcript. Only the fields this package reads are decoded.
type Entry struct {
	Type      string        `json:"type"`
	SessionID string        `json:"sessionId,omitempty"`
	Usage     *EntryUsage   `json:"usage,omitempty"`
	Message   *EntryMessage `json:"message,omitempty"`
}

// EntryMessage is the nested message object written by the providers.
type EntryMessage struct {
	Role    string          `json:"role,omitempty"`
	Model   string          `json:"model,omitempty"`
	Content json.RawMessage `json:"content,omitempty"`
	Usage   *EntryUsage     `json:"usage,omitempty"`
}

// EntryUsage holds the per-entry token snapshot.
type EntryUsage struct {
	InputTokens         int64 `json:"input_tokens"`
	OutputTokens        int64 `json:"output_tokens,omitempty"`
	CacheCreationTokens int64 `json:"cache_creation_input_tokens"`
	CacheReadTokens     int64 `json:"cache_read_input_tokens"`
}

// usage returns the entry's token snapshot if it is an assistant entry carrying one.
func (e *Entry) usage() *EntryUsage {
	if e.Type != "assistant" {
		return nil
	}
	if e.Message != nil && e.Message.Usage != nil {
		return e.Message.Usage
	}
	return e.Usage
}

// Breakdown splits the used context into its input components.
type Breakdown struct {
	Input         int64 `json:"input"`
	CacheCreation int64 `json:"cacheCreation"`
	CacheRead     int64 `json:"cacheRead"`
}

// Usage is the context-window occupancy of a session.
type Usage struct {
	Used      int64     `json:"used"`
	Total     int64     `json:"total"`
	Breakdown Breakdown `json:"breakdown"`
}

// TokenUsage reports the context usage of a session from the most recent
// assistant entry in its transcript. Output tokens are not counted.
func (s *Store) TokenUsage(projectDir, sessionID string, contextWindow int) (*Usage, error) {
	path, err := s.SessionFile(projectDir, sessionID)
	if err != nil {
		return nil, err
	}
	latest, err := LatestUsage(path)
	if err != nil {
		return nil, err
	}

	u := &Usage{Total: int64(contextWindow)}
	if latest != nil {
		u.Breakdown = Breakdown{
			Input:         latest.InputTokens,
			CacheCreation: latest.CacheCreationTokens,
			CacheRead:     latest.CacheReadTokens,
		}
		u.Used = latest.InputTokens + latest.CacheCreationTokens + latest.CacheReadTokens
	}
	return u, nil
}

// LatestUsage walks the transcript at path backward and returns the first
// usage snapshot found, or nil when no entry carries one. Unparsable lines
// are skipped.
func LatestUsage(path string) (*EntryUsage, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("open transcript: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat transcript: %w", err)
	}

	var found *EntryUsage
	err = reverseLines(f, info.Size(), func(line []byte) bool {
		var e Entry
		if json.Unmarshal(line, &e) != nil {
			return true
		}
		if u := e.usage(); u != nil {
			found = u
			return false
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// reverseLines calls fn for every non-blank line of r, last line first,
// until fn returns false. The slice passed to fn is only valid during the call.
func reverseLines(r io.ReaderAt, size int64, fn func(line []byte) bool) error {
	var carry []byte
	pos := size
	for pos > 0 {
		n := int64(readChunk)
		if pos < n {
			n = pos
		}
		pos -= n

		buf := make([]byte, n, n+int64(len(carry)))
		if _, err := r.ReadAt(buf, pos); err != nil && err != io.EOF {
			return fmt.Errorf("read transcript: %w", err)
		}
		buf = append(buf, carry...)

		for {
			i := bytes.LastIndexByte(buf, '\n')
			if i < 0 {
				break
			}
			if line := bytes.TrimSpace(buf[i+1:]); len(line) > 0 {
				if !fn(line) {
					return nil
				}
			}
			buf = buf[:i]
		}
		carry = buf
	}
	if line := bytes.TrimSpace(carry); len(line) > 0 {
		fn(line)
	}
	return nil
}
