package transcript

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// Append writes v as one JSON line to the transcript of sessionID for the
// project at projectPath, creating directories and the file as needed.
func (s *Store) Append(projectPath, sessionID string, v any) error {
	path, err := s.SessionFile(EncodeProjectDir(projectPath), sessionID)
	if err != nil {
		return err
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal transcript entry: %w", err)
	}
	data = append(data, '\n')

	mu := fileLock(path)
	mu.Lock()
	defer mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create project dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open transcript: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("append transcript: %w", err)
	}
	return f.Close()
}

// ReadEntries returns every parsable line of the transcript at path in file order.
func ReadEntries(path string) ([]json.RawMessage, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("open transcript: %w", err)
	}
	defer f.Close()

	var out []json.RawMessage
	err = ForEachLine(f, func(line []byte) {
		if !json.Valid(line) {
			return
		}
		raw := make(json.RawMessage, len(line))
		copy(raw, line)
		out = append(out, raw)
	})
	if err != nil {
		return out, fmt.Errorf("read transcript: %w", err)
	}
	return out, nil
}

// ForEachLine calls fn for every non-blank line of r in order, without the
// line terminator. Lines have no length limit. The slice passed to fn is only
// valid during the call.
func ForEachLine(r io.Reader, fn func(line []byte)) error {
	br := bufio.NewReaderSize(r, 64*1024)
	for {
		line, err := br.ReadSlice('\n')
		if errors.Is(err, bufio.ErrBufferFull) {
			// Long line: collect the rest of it.
			long := append([]byte(nil), line...)
			for errors.Is(err, bufio.ErrBufferFull) {
				line, err = br.ReadSlice('\n')
				long = append(long, line...)
			}
			line = long
		}
		if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
			fn(trimmed)
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}

var (
	fileLocks   = make(map[string]*sync.Mutex)
	fileLocksMu sync.Mutex
)

// fileLock serializes appends to one transcript within this process.
func fileLock(path string) *sync.Mutex {
	fileLocksMu.Lock()
	defer fileLocksMu.Unlock()
	mu, ok := fileLocks[path]
	if !ok {
		mu = &sync.Mutex{}
		fileLocks[path] = mu
	}
	return mu
}
