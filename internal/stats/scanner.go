package stats

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"sessionhub/internal/transcript"
)

// line is the subset of a transcript line the scanner reads.
type line struct {
	Type      string    `json:"type"`
	Cwd       string    `json:"cwd"`
	Timestamp time.Time `json:"timestamp"`
	Message   *struct {
		ID    string                 `json:"id"`
		Model string                 `json:"model"`
		Usage *transcript.EntryUsage `json:"usage"`
	} `json:"message"`
}

// Scanner reads usage totals from a transcript store.
type Scanner struct {
	store *transcript.Store
}

// NewScanner creates a Scanner over store.
func NewScanner(store *transcript.Store) *Scanner {
	return &Scanner{store: store}
}

// Session totals one transcript. It returns transcript.ErrNotFound when the
// file is missing and a nil record when the session has no assistant turns.
func (s *Scanner) Session(projectDir, sessionID string) (*SessionRecord, error) {
	path, err := s.store.SessionFile(projectDir, sessionID)
	if err != nil {
		return nil, err
	}
	return parseSessionFile(path, projectDir, sessionID)
}

// Project totals every transcript in projectDir modified at or after since.
// A zero since includes everything.
func (s *Scanner) Project(projectDir string, since time.Time) ([]SessionRecord, error) {
	files, err := s.store.ListSessions(projectDir)
	if err != nil {
		return nil, err
	}
	var records []SessionRecord
	for _, f := range files {
		if !since.IsZero() && f.ModifiedAt.Before(since) {
			continue
		}
		rec, err := parseSessionFile(f.Path, projectDir, f.SessionID)
		if err != nil || rec == nil {
			continue
		}
		records = append(records, *rec)
	}
	return records, nil
}

// All totals every project under the store root.
func (s *Scanner) All(since time.Time) ([]SessionRecord, error) {
	projects, err := s.store.ListProjects()
	if err != nil {
		return nil, err
	}
	var records []SessionRecord
	for _, p := range projects {
		if !since.IsZero() && p.LastActive.Before(since) {
			continue
		}
		recs, err := s.Project(p.ProjectDir, since)
		if err != nil {
			if errors.Is(err, transcript.ErrNotFound) {
				continue
			}
			return nil, err
		}
		records = append(records, recs...)
	}
	return records, nil
}

// parseSessionFile sums usage over assistant lines. A streamed message can
// be split across several lines sharing a message id, each repeating the
// usage; only the last one per id counts.
func parseSessionFile(path, projectDir, sessionID string) (*SessionRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, transcript.ErrNotFound
		}
		return nil, fmt.Errorf("open transcript: %w", err)
	}
	defer f.Close()

	rec := &SessionRecord{SessionID: sessionID, ProjectDir: projectDir}

	type turn struct {
		model string
		usage transcript.EntryUsage
	}
	var (
		turns []turn
		byID  = make(map[string]int)
	)

	err = transcript.ForEachLine(f, func(raw []byte) {
		var l line
		if json.Unmarshal(raw, &l) != nil {
			return
		}
		if rec.ProjectPath == "" && l.Cwd != "" {
			rec.ProjectPath = l.Cwd
		}
		if !l.Timestamp.IsZero() {
			if rec.StartTime.IsZero() || l.Timestamp.Before(rec.StartTime) {
				rec.StartTime = l.Timestamp
			}
			if l.Timestamp.After(rec.EndTime) {
				rec.EndTime = l.Timestamp
			}
		}
		if l.Type != "assistant" || l.Message == nil {
			return
		}

		t := turn{model: l.Message.Model}
		if l.Message.Usage != nil {
			t.usage = *l.Message.Usage
		}
		if id := l.Message.ID; id != "" {
			if i, ok := byID[id]; ok {
				turns[i] = t
				return
			}
			byID[id] = len(turns)
		}
		turns = append(turns, t)
	})
	if err != nil {
		return nil, fmt.Errorf("read transcript: %w", err)
	}
	if len(turns) == 0 {
		return nil, nil
	}

	for _, t := range turns {
		if t.model != "" {
			rec.Model = t.model
		}
		rec.InputTokens += t.usage.InputTokens
		rec.OutputTokens += t.usage.OutputTokens
		rec.CacheCreateTokens += t.usage.CacheCreationTokens
		rec.CacheReadTokens += t.usage.CacheReadTokens
		rec.CostUSD += Cost(t.model, t.usage)
	}
	rec.Turns = len(turns)
	if rec.ProjectPath == "" {
		rec.ProjectPath = transcript.DecodeProjectDir(projectDir)
	}
	if !rec.StartTime.IsZero() {
		rec.Duration = rec.EndTime.Sub(rec.StartTime)
	}
	return rec, nil
}
