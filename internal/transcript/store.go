package transcript

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

var (
	// ErrNotFound reports a missing transcript file or project directory.
	ErrNotFound = errors.New("transcript not found")
	// ErrInvalidSessionID reports a session id with characters outside [A-Za-z0-9._-].
	ErrInvalidSessionID = errors.New("invalid session id")
	// ErrInvalidPath reports a lookup that would resolve outside its project directory.
	ErrInvalidPath = errors.New("invalid path")
)

const fileExt = ".jsonl"

var (
	projectDirChars = regexp.MustCompile(`[/:\s~_]`)
	sessionIDChars  = regexp.MustCompile(`[^A-Za-z0-9._-]`)
)

// EncodeProjectDir maps a project path to its transcript directory name.
// e.g. "/Users/me/my_app" -> "-Users-me-my-app"
func EncodeProjectDir(projectPath string) string {
	return projectDirChars.ReplaceAllString(projectPath, "-")
}

// SanitizeSessionID strips every character outside [A-Za-z0-9._-].
func SanitizeSessionID(id string) string {
	return sessionIDChars.ReplaceAllString(id, "")
}

// Store reads session transcripts below a root directory laid out as
// <root>/<encoded project dir>/<session id>.jsonl.
type Store struct {
	Root string
}

// NewStore returns a Store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{Root: dir}
}

// ProjectDir returns the validated absolute directory for an encoded project name.
func (s *Store) ProjectDir(projectDir string) (string, error) {
	if projectDir == "" || projectDir == "." || projectDir == ".." ||
		strings.ContainsAny(projectDir, `/\`) {
		return "", ErrInvalidPath
	}
	root, err := filepath.Abs(s.Root)
	if err != nil {
		return "", fmt.Errorf("resolve transcript root: %w", err)
	}
	dir := filepath.Join(root, projectDir)
	if !contained(root, dir) {
		return "", ErrInvalidPath
	}
	return dir, nil
}

// SessionFile resolves the transcript path for sessionID inside projectDir.
// The id must already be in sanitized form and the result must stay inside
// the project directory; the file itself is not required to exist.
func (s *Store) SessionFile(projectDir, sessionID string) (string, error) {
	safe := SanitizeSessionID(sessionID)
	if safe == "" || safe != sessionID || strings.Trim(safe, ".") == "" {
		return "", ErrInvalidSessionID
	}
	dir, err := s.ProjectDir(projectDir)
	if err != nil {
		return "", err
	}
	file := filepath.Join(dir, safe+fileExt)
	if !contained(dir, file) {
		return "", ErrInvalidPath
	}
	return file, nil
}

// contained reports whether target lies strictly inside base.
func contained(base, target string) bool {
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

// SessionFileInfo describes one transcript file on disk.
type SessionFileInfo struct {
	SessionID  string    `json:"sessionId"`
	ProjectDir string    `json:"projectDir"`
	Path       string    `json:"-"`
	ModifiedAt time.Time `json:"modifiedAt"`
	Size       int64     `json:"size"`
}

// ListSessions returns every transcript in projectDir, most recently modified first.
func (s *Store) ListSessions(projectDir string) ([]SessionFileInfo, error) {
	dir, err := s.ProjectDir(projectDir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read project dir: %w", err)
	}

	var out []SessionFileInfo
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), fileExt) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue // removed between ReadDir and Info
		}
		out = append(out, SessionFileInfo{
			SessionID:  strings.TrimSuffix(e.Name(), fileExt),
			ProjectDir: projectDir,
			Path:       filepath.Join(dir, e.Name()),
			ModifiedAt: info.ModTime(),
			Size:       info.Size(),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ModifiedAt.After(out[j].ModifiedAt)
	})
	return out, nil
}

// LatestSession returns the most recently modified transcript in projectDir.
func (s *Store) LatestSession(projectDir string) (*SessionFileInfo, error) {
	sessions, err := s.ListSessions(projectDir)
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, ErrNotFound
	}
	return &sessions[0], nil
}
