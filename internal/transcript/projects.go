package transcript

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ProjectInfo summarizes one project directory under the transcript root.
type ProjectInfo struct {
	ProjectDir   string    `json:"projectDir"`
	Path         string    `json:"path,omitempty"`
	SessionCount int       `json:"sessionCount"`
	LastActive   time.Time `json:"lastActive"`
}

// ListProjects returns every project directory, most recently active first.
// Path is filled in when the encoded name can be matched to an existing
// directory on this machine.
func (s *Store) ListProjects() ([]ProjectInfo, error) {
	entries, err := os.ReadDir(s.Root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read transcript root: %w", err)
	}

	var out []ProjectInfo
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		p, err := s.Project(e.Name())
		if err != nil {
			continue
		}
		out = append(out, *p)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastActive.After(out[j].LastActive)
	})
	return out, nil
}

// Project summarizes a single encoded project directory.
func (s *Store) Project(projectDir string) (*ProjectInfo, error) {
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

	p := &ProjectInfo{ProjectDir: projectDir, Path: DecodeProjectDir(projectDir)}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), fileExt) {
			continue
		}
		p.SessionCount++
		if info, err := e.Info(); err == nil && info.ModTime().After(p.LastActive) {
			p.LastActive = info.ModTime()
		}
	}
	return p, nil
}

// DecodeProjectDir maps an encoded directory name back to an existing path,
// or "" when none matches. The encoding is lossy (a "-" may have been "/",
// "_", ":" or whitespace), so candidates are checked against the filesystem,
// preferring more path components.
func DecodeProjectDir(encoded string) string {
	if encoded == "" || encoded[0] != '-' {
		return ""
	}
	parts := strings.Split(encoded[1:], "-")
	return resolveSegments(string(filepath.Separator), parts, 0)
}

func resolveSegments(base string, parts []string, idx int) string {
	if idx >= len(parts) {
		if pathExists(base) {
			return base
		}
		return ""
	}

	for end := idx + 1; end <= len(parts); end++ {
		for _, sep := range []string{"-", "_", " "} {
			segment := strings.Join(parts[idx:end], sep)
			if segment == "" {
				continue
			}
			candidate := filepath.Join(base, segment)
			if end == len(parts) {
				if pathExists(candidate) {
					return candidate
				}
				continue
			}
			if isDir(candidate) {
				if result := resolveSegments(candidate, parts, end); result != "" {
					return result
				}
			}
			if end == idx+1 {
				// Separators only matter for multi-part segments.
				break
			}
		}
	}
	return ""
}

func pathExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

func isDir(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}
