package sessionsync

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"sessionhub/internal/logging"
)

// DefaultDebounce is the quiet period before a project change is reported.
const DefaultDebounce = 250 * time.Millisecond

// Watcher reports which project directories under the transcript root have
// changed. Bursts of writes to the same project collapse into one callback
// fired after the debounce period.
type Watcher struct {
	fs       *fsnotify.Watcher
	root     string
	debounce time.Duration
	log      *logrus.Entry

	mu      sync.Mutex
	pending map[string]*time.Timer
	subs    []func(projectDir string)
}

// NewWatcher watches root and each of its project subdirectories. When root
// does not exist yet its parent is watched until it appears.
func NewWatcher(root string, debounce time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	w := &Watcher{
		fs:       fsw,
		root:     filepath.Clean(root),
		debounce: debounce,
		log:      logging.NewLogger("watcher"),
		pending:  make(map[string]*time.Timer),
	}
	if err := w.addRoot(); err != nil {
		if err := fsw.Add(filepath.Dir(w.root)); err != nil {
			fsw.Close()
			return nil, err
		}
		w.log.WithField("root", w.root).Debug("transcript root missing, watching parent")
	}
	return w, nil
}

func (w *Watcher) addRoot() error {
	if err := w.fs.Add(w.root); err != nil {
		return err
	}
	entries, err := os.ReadDir(w.root)
	if err != nil {
		return nil
	}
	for _, e := range entries {
		if e.IsDir() {
			w.addDir(filepath.Join(w.root, e.Name()))
		}
	}
	return nil
}

func (w *Watcher) addDir(dir string) {
	if err := w.fs.Add(dir); err != nil {
		w.log.WithError(err).WithField("dir", dir).Debug("failed to watch project dir")
	}
}

// Subscribe registers fn to receive the encoded name of every changed project
// directory.
func (w *Watcher) Subscribe(fn func(projectDir string)) {
	w.mu.Lock()
	w.subs = append(w.subs, fn)
	w.mu.Unlock()
}

// Run processes filesystem events until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.log.WithError(err).Warn("watcher error")
		case <-ctx.Done():
			w.Close()
			return
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	name := filepath.Clean(event.Name)

	if name == w.root {
		if event.Has(fsnotify.Create) {
			if err := w.addRoot(); err == nil {
				w.log.WithField("root", w.root).Info("transcript root created")
			}
		}
		return
	}

	rel, err := filepath.Rel(w.root, name)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return
	}
	parts := strings.Split(rel, string(filepath.Separator))

	switch len(parts) {
	case 1:
		// A project directory itself.
		if event.Has(fsnotify.Create) {
			if info, err := os.Stat(name); err == nil && info.IsDir() {
				w.addDir(name)
			}
		}
		w.schedule(parts[0])
	case 2:
		if strings.HasSuffix(parts[1], ".jsonl") {
			w.schedule(parts[0])
		}
	}
}

// schedule (re)starts the debounce timer for projectDir.
func (w *Watcher) schedule(projectDir string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[projectDir]; ok {
		t.Reset(w.debounce)
		return
	}
	w.pending[projectDir] = time.AfterFunc(w.debounce, func() {
		w.fire(projectDir)
	})
}

func (w *Watcher) fire(projectDir string) {
	w.mu.Lock()
	delete(w.pending, projectDir)
	subs := append([]func(string){}, w.subs...)
	w.mu.Unlock()

	w.log.WithField("projectDir", projectDir).Debug("project transcripts changed")
	for _, fn := range subs {
		fn(projectDir)
	}
}

// Close stops watching and drops pending notifications.
func (w *Watcher) Close() error {
	w.mu.Lock()
	for dir, t := range w.pending {
		t.Stop()
		delete(w.pending, dir)
	}
	w.mu.Unlock()
	return w.fs.Close()
}
