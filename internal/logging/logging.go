package logging

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/term"
)

var (
	base      *logrus.Logger
	loggers   = make(map[string]*logrus.Entry)
	loggersMu sync.Mutex
)

// NewLogger returns the shared logger entry for a component.
// Entries are cached so every caller in a component shares the same fields.
func NewLogger(component string) *logrus.Entry {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	if entry, ok := loggers[component]; ok {
		return entry
	}
	entry := root().WithField("component", component)
	loggers[component] = entry
	return entry
}

// Configure applies a level and output to the root logger. An empty level
// falls back to SESSIONHUB_LOG_LEVEL, then "info".
func Configure(level string, out io.Writer) {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	l := root()
	if out != nil {
		l.SetOutput(out)
		l.SetFormatter(formatterFor(out))
	}

	if level == "" {
		level = os.Getenv("SESSIONHUB_LOG_LEVEL")
	}
	parsed, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		parsed = logrus.InfoLevel
	}
	l.SetLevel(parsed)
}

// root lazily creates the process-wide logger. Callers hold loggersMu.
func root() *logrus.Logger {
	if base != nil {
		return base
	}
	base = logrus.New()
	base.SetOutput(os.Stderr)
	base.SetFormatter(formatterFor(os.Stderr))
	base.SetLevel(logrus.InfoLevel)
	return base
}

// formatterFor picks human-readable text for terminals and JSON otherwise.
func formatterFor(out io.Writer) logrus.Formatter {
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return &logrus.TextFormatter{FullTimestamp: true}
	}
	return &logrus.JSONFormatter{}
}
