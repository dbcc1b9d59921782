// Package notify tells the user when a provider session finishes, through
// desktop notifications, webhooks or a local hook script.
package notify

import (
	"errors"
	"strings"
	"sync"
	"time"

	"sessionhub/internal/chatsession"
	"sessionhub/internal/protocol"
)

// Notification is one session-finished event.
type Notification struct {
	Title       string
	Message     string
	Sound       bool
	SessionID   string
	Provider    protocol.Provider
	ProjectPath string
	Status      chatsession.Status
	FinishedAt  time.Time
}

// Notifier delivers notifications.
type Notifier interface {
	Send(n Notification) error
	Name() string
}

// NewDesktopNotifier returns the notifier for the current platform.
func NewDesktopNotifier() Notifier {
	return newPlatformNotifier()
}

// MultiNotifier fans a notification out to several notifiers.
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier creates a MultiNotifier from ns.
func NewMultiNotifier(ns ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: ns}
}

// Send delivers n to every notifier concurrently and joins their errors.
func (m *MultiNotifier) Send(n Notification) error {
	errs := make([]error, len(m.notifiers))
	var wg sync.WaitGroup
	for i, notifier := range m.notifiers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = notifier.Send(n)
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}

// Name lists the wrapped notifiers.
func (m *MultiNotifier) Name() string {
	names := make([]string, len(m.notifiers))
	for i, n := range m.notifiers {
		names[i] = n.Name()
	}
	return "multi(" + strings.Join(names, ",") + ")"
}

// Len is the number of wrapped notifiers.
func (m *MultiNotifier) Len() int {
	return len(m.notifiers)
}
