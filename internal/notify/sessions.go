package notify

import (
	"fmt"
	"path/filepath"
	"slices"
	"time"

	"github.com/sirupsen/logrus"

	"sessionhub/internal/chatsession"
	"sessionhub/internal/config"
	"sessionhub/internal/logging"
)

var defaultStatuses = []chatsession.Status{chatsession.StatusCompleted, chatsession.StatusFailed}

// FromConfig builds the notifier described by cfg, or nil when nothing is
// configured.
func FromConfig(cfg config.NotifyConfig) Notifier {
	if !cfg.Enabled() {
		return nil
	}
	var ns []Notifier
	if cfg.Desktop {
		ns = append(ns, NewDesktopNotifier())
	}
	for _, wh := range cfg.Webhooks {
		if wh.URL != "" {
			ns = append(ns, NewWebhookNotifier(wh))
		}
	}
	if cfg.Hook != "" {
		ns = append(ns, NewHookNotifier(cfg.Hook))
	}
	if len(ns) == 0 {
		return nil
	}
	return NewMultiNotifier(ns...)
}

// SessionNotifier turns terminal session transitions into notifications.
type SessionNotifier struct {
	notifier Notifier
	statuses []chatsession.Status
	sound    bool
	log      *logrus.Entry
	// send is swapped in tests to make delivery synchronous.
	send func(func())
}

// NewSessionNotifier creates a SessionNotifier. statuses defaults to
// completed and failed; unknown names are ignored.
func NewSessionNotifier(n Notifier, statuses []string, sound bool) *SessionNotifier {
	sn := &SessionNotifier{
		notifier: n,
		sound:    sound,
		log:      logging.NewLogger("notify"),
		send:     func(fn func()) { go fn() },
	}
	for _, s := range statuses {
		st := chatsession.Status(s)
		if st.Terminal() && !slices.Contains(sn.statuses, st) {
			sn.statuses = append(sn.statuses, st)
		}
	}
	if len(sn.statuses) == 0 {
		sn.statuses = defaultStatuses
	}
	return sn
}

// Watch registers on every manager's lifecycle hook.
func (sn *SessionNotifier) Watch(managers ...chatsession.Manager) {
	for _, m := range managers {
		m.OnChange(sn.handle)
	}
}

func (sn *SessionNotifier) handle(info chatsession.SessionInfo) {
	if !slices.Contains(sn.statuses, info.Status) {
		return
	}
	n := sessionNotification(info)
	n.Sound = sn.sound
	sn.send(func() {
		if err := sn.notifier.Send(n); err != nil {
			sn.log.WithError(err).WithField("sessionId", info.ID).
				WithField("notifier", sn.notifier.Name()).Warn("notification failed")
		}
	})
}

func sessionNotification(info chatsession.SessionInfo) Notification {
	project := filepath.Base(info.ProjectPath)
	if info.ProjectPath == "" {
		project = "unknown project"
	}

	var title string
	switch info.Status {
	case chatsession.StatusCompleted:
		title = "Session completed"
	case chatsession.StatusFailed:
		title = "Session failed"
	case chatsession.StatusAborted:
		title = "Session aborted"
	default:
		title = "Session " + string(info.Status)
	}

	finished := info.LastActiveAt
	if finished.IsZero() {
		finished = time.Now()
	}
	return Notification{
		Title:       title,
		Message:     fmt.Sprintf("%s session %s in %s", info.Provider, info.ID, project),
		SessionID:   info.ID,
		Provider:    info.Provider,
		ProjectPath: info.ProjectPath,
		Status:      info.Status,
		FinishedAt:  finished,
	}
}
