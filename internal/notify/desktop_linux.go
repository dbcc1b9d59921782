//go:build linux

package notify

import (
	"os/exec"

	"sessionhub/internal/logging"
)

type linuxNotifier struct{}

func newPlatformNotifier() Notifier {
	return &linuxNotifier{}
}

func (l *linuxNotifier) Send(n Notification) error {
	path, err := exec.LookPath("notify-send")
	if err != nil {
		logging.NewLogger("notify").Debug("notify-send not found, skipping desktop notification")
		return nil
	}
	args := []string{"--app-name=sessionhub", n.Title, n.Message}
	if n.Sound {
		args = append(args, "--hint=string:sound-name:message-new-instant")
	}
	return exec.Command(path, args...).Run()
}

func (l *linuxNotifier) Name() string { return "desktop:linux" }
