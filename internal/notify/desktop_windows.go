//go:build windows

package notify

import (
	"fmt"
	"os/exec"

	"sessionhub/internal/logging"
)

const toastScript = `
[Windows.UI.Notifications.ToastNotificationManager, Windows.UI.Notifications, ContentType = WindowsRuntime] > $null
$template = [Windows.UI.Notifications.ToastNotificationManager]::GetTemplateContent([Windows.UI.Notifications.ToastTemplateType]::ToastText02)
$text = $template.GetElementsByTagName("text")
$text.Item(0).AppendChild($template.CreateTextNode(%q)) > $null
$text.Item(1).AppendChild($template.CreateTextNode(%q)) > $null
[Windows.UI.Notifications.ToastNotificationManager]::CreateToastNotifier("sessionhub").Show([Windows.UI.Notifications.ToastNotification]::new($template))
`

type windowsNotifier struct{}

func newPlatformNotifier() Notifier {
	return &windowsNotifier{}
}

// Send shows a toast. Failures are logged and swallowed since older
// Windows builds lack the toast API.
func (w *windowsNotifier) Send(n Notification) error {
	cmd := exec.Command("powershell", "-NoProfile", "-NonInteractive", "-Command",
		fmt.Sprintf(toastScript, n.Title, n.Message))
	if err := cmd.Run(); err != nil {
		logging.NewLogger("notify").WithError(err).Debug("windows toast failed")
	}
	return nil
}

func (w *windowsNotifier) Name() string { return "desktop:windows" }
