package notify

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"gmdaily/pkg/logger"
	"gmdaily/pkg/report"
)

// Desktop raises a native notification via the platform's command line tool
type Desktop struct {
	goos string
	run  func(ctx context.Context, name string, args ...string) error
	log  logger.Logger
}

// NewDesktop targets the current platform
func NewDesktop(log logger.Logger) *Desktop {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Desktop{goos: runtime.GOOS, run: runCommand, log: log}
}

func runCommand(ctx context.Context, name string, args ...string) error {
	return exec.CommandContext(ctx, name, args...).Run()
}

// Send implements Sender. Long reports are cut to their first lines since
// notification bubbles truncate anyway.
func (d *Desktop) Send(ctx context.Context, title, message string) error {
	name, args, err := desktopCommand(d.goos, report.Plain(title), summarise(report.Plain(message), 6))
	if err != nil {
		return err
	}
	d.log.WithField("command", name).Debug("raising desktop notification")
	return d.run(ctx, name, args...)
}

func summarise(message string, lines int) string {
	parts := strings.Split(strings.TrimSpace(message), "\n")
	if len(parts) > lines {
		parts = append(parts[:lines], "...")
	}
	return strings.Join(parts, "\n")
}

func desktopCommand(goos, title, message string) (string, []string, error) {
	switch goos {
	case "linux", "freebsd", "openbsd":
		return "notify-send", []string{"--app-name=gmdaily", title, message}, nil
	case "darwin":
		script := fmt.Sprintf(`display notification %s with title %s`, appleQuote(message), appleQuote(title))
		return "osascript", []string{"-e", script}, nil
	case "windows":
		script := fmt.Sprintf(`[Windows.UI.Notifications.ToastNotificationManager, Windows.UI.Notifications, ContentType = WindowsRuntime] | Out-Null
$template = [Windows.UI.Notifications.ToastNotificationManager]::GetTemplateContent([Windows.UI.Notifications.ToastTemplateType]::ToastText02)
$text = $template.GetElementsByTagName("text")
$text.Item(0).AppendChild($template.CreateTextNode(%s)) | Out-Null
$text.Item(1).AppendChild($template.CreateTextNode(%s)) | Out-Null
[Windows.UI.Notifications.ToastNotificationManager]::CreateToastNotifier("gmdaily").Show([Windows.UI.Notifications.ToastNotification]::new($template))`,
			psQuote(title), psQuote(message))
		return "powershell", []string{"-NoProfile", "-NonInteractive", "-Command", script}, nil
	default:
		return "", nil, fmt.Errorf("desktop notifications are not supported on %s", goos)
	}
}

// appleQuote renders s as an AppleScript string literal
func appleQuote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

// psQuote renders s as a single-quoted PowerShell literal
func psQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
