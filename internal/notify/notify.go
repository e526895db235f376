package notify

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"fitsched/internal/cycle"
)

// Notifier sends system notifications.
type Notifier struct {
	Enabled bool
}

// Send sends a system notification.
// On macOS, uses osascript to display notifications.
// On other platforms, this is a no-op.
func (n *Notifier) Send(title, message string) error {
	if !n.Enabled {
		return nil
	}
	if runtime.GOOS != "darwin" {
		return nil
	}
	return sendMacOSNotification(title, message)
}

// sendMacOSNotification uses osascript to display a notification.
func sendMacOSNotification(title, message string) error {
	title = strings.ReplaceAll(title, `"`, `\"`)
	message = strings.ReplaceAll(message, `"`, `\"`)

	script := fmt.Sprintf(`display notification "%s" with title "%s"`, message, title)
	cmd := exec.Command("osascript", "-e", script)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	return nil
}

// FormatCycleComplete formats a cycle summary notification message.
func FormatCycleComplete(summary *cycle.Summary) (title, message string) {
	switch {
	case summary.Aborted:
		title = "⚠️ fitsched cycle aborted"
		message = summary.String()
	case summary.Degraded > 0:
		title = "🏃 fitsched planned (degraded)"
		message = fmt.Sprintf("%d workouts scheduled, %d without model content", summary.Created, summary.Degraded)
	default:
		title = "🏃 fitsched planned"
		message = fmt.Sprintf("%d scheduled, %d completed, %d missed", summary.Created, summary.Completed, summary.Missed)
	}
	return title, message
}

// FormatWorkoutReminder formats an upcoming-workout notification message.
func FormatWorkoutReminder(summary string, startHHMM string) (title, message string) {
	title = "🏋️ Upcoming workout"
	message = fmt.Sprintf("%s at %s", summary, startHHMM)
	return title, message
}
