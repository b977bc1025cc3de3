package notify

import (
	"os/exec"
	"runtime"
)

// DesktopNotifier sends desktop notifications
type DesktopNotifier struct {
	enabled bool
}

// NewDesktopNotifier creates a new desktop notifier
func NewDesktopNotifier(enabled bool) *DesktopNotifier {
	return &DesktopNotifier{enabled: enabled}
}

// Send sends a desktop notification
func (d *DesktopNotifier) Send(e Event) error {
	if !d.enabled {
		return nil
	}

	switch runtime.GOOS {
	case "darwin":
		return d.sendMacOS(e)
	case "linux":
		return d.sendLinux(e)
	default:
		return nil // Unsupported
	}
}

func (d *DesktopNotifier) sendMacOS(e Event) error {
	script := `display notification "` + e.Message + `" with title "` + string(e.Type) + `"`
	cmd := exec.Command("osascript", "-e", script)
	return cmd.Run()
}

func (d *DesktopNotifier) sendLinux(e Event) error {
	cmd := exec.Command("notify-send", string(e.Type), e.Message)
	return cmd.Run()
}
