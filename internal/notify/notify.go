package notify

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"sloth/internal/logger"
)

const (
	title          = "sloth"
	defaultTimeout = 15 * time.Second
)

// Notifier shows a desktop notification through the platform's own tool.
type Notifier struct {
	GOOS    string
	Timeout time.Duration
	// lookPath and run are swapped out in tests.
	lookPath func(string) (string, error)
	run      func(ctx context.Context, name string, args ...string) error
}

func New() *Notifier {
	return &Notifier{
		GOOS:     runtime.GOOS,
		Timeout:  defaultTimeout,
		lookPath: exec.LookPath,
		run: func(ctx context.Context, name string, args ...string) error {
			return exec.CommandContext(ctx, name, args...).Run()
		},
	}
}

// Command returns the program and arguments used to show message.
func (n *Notifier) Command(message string) (string, []string, error) {
	message = strings.TrimSpace(message)
	switch n.GOOS {
	case "darwin":
		script := fmt.Sprintf("display notification %s with title %s", appleScriptQuote(message), appleScriptQuote(title))
		return "osascript", []string{"-e", script}, nil
	case "linux", "freebsd", "openbsd", "netbsd":
		if _, err := n.lookPath("notify-send"); err == nil {
			return "notify-send", []string{title, message}, nil
		}
		if _, err := n.lookPath("zenity"); err == nil {
			return "zenity", []string{"--info", "--title", title, "--text", message, "--timeout=10"}, nil
		}
		return "", nil, fmt.Errorf("neither notify-send nor zenity is installed")
	case "windows":
		ps := fmt.Sprintf("Add-Type -AssemblyName System.Windows.Forms; [System.Windows.Forms.MessageBox]::Show('%s', '%s')",
			strings.ReplaceAll(message, "'", "''"), title)
		return "powershell", []string{"-NoProfile", "-Command", ps}, nil
	default:
		return "", nil, fmt.Errorf("notifications are not supported on %s", n.GOOS)
	}
}

// Send shows message. Failures are returned but never fatal to a run.
func (n *Notifier) Send(ctx context.Context, message string) error {
	name, args, err := n.Command(message)
	if err != nil {
		return err
	}
	timeout := n.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	logger.Log.Debug("sending notification", "command", name)
	if err := n.run(ctx, name, args...); err != nil {
		return fmt.Errorf("notify via %s: %w", name, err)
	}
	return nil
}

func appleScriptQuote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}
