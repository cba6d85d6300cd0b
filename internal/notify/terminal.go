package notify

import (
	"context"
	"fmt"

	"github.com/fatih/color"
)

// TerminalNotifier prints notifications to stdout with color coding.
type TerminalNotifier struct {
	trade *color.Color
	halt  *color.Color
	errc  *color.Color
	info  *color.Color
}

// NewTerminalNotifier creates a new TerminalNotifier.
func NewTerminalNotifier() *TerminalNotifier {
	return &TerminalNotifier{
		trade: color.New(color.FgGreen, color.Bold),
		halt:  color.New(color.FgYellow, color.Bold),
		errc:  color.New(color.FgRed, color.Bold),
		info:  color.New(color.FgCyan),
	}
}

// Name returns the name of the notifier.
func (t *TerminalNotifier) Name() string {
	return "terminal"
}

// IsEnabled always returns true; construction is gated by config.
func (t *TerminalNotifier) IsEnabled() bool {
	return true
}

// Send prints the notification.
func (t *TerminalNotifier) Send(ctx context.Context, n Notification) error {
	var c *color.Color
	switch n.Type {
	case NotificationTrade:
		c = t.trade
	case NotificationHalt:
		c = t.halt
	case NotificationError:
		c = t.errc
	default:
		c = t.info
	}

	c.Printf("[%s] %s\n", n.Timestamp.Format("15:04:05"), n.Title)
	if n.Message != "" {
		fmt.Println(n.Message)
	}
	return nil
}
