// Package notify shows desktop notifications.
package notify

import (
	"log/slog"

	"github.com/gen2brain/beeep"
)

// Notifier sends desktop notifications. The zero value is disabled.
type Notifier struct {
	title   string
	enabled bool
	send    func(title, message string) error
}

// New creates a notifier. A disabled notifier drops every message.
func New(title string, enabled bool) *Notifier {
	return &Notifier{
		title:   title,
		enabled: enabled,
		send: func(title, message string) error {
			return beeep.Notify(title, message, "")
		},
	}
}

// Notify shows message. Failures are logged and otherwise ignored.
func (n *Notifier) Notify(message string) {
	if n == nil || !n.enabled {
		return
	}
	if err := n.send(n.title, message); err != nil {
		slog.Warn("send notification", "error", err)
	}
}
