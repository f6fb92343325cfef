package app

import (
	"log/slog"

	"github.com/getsentry/sentry-go"

	"go.aimuz.me/holdtalk/internal/session"
	"go.aimuz.me/holdtalk/internal/types"
)

// SessionStore persists finished sessions.
type SessionStore interface {
	Put(r types.SessionRecord) error
}

// reporter fans machine events out to the console, desktop notifications,
// the history store, the clipboard and error reporting.
type reporter struct {
	console *Console
	notify  func(msg string) // nil disables notifications
	store   SessionStore     // nil disables history
	copy    func(text string) error
}

var _ session.Observer = (*reporter)(nil)

var notifications = map[types.Reason]string{
	types.ReasonRecordingStarted:  "Listening…",
	types.ReasonRecordingStopped:  "Thinking…",
	types.ReasonNoAudio:           "No audio captured",
	types.ReasonPipelineFailed:    "Request failed",
	types.ReasonPlaybackFailed:    "Playback failed",
	types.ReasonDeviceUnavailable: "Audio device unavailable",
}

func (r *reporter) StateChanged(c session.Change) {
	if r.console != nil {
		r.console.State(c)
	}
	if msg, ok := notifications[c.Reason]; ok && r.notify != nil {
		go r.notify(msg)
	}
	if c.Err != nil {
		sentry.WithScope(func(scope *sentry.Scope) {
			scope.SetTag("reason", string(c.Reason))
			scope.SetTag("state", string(c.From))
			if c.Stage != 0 {
				scope.SetTag("stage", c.Stage.String())
			}
			scope.SetExtra("session", c.Session)
			sentry.CaptureException(c.Err)
		})
	}
}

func (r *reporter) SessionFinished(rec types.SessionRecord) {
	if r.console != nil {
		r.console.Session(rec)
	}
	if r.store != nil {
		if err := r.store.Put(rec); err != nil {
			slog.Warn("save session", "session", rec.ID, "error", err)
		}
	}
	if r.copy != nil && rec.Outcome == types.OutcomeCompleted && rec.Reply != "" {
		if err := r.copy(rec.Reply); err != nil {
			slog.Warn("copy reply to clipboard", "error", err)
		}
	}
	slog.Info("session finished", "session", rec.ID, "outcome", rec.Outcome,
		"duration", rec.FinishedAt.Sub(rec.StartedAt), "tokens", rec.Usage.TotalTokens)
}
