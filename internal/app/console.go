package app

import (
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"

	"go.aimuz.me/holdtalk/internal/session"
	"go.aimuz.me/holdtalk/internal/types"
)

var stateColors = map[types.State]*color.Color{
	types.StateIdle:         color.New(color.FgHiBlack),
	types.StateRecording:    color.New(color.FgRed, color.Bold),
	types.StateTranscribing: color.New(color.FgYellow),
	types.StateGenerating:   color.New(color.FgYellow),
	types.StateSynthesizing: color.New(color.FgYellow),
	types.StatePlaying:      color.New(color.FgGreen),
	types.StateShuttingDown: color.New(color.FgMagenta),
}

var (
	labelColor = color.New(color.FgCyan, color.Bold)
	errorColor = color.New(color.FgRed)
)

// Console prints one status line per state change for the operator.
type Console struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsole creates a console writing to w.
func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

// Banner prints the bound hotkeys.
func (c *Console) Banner(record, quit string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	labelColor.Fprintln(c.w, "holdtalk ready")
	fmt.Fprintf(c.w, "  hold %s to talk, %s to quit\n", record, quit)
}

// State prints a state change.
func (c *Console) State(ch session.Change) {
	if ch.Reason == types.ReasonReady {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	col, ok := stateColors[ch.To]
	if !ok {
		col = color.New(color.Reset)
	}
	col.Fprintf(c.w, "● %-13s", ch.To)
	msg := string(ch.Reason)
	if ch.Reason == types.ReasonStageStarted {
		msg = ch.Stage.String()
	}
	fmt.Fprintf(c.w, " %s", msg)
	if ch.Err != nil {
		errorColor.Fprintf(c.w, ": %v", ch.Err)
	}
	fmt.Fprintln(c.w)
}

// Session prints what was heard and said.
func (c *Console) Session(r types.SessionRecord) {
	if r.Transcript == "" && r.Reply == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if r.Transcript != "" {
		labelColor.Fprint(c.w, "you: ")
		fmt.Fprintln(c.w, r.Transcript)
	}
	if r.Reply != "" {
		labelColor.Fprint(c.w, "assistant: ")
		fmt.Fprintln(c.w, r.Reply)
	}
}

// History prints stored sessions, most recent first.
func (c *Console) History(records []types.SessionRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(records) == 0 {
		fmt.Fprintln(c.w, "no sessions recorded")
		return
	}
	for _, r := range records {
		labelColor.Fprintf(c.w, "%s ", r.StartedAt.Local().Format("2006-01-02 15:04:05"))
		col, ok := outcomeColors[r.Outcome]
		if !ok {
			col = errorColor
		}
		col.Fprintf(c.w, "[%s]", r.Outcome)
		if r.Language != "" {
			fmt.Fprintf(c.w, " (%s)", r.Language)
		}
		fmt.Fprintln(c.w)
		if r.Transcript != "" {
			fmt.Fprintf(c.w, "  you: %s\n", r.Transcript)
		}
		if r.Reply != "" {
			fmt.Fprintf(c.w, "  assistant: %s\n", r.Reply)
		}
		if r.Error != "" {
			errorColor.Fprintf(c.w, "  error: %s\n", r.Error)
		}
	}
}

var outcomeColors = map[types.Outcome]*color.Color{
	types.OutcomeCompleted: color.New(color.FgGreen),
	types.OutcomeEmpty:     color.New(color.FgHiBlack),
	types.OutcomeNoAudio:   color.New(color.FgHiBlack),
	types.OutcomeAbandoned: color.New(color.FgYellow),
}
