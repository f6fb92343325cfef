// Package oshook feeds system-wide keyboard events from gohook into a
// hotkey.Source.
package oshook

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	hook "github.com/robotn/gohook"

	"go.aimuz.me/holdtalk/hotkey"
)

// libuiohook modifier mask bits.
const (
	maskShiftL = 1 << 0
	maskCtrlL  = 1 << 1
	maskMetaL  = 1 << 2
	maskAltL   = 1 << 3
	maskShiftR = 1 << 4
	maskCtrlR  = 1 << 5
	maskMetaR  = 1 << 6
	maskAltR   = 1 << 7
)

// Modifiers folds a libuiohook mask into hotkey modifiers.
func Modifiers(mask uint16) hotkey.Modifier {
	var m hotkey.Modifier
	if mask&(maskShiftL|maskShiftR) != 0 {
		m |= hotkey.ModShift
	}
	if mask&(maskCtrlL|maskCtrlR) != 0 {
		m |= hotkey.ModCtrl
	}
	if mask&(maskAltL|maskAltR) != 0 {
		m |= hotkey.ModAlt
	}
	if mask&(maskMetaL|maskMetaR) != 0 {
		m |= hotkey.ModMeta
	}
	return m
}

// keyEvent adapts a gohook event.
type keyEvent struct {
	kind uint8
	code uint16
	mask uint16
}

// Type maps pressed to down and released to up. gohook also reports
// typed characters as KeyDown; those are not edges.
func (e keyEvent) Type() hotkey.EventType {
	switch e.kind {
	case hook.KeyHold:
		return hotkey.EventKeyDown
	case hook.KeyUp:
		return hotkey.EventKeyUp
	default:
		return hotkey.EventUnknown
	}
}

func (e keyEvent) KeyCode() uint16                { return e.code }
func (e keyEvent) ModifierFlags() hotkey.Modifier { return Modifiers(e.mask) }

// Source is a hotkey.Source backed by a gohook event loop. The system hook
// sees keys whether or not this process has focus, so it feeds only the
// global scope. A headless process owns no window to receive focused key
// events, so the local scope is fed only by Post, for hosts that embed the
// assistant in a window of their own.
type Source struct {
	*hotkey.Dispatcher

	mu      sync.Mutex
	running bool
	done    chan struct{}
}

var _ hotkey.Source = (*Source)(nil)

// New creates a source. Call Start to begin receiving system events.
func New() *Source {
	return &Source{Dispatcher: hotkey.NewDispatcher()}
}

// Start installs the system hook. It requires accessibility permission on
// macOS and an X11 session on Linux.
func (s *Source) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	events := hook.Start()
	if events == nil {
		return fmt.Errorf("start keyboard hook: no event channel")
	}
	s.running = true
	s.done = make(chan struct{})
	go s.loop(events, s.done)
	slog.Info("keyboard hook started")
	return nil
}

func (s *Source) loop(events <-chan hook.Event, done chan<- struct{}) {
	defer close(done)
	for ev := range events {
		switch ev.Kind {
		case hook.KeyDown, hook.KeyHold, hook.KeyUp:
			s.Dispatch(hotkey.ScopeGlobal, keyEvent{kind: ev.Kind, code: ev.Keycode, mask: ev.Mask})
		}
	}
}

// Post delivers an event received by the host's own window to local
// monitors and returns it as passed on.
func (s *Source) Post(ev hotkey.Event) hotkey.Event {
	return s.Dispatch(hotkey.ScopeLocal, ev)
}

// Close stops the hook loop and drops all monitors.
func (s *Source) Close() error {
	s.mu.Lock()
	running, done := s.running, s.done
	s.running = false
	s.mu.Unlock()

	if running {
		hook.End()
		<-done
		slog.Info("keyboard hook stopped")
	}
	return s.Dispatcher.Close()
}

// ResolveCombo builds a combo from a key name such as "a" or "space" and
// modifier names such as "cmd" and "shift".
func ResolveCombo(key string, modifiers []string) (hotkey.Combo, error) {
	code, ok := hook.Keycode[strings.ToLower(strings.TrimSpace(key))]
	if !ok {
		return hotkey.Combo{}, fmt.Errorf("resolve key %q: unknown key name", key)
	}
	var mods hotkey.Modifier
	for _, name := range modifiers {
		m, err := hotkey.ParseModifier(name)
		if err != nil {
			return hotkey.Combo{}, fmt.Errorf("resolve combo %q: %w", key, err)
		}
		mods |= m
	}
	return hotkey.Combo{Modifiers: mods, KeyCode: code}, nil
}
