// Package hotkey turns raw keyboard events into press and release edges of
// a small, fixed set of key combinations.
package hotkey

import (
	"errors"
	"fmt"
	"math/bits"
	"strings"
)

// ErrDuplicateCombo is returned when two bindings use the same combo.
var ErrDuplicateCombo = errors.New("duplicate hotkey combo")

// Modifier is a set of modifier keys. Left and right variants are folded.
type Modifier uint8

const (
	ModShift Modifier = 1 << iota
	ModCtrl
	ModAlt
	ModMeta
)

// Has reports whether m contains every modifier in o.
func (m Modifier) Has(o Modifier) bool {
	return m&o == o
}

func (m Modifier) String() string {
	if m == 0 {
		return "none"
	}
	var names []string
	for _, n := range []struct {
		mod  Modifier
		name string
	}{
		{ModMeta, "cmd"},
		{ModCtrl, "ctrl"},
		{ModAlt, "alt"},
		{ModShift, "shift"},
	} {
		if m&n.mod != 0 {
			names = append(names, n.name)
		}
	}
	return strings.Join(names, "+")
}

// ParseModifier returns the modifier for a name such as "cmd" or "shift".
func ParseModifier(name string) (Modifier, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "shift":
		return ModShift, nil
	case "ctrl", "control":
		return ModCtrl, nil
	case "alt", "option", "opt":
		return ModAlt, nil
	case "cmd", "command", "meta", "super", "win":
		return ModMeta, nil
	default:
		return 0, fmt.Errorf("unknown modifier %q", name)
	}
}

// Action is what a combo does.
type Action int

const (
	ActionToggleRecording Action = iota + 1
	ActionQuit
)

func (a Action) String() string {
	switch a {
	case ActionToggleRecording:
		return "toggle_recording"
	case ActionQuit:
		return "quit"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Combo is a key code plus the modifiers that must be held with it.
type Combo struct {
	Modifiers Modifier
	KeyCode   uint16
}

func (c Combo) String() string {
	return fmt.Sprintf("%s+key(%d)", c.Modifiers, c.KeyCode)
}

// Binding associates a combo with an action.
type Binding struct {
	Combo  Combo
	Action Action
}

// Bindings is an immutable set of bindings indexed by key code.
type Bindings struct {
	byKey map[uint16][]Binding
}

// NewBindings validates and indexes bs. Combos must be pairwise distinct.
func NewBindings(bs ...Binding) (*Bindings, error) {
	idx := &Bindings{byKey: make(map[uint16][]Binding, len(bs))}
	for _, b := range bs {
		if b.Action != ActionToggleRecording && b.Action != ActionQuit {
			return nil, fmt.Errorf("bind %s: unknown action %d", b.Combo, int(b.Action))
		}
		for _, existing := range idx.byKey[b.Combo.KeyCode] {
			if existing.Combo == b.Combo {
				return nil, fmt.Errorf("bind %s to %s: %w (already %s)", b.Combo, b.Action, ErrDuplicateCombo, existing.Action)
			}
		}
		idx.byKey[b.Combo.KeyCode] = append(idx.byKey[b.Combo.KeyCode], b)
	}
	return idx, nil
}

// Match finds the binding for key held with mods. A binding matches when
// mods contains all of its modifiers; extra modifiers are ignored. When
// several bindings on the same key match, the one requiring the most
// modifiers wins.
func (b *Bindings) Match(key uint16, mods Modifier) (Binding, bool) {
	if b == nil {
		return Binding{}, false
	}
	var (
		best  Binding
		found bool
	)
	for _, cand := range b.byKey[key] {
		if !mods.Has(cand.Combo.Modifiers) {
			continue
		}
		if !found || bits.OnesCount8(uint8(cand.Combo.Modifiers)) > bits.OnesCount8(uint8(best.Combo.Modifiers)) {
			best, found = cand, true
		}
	}
	return best, found
}

// Len returns the number of bindings.
func (b *Bindings) Len() int {
	if b == nil {
		return 0
	}
	n := 0
	for _, bs := range b.byKey {
		n += len(bs)
	}
	return n
}
