package hotkey

import (
	"fmt"
	"log/slog"
)

// EventType is the kind of a raw keyboard event.
type EventType int

const (
	EventUnknown EventType = iota
	EventKeyDown
	EventKeyUp
)

// Event is a raw keyboard event as delivered by a Source.
type Event interface {
	Type() EventType
	KeyCode() uint16
	ModifierFlags() Modifier
}

// Direction tells whether a combo was pressed or released.
type Direction int

const (
	Down Direction = iota + 1
	Up
)

func (d Direction) String() string {
	switch d {
	case Down:
		return "down"
	case Up:
		return "up"
	default:
		return "none"
	}
}

// Edge is a press or release of a bound combo.
type Edge struct {
	Action    Action
	Direction Direction
}

func (e Edge) String() string {
	return fmt.Sprintf("%s:%s", e.Action, e.Direction)
}

// Router matches events against bindings.
type Router struct {
	bindings *Bindings
}

// NewRouter creates a router over b.
func NewRouter(b *Bindings) *Router {
	return &Router{bindings: b}
}

// Route returns the edge for ev. Absent events, unknown event types and
// unbound keys yield false. A panicking accessor is logged and treated as
// no match.
func (r *Router) Route(ev Event) (edge Edge, ok bool) {
	if ev == nil {
		return Edge{}, false
	}
	defer func() {
		if p := recover(); p != nil {
			slog.Warn("route hotkey event", "panic", p)
			edge, ok = Edge{}, false
		}
	}()

	var dir Direction
	switch ev.Type() {
	case EventKeyDown:
		dir = Down
	case EventKeyUp:
		dir = Up
	default:
		return Edge{}, false
	}

	b, found := r.bindings.Match(ev.KeyCode(), ev.ModifierFlags())
	if !found {
		return Edge{}, false
	}
	return Edge{Action: b.Action, Direction: dir}, true
}

// Handler returns a monitor handler that forwards matched edges to sink
// and hands every event back unchanged.
func (r *Router) Handler(sink func(Edge)) Handler {
	return func(ev Event) Event {
		if edge, ok := r.Route(ev); ok {
			sink(edge)
		}
		return ev
	}
}
