package hotkey

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

var (
	// ErrUnknownMonitor is returned when removing a monitor that is not
	// registered.
	ErrUnknownMonitor = errors.New("unknown monitor")

	// ErrSourceClosed is returned when adding a monitor to a closed source.
	ErrSourceClosed = errors.New("event source closed")
)

// Scope selects which events a monitor sees: events delivered to other
// applications (global) or to this process (local).
type Scope int

const (
	ScopeGlobal Scope = iota + 1
	ScopeLocal
)

func (s Scope) String() string {
	switch s {
	case ScopeGlobal:
		return "global"
	case ScopeLocal:
		return "local"
	default:
		return fmt.Sprintf("scope(%d)", int(s))
	}
}

// Handler observes an event and returns the event to pass on.
type Handler func(Event) Event

// Monitor identifies a registered handler.
type Monitor struct {
	ID    uint64
	Scope Scope
}

// Source delivers keyboard events to registered monitors.
type Source interface {
	AddMonitor(scope Scope, h Handler) (Monitor, error)
	RemoveMonitor(m Monitor) error
	Close() error
}

// Dispatcher is an in-process Source. Events are pushed with Dispatch and
// handed to every monitor of the matching scope in registration order.
type Dispatcher struct {
	mu       sync.Mutex
	nextID   uint64
	monitors map[uint64]registered
	order    []uint64
	closed   bool
}

type registered struct {
	scope   Scope
	handler Handler
}

var _ Source = (*Dispatcher)(nil)

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{monitors: make(map[uint64]registered)}
}

func (d *Dispatcher) AddMonitor(scope Scope, h Handler) (Monitor, error) {
	if h == nil {
		return Monitor{}, errors.New("add monitor: nil handler")
	}
	if scope != ScopeGlobal && scope != ScopeLocal {
		return Monitor{}, fmt.Errorf("add monitor: invalid %s", scope)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return Monitor{}, ErrSourceClosed
	}
	d.nextID++
	d.monitors[d.nextID] = registered{scope: scope, handler: h}
	d.order = append(d.order, d.nextID)
	return Monitor{ID: d.nextID, Scope: scope}, nil
}

func (d *Dispatcher) RemoveMonitor(m Monitor) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.monitors[m.ID]; !ok {
		return fmt.Errorf("remove %s monitor %d: %w", m.Scope, m.ID, ErrUnknownMonitor)
	}
	delete(d.monitors, m.ID)
	for i, id := range d.order {
		if id == m.ID {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
	return nil
}

// Len returns the number of registered monitors.
func (d *Dispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.monitors)
}

// Dispatch delivers ev to the monitors of scope and returns the event as
// passed on by the last handler.
func (d *Dispatcher) Dispatch(scope Scope, ev Event) Event {
	d.mu.Lock()
	var handlers []Handler
	for _, id := range d.order {
		if r := d.monitors[id]; r.scope == scope {
			handlers = append(handlers, r.handler)
		}
	}
	d.mu.Unlock()

	for _, h := range handlers {
		ev = h(ev)
	}
	return ev
}

// Close drops all monitors and rejects new ones.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	clear(d.monitors)
	d.order = nil
	return nil
}

// Monitors is the pair of global and local registrations for one handler.
type Monitors struct {
	src      Source
	mu       sync.Mutex
	monitors []Monitor
}

// Install registers h in both scopes. If either registration fails the
// other is removed and the error is returned.
func Install(src Source, h Handler) (*Monitors, error) {
	ms := &Monitors{src: src}
	for _, scope := range []Scope{ScopeGlobal, ScopeLocal} {
		m, err := src.AddMonitor(scope, h)
		if err != nil {
			ms.RemoveAll()
			return nil, fmt.Errorf("install %s monitor: %w", scope, err)
		}
		ms.monitors = append(ms.monitors, m)
	}
	return ms, nil
}

// RemoveAll removes every monitor, continuing past failures, and returns
// the failures joined. It is safe to call more than once.
func (ms *Monitors) RemoveAll() error {
	ms.mu.Lock()
	monitors := ms.monitors
	ms.monitors = nil
	ms.mu.Unlock()

	var errs []error
	for _, m := range monitors {
		if err := ms.src.RemoveMonitor(m); err != nil {
			slog.Warn("remove monitor", "scope", m.Scope, "id", m.ID, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Len returns the number of monitors still registered.
func (ms *Monitors) Len() int {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return len(ms.monitors)
}
