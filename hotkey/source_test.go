package hotkey

import (
	"errors"
	"testing"
)

func TestDispatchByScope(t *testing.T) {
	d := NewDispatcher()

	var global, local int
	if _, err := d.AddMonitor(ScopeGlobal, func(ev Event) Event { global++; return ev }); err != nil {
		t.Fatalf("AddMonitor: %v", err)
	}
	if _, err := d.AddMonitor(ScopeLocal, func(ev Event) Event { local++; return ev }); err != nil {
		t.Fatalf("AddMonitor: %v", err)
	}

	ev := fakeEvent{EventKeyDown, keyA, 0}
	if out := d.Dispatch(ScopeGlobal, ev); out != ev {
		t.Fatalf("Dispatch returned %v, want %v", out, ev)
	}
	d.Dispatch(ScopeLocal, ev)
	d.Dispatch(ScopeLocal, ev)

	if global != 1 || local != 2 {
		t.Fatalf("global=%d local=%d, want 1 and 2", global, local)
	}
}

func TestDispatcherRemoveAndClose(t *testing.T) {
	d := NewDispatcher()
	m, err := d.AddMonitor(ScopeGlobal, func(ev Event) Event { return ev })
	if err != nil {
		t.Fatalf("AddMonitor: %v", err)
	}

	if err := d.RemoveMonitor(m); err != nil {
		t.Fatalf("RemoveMonitor: %v", err)
	}
	if err := d.RemoveMonitor(m); !errors.Is(err, ErrUnknownMonitor) {
		t.Fatalf("second RemoveMonitor = %v, want ErrUnknownMonitor", err)
	}

	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := d.AddMonitor(ScopeGlobal, func(ev Event) Event { return ev }); !errors.Is(err, ErrSourceClosed) {
		t.Fatalf("AddMonitor after Close = %v, want ErrSourceClosed", err)
	}
}

// flakySource fails AddMonitor for one scope and RemoveMonitor for another.
type flakySource struct {
	*Dispatcher
	failAdd    Scope
	failRemove Scope
}

func (s *flakySource) AddMonitor(scope Scope, h Handler) (Monitor, error) {
	if scope == s.failAdd {
		return Monitor{}, errors.New("registration refused")
	}
	return s.Dispatcher.AddMonitor(scope, h)
}

func (s *flakySource) RemoveMonitor(m Monitor) error {
	if m.Scope == s.failRemove {
		return errors.New("teardown refused")
	}
	return s.Dispatcher.RemoveMonitor(m)
}

func TestInstallFailureRollsBack(t *testing.T) {
	src := &flakySource{Dispatcher: NewDispatcher(), failAdd: ScopeLocal}

	if _, err := Install(src, func(ev Event) Event { return ev }); err == nil {
		t.Fatal("Install succeeded with failing local scope")
	}
	if n := src.Len(); n != 0 {
		t.Fatalf("monitors left after failed Install = %d, want 0", n)
	}
}

func TestRemoveAllContinuesPastFailures(t *testing.T) {
	src := &flakySource{Dispatcher: NewDispatcher(), failRemove: ScopeGlobal}

	ms, err := Install(src, func(ev Event) Event { return ev })
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	if ms.Len() != 2 {
		t.Fatalf("installed %d monitors, want 2", ms.Len())
	}

	if err := ms.RemoveAll(); err == nil {
		t.Fatal("RemoveAll hid the teardown failure")
	}
	// the local monitor is still removed
	if n := src.Len(); n != 1 {
		t.Fatalf("monitors left = %d, want 1", n)
	}
	if ms.Len() != 0 {
		t.Fatalf("Monitors still tracks %d", ms.Len())
	}
	if err := ms.RemoveAll(); err != nil {
		t.Fatalf("second RemoveAll = %v, want nil", err)
	}
}
