package app

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Step is one named teardown action.
type Step struct {
	Name string
	Run  func() error
}

// Lifecycle runs teardown steps in order, exactly once. A step that fails
// or panics is logged and the remaining steps still run.
type Lifecycle struct {
	steps []Step

	once sync.Once
	mu   sync.Mutex
	ran  []string
	err  error
	done bool
}

// NewLifecycle creates a lifecycle that will run steps in the given order.
func NewLifecycle(steps ...Step) *Lifecycle {
	return &Lifecycle{steps: steps}
}

// Cleanup runs every step. Later calls do nothing and return the error of
// the first call.
func (l *Lifecycle) Cleanup() error {
	l.once.Do(func() {
		var errs []error
		for _, s := range l.steps {
			if err := runStep(s); err != nil {
				slog.Error("cleanup step failed", "step", s.Name, "error", err)
				errs = append(errs, err)
			}
			l.mu.Lock()
			l.ran = append(l.ran, s.Name)
			l.mu.Unlock()
		}

		l.mu.Lock()
		l.err = errors.Join(errs...)
		l.done = true
		l.mu.Unlock()
		slog.Info("cleanup finished", "steps", len(l.steps), "failed", len(errs))
	})

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Steps returns the names of the steps that have run, in order.
func (l *Lifecycle) Steps() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.ran...)
}

// Done reports whether Cleanup has completed.
func (l *Lifecycle) Done() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.done
}

func runStep(s Step) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: panic: %v", s.Name, r)
		}
	}()
	if s.Run == nil {
		return nil
	}
	if err := s.Run(); err != nil {
		return fmt.Errorf("%s: %w", s.Name, err)
	}
	return nil
}
