package screenshot

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestCaptureNaming(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "screenshots")
	c := New(dir)
	c.permitted = func() bool { return true }
	c.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.Local) }
	c.capture = func(_ context.Context, path string) error {
		return os.WriteFile(path, []byte("png"), 0o644)
	}

	path, err := c.Capture(context.Background())
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if want := filepath.Join(dir, "screen_20260102_030405.png"); path != want {
		t.Fatalf("path = %q, want %q", path, want)
	}
}

func TestCaptureFailures(t *testing.T) {
	tests := []struct {
		name    string
		capture func(context.Context, string) error
	}{
		{"tool_error", func(context.Context, string) error { return errors.New("denied") }},
		{"no_file", func(context.Context, string) error { return nil }},
		{"empty_file", func(_ context.Context, p string) error { return os.WriteFile(p, nil, 0o644) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(t.TempDir())
			c.permitted = func() bool { return true }
			c.capture = tt.capture
			if path, err := c.Capture(context.Background()); err == nil {
				t.Fatalf("Capture = %q, want error", path)
			}
		})
	}
}

func TestCaptureWithoutPermission(t *testing.T) {
	c := New(t.TempDir())
	c.permitted = func() bool { return false }
	requests := 0
	c.request = func() { requests++ }
	captured := false
	c.capture = func(context.Context, string) error {
		captured = true
		return nil
	}

	_, err := c.Capture(context.Background())
	if !errors.Is(err, ErrNoPermission) {
		t.Fatalf("Capture = %v, want ErrNoPermission", err)
	}
	if requests != 1 || captured {
		t.Errorf("requests = %d, captured = %v", requests, captured)
	}
}
