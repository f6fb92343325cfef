// Package screenshot captures the full screen to a PNG file.
package screenshot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrNoPermission is returned when the process may not record the screen.
// The system prompt for it has been shown by then.
var ErrNoPermission = errors.New("screen recording permission not granted")

// Capturer writes screenshots into a directory.
type Capturer struct {
	dir       string
	now       func() time.Time
	capture   func(ctx context.Context, path string) error
	permitted func() bool
	request   func()
}

// New creates a capturer writing into dir.
func New(dir string) *Capturer {
	return &Capturer{
		dir:       dir,
		now:       time.Now,
		capture:   captureScreen,
		permitted: HasPermission,
		request:   RequestPermission,
	}
}

// Capture takes a screenshot of the whole screen and returns the path of
// the saved image, <dir>/screen_<timestamp>.png.
func (c *Capturer) Capture(ctx context.Context) (string, error) {
	if !c.permitted() {
		c.request()
		return "", ErrNoPermission
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return "", fmt.Errorf("create screenshots dir: %w", err)
	}

	path := filepath.Join(c.dir, fmt.Sprintf("screen_%s.png", c.now().Format("20060102_150405")))
	if err := c.capture(ctx, path); err != nil {
		return "", err
	}

	fi, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("screenshot not saved: %w", err)
	}
	if fi.Size() == 0 {
		os.Remove(path)
		return "", fmt.Errorf("screenshot not saved: empty file")
	}
	return path, nil
}
