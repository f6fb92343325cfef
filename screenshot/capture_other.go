//go:build !darwin

package screenshot

import (
	"context"
	"errors"
	"fmt"
)

// HasPermission reports true: only macOS gates screen capture.
func HasPermission() bool {
	return true
}

// RequestPermission is a no-op outside macOS.
func RequestPermission() {}

func captureScreen(context.Context, string) error {
	return fmt.Errorf("capture screen: %w", errors.ErrUnsupported)
}
