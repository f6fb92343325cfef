// Package clipboard copies reply text to the system clipboard.
package clipboard

import (
	"errors"
	"fmt"
	"sync"

	"github.com/atotto/clipboard"
)

// ErrUnsupported is returned when no clipboard utility is available.
var ErrUnsupported = errors.New("clipboard unsupported")

var clipboardLock sync.Mutex

// Copy replaces the clipboard contents with text.
func Copy(text string) error {
	if clipboard.Unsupported {
		return ErrUnsupported
	}
	clipboardLock.Lock()
	defer clipboardLock.Unlock()

	if err := clipboard.WriteAll(text); err != nil {
		return fmt.Errorf("write clipboard: %w", err)
	}
	return nil
}
