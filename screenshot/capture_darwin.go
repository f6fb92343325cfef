package screenshot

/*
#cgo CFLAGS: -x objective-c
#cgo LDFLAGS: -framework CoreGraphics -framework Foundation
#import <CoreGraphics/CoreGraphics.h>
#import <Foundation/Foundation.h>

bool hasScreenRecordingPermission() {
    if (@available(macOS 11.0, *)) {
        return CGPreflightScreenCaptureAccess();
    }
    return true;
}

void requestScreenRecordingPermission() {
    if (@available(macOS 11.0, *)) {
        CGRequestScreenCaptureAccess();
    }
}
*/
import "C"
import (
	"context"
	"fmt"
	"os/exec"
)

// HasPermission checks if the app has screen recording permission.
func HasPermission() bool {
	return bool(C.hasScreenRecordingPermission())
}

// RequestPermission requests screen recording permission from the system.
func RequestPermission() {
	C.requestScreenRecordingPermission()
}

func captureScreen(ctx context.Context, path string) error {
	// -x: do not play sound
	// -C: include the cursor
	cmd := exec.CommandContext(ctx, "screencapture", "-x", "-C", path)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("screencapture failed: %w: %s", err, out)
	}
	return nil
}
