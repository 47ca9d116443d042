// Package capture defines the camera handle the session controller drives and
// the failing handle used when a device cannot be opened.
package capture

import (
	"context"
	"errors"
	"fmt"

	"github.com/dj-oyu/voice-detect-camera/pkg/types"
)

// ErrReadFailed is returned when a device cannot produce a frame.
var ErrReadFailed = errors.New("capture: read failed")

// Device is an open capture handle. Read blocks until the next frame is
// available. Implementations need not be safe for concurrent Read calls.
type Device interface {
	Read(ctx context.Context) (types.Frame, error)
	Close() error
}

// Opener opens the capture device at index.
type Opener func(index int) (Device, error)

// Failed returns a handle whose every read fails with ErrReadFailed wrapping
// cause. It stands in for a device that could not be opened.
func Failed(cause error) Device {
	return failedDevice{cause: cause}
}

type failedDevice struct {
	cause error
}

func (d failedDevice) Read(context.Context) (types.Frame, error) {
	if d.cause == nil {
		return types.Frame{}, ErrReadFailed
	}
	return types.Frame{}, fmt.Errorf("%w: %w", ErrReadFailed, d.cause)
}

func (failedDevice) Close() error { return nil }
