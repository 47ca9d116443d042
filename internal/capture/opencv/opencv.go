// Package opencv opens V4L/AVFoundation/DirectShow cameras through gocv.
package opencv

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/dj-oyu/voice-detect-camera/internal/capture"
	"github.com/dj-oyu/voice-detect-camera/internal/logger"
	"github.com/dj-oyu/voice-detect-camera/pkg/types"
)

// Options requests a capture geometry. Zero values leave the driver default.
type Options struct {
	Width  int
	Height int
	FPS    float64
}

// Opener returns a capture.Opener using opts.
func Opener(opts Options) capture.Opener {
	return func(index int) (capture.Device, error) {
		return Open(index, opts)
	}
}

// Device is an open gocv.VideoCapture.
type Device struct {
	mu     sync.Mutex
	vc     *gocv.VideoCapture
	mat    gocv.Mat
	number uint64
}

// Open opens the camera at index.
func Open(index int, opts Options) (*Device, error) {
	vc, err := gocv.VideoCaptureDevice(index)
	if err != nil {
		return nil, fmt.Errorf("opencv: open device %d: %w", index, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("opencv: device %d did not open", index)
	}

	if opts.Width > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(opts.Width))
	}
	if opts.Height > 0 {
		vc.Set(gocv.VideoCaptureFrameHeight, float64(opts.Height))
	}
	if opts.FPS > 0 {
		vc.Set(gocv.VideoCaptureFPS, opts.FPS)
	}
	vc.Set(gocv.VideoCaptureBufferSize, 1)

	logger.Info("Capture", "Opened camera %d (%.0fx%.0f @ %.0f fps)", index,
		vc.Get(gocv.VideoCaptureFrameWidth), vc.Get(gocv.VideoCaptureFrameHeight), vc.Get(gocv.VideoCaptureFPS))

	return &Device{vc: vc, mat: gocv.NewMat()}, nil
}

// Read grabs and decodes the next frame.
func (d *Device) Read(ctx context.Context) (types.Frame, error) {
	if err := ctx.Err(); err != nil {
		return types.Frame{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.vc == nil {
		return types.Frame{}, fmt.Errorf("%w: device closed", capture.ErrReadFailed)
	}
	if ok := d.vc.Read(&d.mat); !ok || d.mat.Empty() {
		return types.Frame{}, fmt.Errorf("%w: no frame from device", capture.ErrReadFailed)
	}

	img, err := d.mat.ToImage()
	if err != nil {
		return types.Frame{}, fmt.Errorf("%w: %w", capture.ErrReadFailed, err)
	}
	d.number++

	return types.Frame{Image: img, Number: d.number, Timestamp: time.Now()}, nil
}

// Close releases the camera.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.vc == nil {
		return nil
	}
	err := d.vc.Close()
	d.mat.Close()
	d.vc = nil
	return err
}
