// Package session owns the single capture handle shared by all streams.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dj-oyu/voice-detect-camera/internal/capture"
	"github.com/dj-oyu/voice-detect-camera/internal/logger"
	"github.com/dj-oyu/voice-detect-camera/internal/metrics"
	"github.com/dj-oyu/voice-detect-camera/pkg/types"
)

// ErrInactive is returned by Read when no device is open.
var ErrInactive = errors.New("session: camera not started")

// Status is a snapshot of the controller.
type Status struct {
	Active    bool      `json:"active"`
	Device    int       `json:"device"`
	StartedAt time.Time `json:"started_at,omitzero"`
	Frames    uint64    `json:"frames"`
	OpenError string    `json:"open_error,omitempty"`
}

// Controller starts and stops the capture device. Read and Stop are
// serialised, so a frame being read when Stop is called is still delivered
// and the device is released afterwards.
type Controller struct {
	open    capture.Opener
	index   int
	metrics *metrics.Metrics

	mu        sync.Mutex
	dev       capture.Device
	startedAt time.Time
	frames    uint64
	openErr   error
}

// New returns an idle controller for the device at index.
func New(open capture.Opener, index int, m *metrics.Metrics) *Controller {
	return &Controller{open: open, index: index, metrics: m}
}

// Start opens the device if none is open. A device that fails to open is
// replaced by a handle whose first read fails, so the stream simply ends.
func (c *Controller) Start(ctx context.Context) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dev != nil {
		return types.CameraStarted
	}

	dev, err := c.openDevice(ctx)
	if err != nil {
		logger.Error("Session", "Failed to open camera %d: %v", c.index, err)
		dev = capture.Failed(err)
	} else {
		logger.Info("Session", "Camera %d started", c.index)
	}

	c.dev = dev
	c.openErr = err
	c.startedAt = time.Now()
	c.frames = 0
	if c.metrics != nil {
		c.metrics.SessionStarts.Add(1)
		c.metrics.SetSessionActive(true)
	}
	return types.CameraStarted
}

func (c *Controller) openDevice(ctx context.Context) (capture.Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.open == nil {
		return nil, errors.New("no capture backend configured")
	}
	return c.open(c.index)
}

// Stop releases the device if one is open.
func (c *Controller) Stop() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dev == nil {
		return types.CameraStopped
	}

	if err := c.dev.Close(); err != nil {
		logger.Warn("Session", "Error releasing camera %d: %v", c.index, err)
	}
	c.dev = nil
	c.openErr = nil
	if c.metrics != nil {
		c.metrics.SetSessionActive(false)
	}
	logger.Info("Session", "Camera %d stopped after %d frames", c.index, c.frames)
	return types.CameraStopped
}

// IsActive reports whether a handle is stored.
func (c *Controller) IsActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dev != nil
}

// Read returns the next frame from the open device.
func (c *Controller) Read(ctx context.Context) (types.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dev == nil {
		return types.Frame{}, ErrInactive
	}
	frame, err := c.dev.Read(ctx)
	if err != nil {
		return types.Frame{}, err
	}
	c.frames++
	return frame, nil
}

// Status returns the current state.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Status{Active: c.dev != nil, Device: c.index, Frames: c.frames}
	if s.Active {
		s.StartedAt = c.startedAt
	}
	if c.openErr != nil {
		s.OpenError = c.openErr.Error()
	}
	return s
}
