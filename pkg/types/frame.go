package types

import (
	"image"
	"time"
)

// Frame is one decoded image pulled from a capture device.
type Frame struct {
	Image     image.Image // Decoded pixels, never nil for a successful read
	Number    uint64      // Sequential frame number since the device was opened
	Timestamp time.Time   // Capture timestamp
}

// Width returns the frame width in pixels.
func (f Frame) Width() int {
	if f.Image == nil {
		return 0
	}
	return f.Image.Bounds().Dx()
}

// Height returns the frame height in pixels.
func (f Frame) Height() int {
	if f.Image == nil {
		return 0
	}
	return f.Image.Bounds().Dy()
}

// Detection is a single object reported by the detection model.
// Values are created per frame and never modified afterwards.
type Detection struct {
	Label      string          // Class name, e.g. "person"
	Confidence float64         // Model score in [0,1]
	Box        image.Rectangle // Axis-aligned box in pixel coordinates
}

// DefaultAllowedClasses are the labels eligible for announcement.
var DefaultAllowedClasses = []string{
	"person",
	"bottle",
	"cup",
	"cell phone",
	"laptop",
	"chair",
	"keyboard",
	"mouse",
	"book",
	"pen",
}

// Confirmation texts returned by the start/stop controls.
const (
	CameraStarted = "Camera Started"
	CameraStopped = "Camera Stopped"
)
