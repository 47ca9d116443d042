// Package webcam captures through pion/mediadevices camera drivers, which do
// not need OpenCV.
package webcam

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/driver"
	mediadevicescamera "github.com/pion/mediadevices/pkg/driver/camera"
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/io/video"
	"github.com/pion/mediadevices/pkg/prop"
	"golang.org/x/image/draw"

	"github.com/dj-oyu/voice-detect-camera/internal/capture"
	"github.com/dj-oyu/voice-detect-camera/internal/logger"
	"github.com/dj-oyu/voice-detect-camera/pkg/types"
)

// Options requests a capture geometry. Zero values let the driver choose.
type Options struct {
	Width  int
	Height int
	FPS    float64
}

var initOnce sync.Once

// Opener returns a capture.Opener using opts. Device indexes follow the order
// the driver manager reports video recorders.
func Opener(opts Options) capture.Opener {
	return func(index int) (capture.Device, error) {
		return Open(index, opts)
	}
}

// Device is a mediadevices video track.
type Device struct {
	mu     sync.Mutex
	track  mediadevices.Track
	reader video.Reader
	number uint64
}

// Open opens the index-th camera driver.
func Open(index int, opts Options) (*Device, error) {
	initOnce.Do(mediadevicescamera.Initialize)

	drivers := driver.GetManager().Query(driver.FilterVideoRecorder())
	if index < 0 || index >= len(drivers) {
		return nil, fmt.Errorf("webcam: device %d not found (%d available)", index, len(drivers))
	}
	d := drivers[index]

	stream, err := mediadevices.GetUserMedia(makeConstraints(d.ID(), opts))
	if err != nil {
		return nil, fmt.Errorf("webcam: open %s: %w", d.Info().Label, err)
	}
	tracks := stream.GetVideoTracks()
	if len(tracks) == 0 {
		return nil, errors.New("webcam: no video track")
	}
	vt, ok := tracks[0].(*mediadevices.VideoTrack)
	if !ok {
		for _, t := range tracks {
			t.Close()
		}
		return nil, fmt.Errorf("webcam: unexpected track type %T", tracks[0])
	}

	logger.Info("Capture", "Opened webcam %d (%s)", index, d.Info().Label)
	return &Device{track: vt, reader: vt.NewReader(false)}, nil
}

func makeConstraints(id string, opts Options) mediadevices.MediaStreamConstraints {
	return mediadevices.MediaStreamConstraints{
		Video: func(c *mediadevices.MediaTrackConstraints) {
			c.DeviceID = prop.StringExact(id)
			if opts.Width > 0 {
				c.Width = prop.IntExact(opts.Width)
			} else {
				c.Width = prop.IntRanged{Min: 0, Ideal: 640, Max: 4096}
			}
			if opts.Height > 0 {
				c.Height = prop.IntExact(opts.Height)
			} else {
				c.Height = prop.IntRanged{Min: 0, Ideal: 480, Max: 2160}
			}
			if opts.FPS > 0 {
				c.FrameRate = prop.FloatExact(opts.FPS)
			} else {
				c.FrameRate = prop.FloatRanged{Min: 0, Ideal: 30, Max: 140}
			}
			c.FrameFormat = prop.FrameFormatOneOf{
				frame.FormatMJPEG,
				frame.FormatYUY2,
				frame.FormatI420,
				frame.FormatNV12,
				frame.FormatRGBA,
			}
		},
	}
}

// Read returns the next frame. The driver's buffer is copied before it is
// released back to the reader.
func (d *Device) Read(ctx context.Context) (types.Frame, error) {
	if err := ctx.Err(); err != nil {
		return types.Frame{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.reader == nil {
		return types.Frame{}, fmt.Errorf("%w: device closed", capture.ErrReadFailed)
	}
	img, release, err := d.reader.Read()
	if release != nil {
		defer release()
	}
	if err != nil {
		return types.Frame{}, fmt.Errorf("%w: %w", capture.ErrReadFailed, err)
	}

	d.number++
	return types.Frame{Image: cloneImage(img), Number: d.number, Timestamp: time.Now()}, nil
}

// Close stops the track.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.track == nil {
		return nil
	}
	err := d.track.Close()
	d.track, d.reader = nil, nil
	return err
}

func cloneImage(src image.Image) image.Image {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return dst
}
