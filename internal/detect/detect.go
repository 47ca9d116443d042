// Package detect wraps an object-detection model and draws its output onto a
// copy of each frame.
package detect

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/dj-oyu/voice-detect-camera/internal/metrics"
	"github.com/dj-oyu/voice-detect-camera/pkg/types"
)

// ErrNoImage is returned when Detect is called without a frame.
var ErrNoImage = errors.New("detect: no image")

// Model runs inference on one image. Detections are in the image's pixel
// coordinates, in the order the model reports them.
type Model interface {
	Infer(ctx context.Context, img image.Image) ([]types.Detection, error)
}

// ModelFunc adapts a function to Model.
type ModelFunc func(ctx context.Context, img image.Image) ([]types.Detection, error)

// Infer calls f.
func (f ModelFunc) Infer(ctx context.Context, img image.Image) ([]types.Detection, error) {
	return f(ctx, img)
}

// Adapter runs a Model and renders every detection it reports.
type Adapter struct {
	model    Model
	renderer *Renderer
	metrics  *metrics.Metrics
}

// NewAdapter builds an adapter. A nil renderer uses [NewRenderer] defaults.
func NewAdapter(model Model, renderer *Renderer, m *metrics.Metrics) *Adapter {
	if renderer == nil {
		renderer = NewRenderer()
	}
	return &Adapter{model: model, renderer: renderer, metrics: m}
}

// Detect returns the model's detections and an annotated copy of img.
// img itself is never modified.
func (a *Adapter) Detect(ctx context.Context, img image.Image) ([]types.Detection, image.Image, error) {
	if img == nil {
		return nil, nil, ErrNoImage
	}

	start := time.Now()
	dets, err := a.model.Infer(ctx, img)
	if a.metrics != nil {
		a.metrics.ObserveInference(time.Since(start))
	}
	if err != nil {
		if a.metrics != nil {
			a.metrics.InferenceErrors.Add(1)
		}
		return nil, nil, fmt.Errorf("detect: inference: %w", err)
	}
	if a.metrics != nil {
		a.metrics.DetectionsRaw.Add(uint64(len(dets)))
	}

	return dets, a.renderer.Render(img, dets), nil
}
