// Package pipeline turns captured frames into annotated JPEG chunks and
// decides which detections are spoken.
//
// Each frame goes through the detector, an allow-list and confidence filter,
// and the shared debounce state before the annotated image is encoded. The
// stream is pull based: a frame is read only when the consumer asks for the
// next chunk.
package pipeline

import (
	"context"
	"fmt"
	"image"
	"iter"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dj-oyu/voice-detect-camera/internal/debounce"
	"github.com/dj-oyu/voice-detect-camera/internal/logger"
	"github.com/dj-oyu/voice-detect-camera/internal/metrics"
	"github.com/dj-oyu/voice-detect-camera/pkg/types"
)

// DefaultThreshold is the confidence a detection must exceed to be spoken.
const DefaultThreshold = 0.6

// DefaultAnnounceFormat renders the spoken text for a label.
const DefaultAnnounceFormat = "%s detected"

// Source is the frame supplier. The stream runs while IsActive reports true.
type Source interface {
	IsActive() bool
	Read(ctx context.Context) (types.Frame, error)
}

// Detector returns the detections for img and an annotated copy of it.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]types.Detection, image.Image, error)
}

// Announcer speaks text without blocking.
type Announcer interface {
	Announce(text string) bool
}

// EventSink receives one Event per processed frame. Publish must not block.
type EventSink interface {
	Publish(Event)
}

// Event summarises one processed frame.
type Event struct {
	FrameNumber uint64            `json:"frame_number"`
	Timestamp   time.Time         `json:"timestamp"`
	Detections  []types.Detection `json:"detections"`
	Accepted    []types.Detection `json:"accepted"`
	Announced   []string          `json:"announced"`
}

// Options configures a Pipeline. Zero values take the defaults.
type Options struct {
	AllowedClasses []string
	Threshold      float64
	DebounceWindow time.Duration
	AnnounceFormat string

	Encoder Encoder
	Events  EventSink
	Clock   clock.Clock
	Metrics *metrics.Metrics
}

// Pipeline is safe for concurrent streams. All streams share one debounce
// state.
type Pipeline struct {
	source    Source
	detector  Detector
	announcer Announcer

	allowed   map[string]struct{}
	threshold float64
	policy    debounce.Policy
	format    string
	encoder   Encoder
	events    EventSink
	clock     clock.Clock
	metrics   *metrics.Metrics

	mu    sync.Mutex
	state debounce.State
}

// New builds a pipeline reading from source.
func New(source Source, detector Detector, announcer Announcer, opts Options) *Pipeline {
	classes := opts.AllowedClasses
	if classes == nil {
		classes = types.DefaultAllowedClasses
	}
	allowed := make(map[string]struct{}, len(classes))
	for _, c := range classes {
		allowed[c] = struct{}{}
	}

	p := &Pipeline{
		source:    source,
		detector:  detector,
		announcer: announcer,
		allowed:   allowed,
		threshold: opts.Threshold,
		policy:    debounce.NewPolicy(opts.DebounceWindow),
		format:    opts.AnnounceFormat,
		encoder:   opts.Encoder,
		events:    opts.Events,
		clock:     opts.Clock,
		metrics:   opts.Metrics,
	}
	if p.threshold == 0 {
		p.threshold = DefaultThreshold
	}
	if p.format == "" {
		p.format = DefaultAnnounceFormat
	}
	if p.encoder == nil {
		p.encoder = NewJPEGEncoder(DefaultJPEGQuality)
	}
	if p.clock == nil {
		p.clock = clock.New()
	}
	return p
}

// Stream yields one encoded frame per pull while the source is active.
//
// A failed read ends the sequence without an error. Detection and encode
// failures are yielded once and end the sequence.
func (p *Pipeline) Stream(ctx context.Context) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		for p.source.IsActive() {
			if ctx.Err() != nil {
				return
			}

			frame, err := p.source.Read(ctx)
			if err != nil {
				if p.metrics != nil {
					p.metrics.ReadFailures.Add(1)
				}
				logger.Debug("Pipeline", "Frame read ended stream: %v", err)
				return
			}
			if p.metrics != nil {
				p.metrics.FramesRead.Add(1)
			}

			data, err := p.Process(ctx, frame)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(data, nil) {
				return
			}
		}
	}
}

// Process runs one frame through detection, announcement and encoding.
func (p *Pipeline) Process(ctx context.Context, frame types.Frame) ([]byte, error) {
	dets, annotated, err := p.detector.Detect(ctx, frame.Image)
	if err != nil {
		return nil, fmt.Errorf("pipeline: frame %d: %w", frame.Number, err)
	}

	accepted, announced := p.announce(dets)

	if p.events != nil {
		p.events.Publish(Event{
			FrameNumber: frame.Number,
			Timestamp:   frame.Timestamp,
			Detections:  dets,
			Accepted:    accepted,
			Announced:   announced,
		})
	}

	start := time.Now()
	data, err := p.encoder.Encode(annotated)
	if err != nil {
		if p.metrics != nil {
			p.metrics.EncodeErrors.Add(1)
		}
		return nil, fmt.Errorf("pipeline: encode frame %d: %w", frame.Number, err)
	}
	if p.metrics != nil {
		p.metrics.ObserveEncode(time.Since(start))
	}
	return data, nil
}

// announce filters dets in order and speaks the ones the debounce policy lets
// through. It returns the filtered detections and the labels spoken.
func (p *Pipeline) announce(dets []types.Detection) ([]types.Detection, []string) {
	var accepted []types.Detection
	var announced []string

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, d := range dets {
		if _, ok := p.allowed[d.Label]; !ok {
			continue
		}
		if d.Confidence <= p.threshold {
			continue
		}
		accepted = append(accepted, d)

		ok, next := p.policy.ShouldAnnounce(d.Label, p.clock.Now(), p.state)
		if !ok {
			continue
		}
		p.state = next
		announced = append(announced, d.Label)
		if p.announcer != nil {
			p.announcer.Announce(fmt.Sprintf(p.format, d.Label))
		}
		logger.Info("Pipeline", "Announced %s (%.2f)", d.Label, d.Confidence)
	}

	if p.metrics != nil {
		p.metrics.DetectionsPassed.Add(uint64(len(accepted)))
	}
	return accepted, announced
}

// State returns a copy of the shared debounce state.
func (p *Pipeline) State() debounce.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Reset clears the debounce state.
func (p *Pipeline) Reset() {
	p.mu.Lock()
	p.state = debounce.State{}
	p.mu.Unlock()
}
