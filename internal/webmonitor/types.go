package webmonitor

import (
	"time"

	"github.com/dj-oyu/voice-detect-camera/internal/pipeline"
	"github.com/dj-oyu/voice-detect-camera/pkg/types"
)

// BoundingBox is the JSON shape of a detection box.
type BoundingBox struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Detection is the JSON shape of one detection.
type Detection struct {
	ClassName  string      `json:"class_name"`
	Confidence float64     `json:"confidence"`
	BBox       BoundingBox `json:"bbox"`
	Accepted   bool        `json:"accepted"`
}

// DetectionEvent is the payload for /api/detections/stream and the WebRTC
// data channel.
type DetectionEvent struct {
	FrameNumber uint64      `json:"frame_number"`
	Timestamp   float64     `json:"timestamp"`
	Detections  []Detection `json:"detections"`
	Announced   []string    `json:"announced"`
}

// MonitorStats summarises pipeline activity for /api/status.
type MonitorStats struct {
	FramesProcessed uint64  `json:"frames_processed"`
	CurrentFPS      float64 `json:"current_fps"`
	DetectionCount  int     `json:"detection_count"`
	Announcements   uint64  `json:"announcements"`
	LastAnnounced   string  `json:"last_announced"`
}

func newDetectionEvent(ev pipeline.Event) DetectionEvent {
	accepted := make(map[types.Detection]struct{}, len(ev.Accepted))
	for _, d := range ev.Accepted {
		accepted[d] = struct{}{}
	}

	dets := make([]Detection, len(ev.Detections))
	for i, d := range ev.Detections {
		_, ok := accepted[d]
		dets[i] = Detection{
			ClassName:  d.Label,
			Confidence: d.Confidence,
			BBox: BoundingBox{
				X: d.Box.Min.X,
				Y: d.Box.Min.Y,
				W: d.Box.Dx(),
				H: d.Box.Dy(),
			},
			Accepted: ok,
		}
	}

	announced := ev.Announced
	if announced == nil {
		announced = []string{}
	}
	return DetectionEvent{
		FrameNumber: ev.FrameNumber,
		Timestamp:   unixSeconds(ev.Timestamp),
		Detections:  dets,
		Announced:   announced,
	}
}

func unixSeconds(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return float64(t.UnixNano()) / float64(time.Second)
}
