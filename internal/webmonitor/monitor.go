package webmonitor

import (
	"sync"
	"time"

	"github.com/dj-oyu/voice-detect-camera/internal/pipeline"
)

const historySize = 8

// Monitor keeps the statistics served by /api/status.
type Monitor struct {
	mu              sync.Mutex
	framesProcessed uint64
	announcements   uint64
	lastAnnounced   string
	lastFrameAt     time.Time
	fps             float64
	latest          *DetectionEvent
	history         []DetectionEvent
}

// NewMonitor returns an empty monitor.
func NewMonitor() *Monitor {
	return &Monitor{}
}

// Record folds one processed frame into the statistics and returns its JSON
// view.
func (m *Monitor) Record(ev pipeline.Event) DetectionEvent {
	view := newDetectionEvent(ev)
	now := ev.Timestamp
	if now.IsZero() {
		now = time.Now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.framesProcessed++
	if !m.lastFrameAt.IsZero() {
		if dt := now.Sub(m.lastFrameAt).Seconds(); dt > 0 {
			// exponential moving average over roughly ten frames
			inst := 1 / dt
			if m.fps == 0 {
				m.fps = inst
			} else {
				m.fps = 0.9*m.fps + 0.1*inst
			}
		}
	}
	m.lastFrameAt = now

	if n := len(view.Announced); n > 0 {
		m.announcements += uint64(n)
		m.lastAnnounced = view.Announced[n-1]
	}

	m.latest = &view
	if len(view.Detections) > 0 {
		m.history = append([]DetectionEvent{view}, m.history...)
		if len(m.history) > historySize {
			m.history = m.history[:historySize]
		}
	}
	return view
}

// Snapshot returns the current statistics, the latest event and recent
// events that had detections, newest first.
func (m *Monitor) Snapshot() (MonitorStats, *DetectionEvent, []DetectionEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := MonitorStats{
		FramesProcessed: m.framesProcessed,
		CurrentFPS:      m.fps,
		Announcements:   m.announcements,
		LastAnnounced:   m.lastAnnounced,
	}
	var latest *DetectionEvent
	if m.latest != nil {
		stats.DetectionCount = len(m.latest.Detections)
		cp := *m.latest
		latest = &cp
	}

	history := make([]DetectionEvent, len(m.history))
	copy(history, m.history)
	return stats, latest, history
}
