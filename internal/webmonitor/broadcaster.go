package webmonitor

import (
	"encoding/base64"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dj-oyu/voice-detect-camera/internal/logger"
	"github.com/dj-oyu/voice-detect-camera/internal/metrics"
	"github.com/dj-oyu/voice-detect-camera/internal/pipeline"
)

// SerializedEvent holds one event pre-serialized in both wire formats so
// each subscriber only pays for a write.
type SerializedEvent struct {
	JSONData     []byte // JSON object
	ProtobufData []byte // base64 of a google.protobuf.Struct, for SSE
}

// Listener is called with every broadcast event. It must not block.
type Listener func(*SerializedEvent)

// DetectionBroadcaster fans processed frames out to SSE clients and
// listeners. It implements pipeline.EventSink.
type DetectionBroadcaster struct {
	monitor *Monitor
	metrics *metrics.Metrics

	mu        sync.Mutex
	clients   map[string]chan *SerializedEvent
	listeners []Listener
}

var _ pipeline.EventSink = (*DetectionBroadcaster)(nil)

// NewDetectionBroadcaster records events into monitor before fanning out.
func NewDetectionBroadcaster(monitor *Monitor, m *metrics.Metrics) *DetectionBroadcaster {
	if monitor == nil {
		monitor = NewMonitor()
	}
	return &DetectionBroadcaster{
		monitor: monitor,
		metrics: m,
		clients: make(map[string]chan *SerializedEvent),
	}
}

// Subscribe adds a client and returns its id and event channel.
func (db *DetectionBroadcaster) Subscribe() (string, <-chan *SerializedEvent) {
	db.mu.Lock()
	defer db.mu.Unlock()

	id := uuid.NewString()
	ch := make(chan *SerializedEvent, 2) // Buffer 2 events to avoid blocking
	db.clients[id] = ch
	if db.metrics != nil {
		db.metrics.EventClients.Add(1)
	}

	logger.Debug("DetectionBroadcaster", "Client %s subscribed (total clients: %d)", id, len(db.clients))
	return id, ch
}

// Unsubscribe removes a client and closes its channel.
func (db *DetectionBroadcaster) Unsubscribe(id string) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if ch, ok := db.clients[id]; ok {
		close(ch)
		delete(db.clients, id)
		if db.metrics != nil {
			db.metrics.EventClients.Add(-1)
		}
		logger.Debug("DetectionBroadcaster", "Client %s unsubscribed (remaining clients: %d)", id, len(db.clients))
	}
}

// ClientCount returns the number of subscribed SSE clients.
func (db *DetectionBroadcaster) ClientCount() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.clients)
}

// AddListener registers fn for every future event.
func (db *DetectionBroadcaster) AddListener(fn Listener) {
	db.mu.Lock()
	db.listeners = append(db.listeners, fn)
	db.mu.Unlock()
}

// Publish records ev and broadcasts it when the frame had detections.
func (db *DetectionBroadcaster) Publish(ev pipeline.Event) {
	view := db.monitor.Record(ev)
	if len(view.Detections) == 0 {
		return
	}

	db.mu.Lock()
	idle := len(db.clients) == 0 && len(db.listeners) == 0
	db.mu.Unlock()
	if idle {
		return
	}

	event, err := serializeEvent(view)
	if err != nil {
		logger.Error("DetectionBroadcaster", "Serialize frame %d: %v", view.FrameNumber, err)
		return
	}
	db.broadcast(event)
}

// Close disconnects every client.
func (db *DetectionBroadcaster) Close() {
	db.mu.Lock()
	defer db.mu.Unlock()

	for id, ch := range db.clients {
		close(ch)
		delete(db.clients, id)
		if db.metrics != nil {
			db.metrics.EventClients.Add(-1)
		}
	}
}

func (db *DetectionBroadcaster) broadcast(event *SerializedEvent) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, ch := range db.clients {
		select {
		case ch <- event:
		default:
			// Client too slow, skip this event for this client
		}
	}
	for _, fn := range db.listeners {
		fn(event)
	}
}

func serializeEvent(view DetectionEvent) (*SerializedEvent, error) {
	jsonData, err := json.Marshal(view)
	if err != nil {
		return nil, err
	}

	st, err := eventStruct(view)
	if err != nil {
		return nil, err
	}
	pbData, err := proto.Marshal(st)
	if err != nil {
		return nil, err
	}

	return &SerializedEvent{
		JSONData:     jsonData,
		ProtobufData: []byte(base64.StdEncoding.EncodeToString(pbData)),
	}, nil
}

// eventStruct mirrors the JSON object as a google.protobuf.Struct.
func eventStruct(view DetectionEvent) (*structpb.Struct, error) {
	dets := make([]any, len(view.Detections))
	for i, d := range view.Detections {
		dets[i] = map[string]any{
			"class_name": d.ClassName,
			"confidence": d.Confidence,
			"accepted":   d.Accepted,
			"bbox": map[string]any{
				"x": d.BBox.X,
				"y": d.BBox.Y,
				"w": d.BBox.W,
				"h": d.BBox.H,
			},
		}
	}
	announced := make([]any, len(view.Announced))
	for i, a := range view.Announced {
		announced[i] = a
	}

	return structpb.NewStruct(map[string]any{
		"frame_number": view.FrameNumber,
		"timestamp":    view.Timestamp,
		"detections":   dets,
		"announced":    announced,
	})
}
