package webmonitor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dj-oyu/voice-detect-camera/internal/metrics"
	"github.com/dj-oyu/voice-detect-camera/internal/pipeline"
	"github.com/dj-oyu/voice-detect-camera/internal/session"
	"github.com/dj-oyu/voice-detect-camera/internal/webrtc"
	"github.com/dj-oyu/voice-detect-camera/pkg/types"
)

type fakeSession struct {
	mu     sync.Mutex
	active bool
	starts int
}

func (f *fakeSession) Start(context.Context) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.active {
		f.active = true
		f.starts++
	}
	return types.CameraStarted
}

func (f *fakeSession) Stop() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active = false
	return types.CameraStopped
}

func (f *fakeSession) Status() session.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return session.Status{Active: f.active}
}

// chunkStreamer yields n fake JPEG payloads and then ends.
type chunkStreamer struct {
	n   int
	err error
}

func (c chunkStreamer) Stream(ctx context.Context) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		for i := 0; i < c.n; i++ {
			if ctx.Err() != nil {
				return
			}
			if !yield([]byte(fmt.Sprintf("jpeg-%d", i)), nil) {
				return
			}
		}
		if c.err != nil {
			yield(nil, c.err)
		}
	}
}

type fakeOffers struct {
	answer []byte
	err    error
	got    []byte
}

func (f *fakeOffers) HandleOffer(offer []byte) ([]byte, error) {
	f.got = offer
	return f.answer, f.err
}

func (f *fakeOffers) GetClientCount() int { return 3 }

func (f *fakeOffers) GetClientStats() map[string]map[string]uint64 {
	return map[string]map[string]uint64{
		"client-1": {"events_sent": 12, "events_dropped": 1},
	}
}

func newTestServer(t *testing.T, deps Deps) (*httptest.Server, *fakeSession) {
	t.Helper()
	sess, _ := deps.Session.(*fakeSession)
	if sess == nil {
		sess = &fakeSession{}
		deps.Session = sess
	}
	if deps.Streamer == nil {
		deps.Streamer = chunkStreamer{}
	}
	srv := httptest.NewServer(NewServer(Config{SSEKeepalive: time.Hour}, deps).Handler())
	t.Cleanup(srv.Close)
	return srv, sess
}

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read %s: %v", url, err)
	}
	return resp, body
}

func TestIndexPage(t *testing.T) {
	srv, _ := newTestServer(t, Deps{})

	resp, body := get(t, srv.URL+"/")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Fatalf("content type = %q", ct)
	}
	for _, want := range []string{`id="video"`, "fetch('/start')", "fetch('/stop')", "Object Detection with Voice"} {
		if !bytes.Contains(body, []byte(want)) {
			t.Fatalf("index page missing %q", want)
		}
	}

	if resp, _ := get(t, srv.URL+"/nope"); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown path status = %d", resp.StatusCode)
	}
}

func TestStartStopTexts(t *testing.T) {
	srv, sess := newTestServer(t, Deps{})

	for i := 0; i < 2; i++ {
		resp, body := get(t, srv.URL+"/start")
		if resp.StatusCode != http.StatusOK || string(body) != "Camera Started" {
			t.Fatalf("start #%d: %d %q", i, resp.StatusCode, body)
		}
	}
	if sess.starts != 1 {
		t.Fatalf("starts = %d, want 1", sess.starts)
	}

	for i := 0; i < 2; i++ {
		resp, body := get(t, srv.URL+"/stop")
		if resp.StatusCode != http.StatusOK || string(body) != "Camera Stopped" {
			t.Fatalf("stop #%d: %d %q", i, resp.StatusCode, body)
		}
	}
	if sess.Status().Active {
		t.Fatalf("session still active")
	}
}

func TestVideoStreamsChunks(t *testing.T) {
	m := metrics.New()
	srv, _ := newTestServer(t, Deps{Streamer: chunkStreamer{n: 3}, Metrics: m})

	resp, body := get(t, srv.URL+"/video")
	if ct := resp.Header.Get("Content-Type"); ct != "multipart/x-mixed-replace; boundary=frame" {
		t.Fatalf("content type = %q", ct)
	}

	var want bytes.Buffer
	for i := 0; i < 3; i++ {
		fmt.Fprintf(&want, "--frame\r\nContent-Type: image/jpeg\r\n\r\njpeg-%d\r\n", i)
	}
	if !bytes.Equal(body, want.Bytes()) {
		t.Fatalf("body = %q\nwant %q", body, want.Bytes())
	}
	if got := m.FramesStreamed.Load(); got != 3 {
		t.Fatalf("frames streamed = %d", got)
	}
	if got := m.StreamClients.Load(); got != 0 {
		t.Fatalf("stream clients = %d after close", got)
	}
}

func TestVideoIdleSessionEndsEmpty(t *testing.T) {
	srv, _ := newTestServer(t, Deps{Streamer: chunkStreamer{}})

	resp, body := get(t, srv.URL+"/video")
	if resp.StatusCode != http.StatusOK || len(body) != 0 {
		t.Fatalf("got %d %q", resp.StatusCode, body)
	}
}

func TestVideoStopsOnStreamError(t *testing.T) {
	srv, _ := newTestServer(t, Deps{Streamer: chunkStreamer{n: 1, err: fmt.Errorf("encode failed")}})

	_, body := get(t, srv.URL+"/video")
	if n := bytes.Count(body, []byte("--frame")); n != 1 {
		t.Fatalf("chunks = %d, want 1", n)
	}
}

func TestStatusJSON(t *testing.T) {
	mon := NewMonitor()
	mon.Record(pipeline.Event{
		FrameNumber: 7,
		Timestamp:   time.Unix(100, 0),
		Detections:  []types.Detection{{Label: "cup", Confidence: 0.9}},
		Announced:   []string{"I see a cup"},
	})
	srv, _ := newTestServer(t, Deps{Monitor: mon, WebRTC: &fakeOffers{}})

	resp, body := get(t, srv.URL+"/api/status")
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content type = %q", ct)
	}

	var payload struct {
		Session         session.Status               `json:"session"`
		Monitor         MonitorStats                 `json:"monitor"`
		LatestDetection *DetectionEvent              `json:"latest_detection"`
		History         []DetectionEvent             `json:"detection_history"`
		WebRTCClients   int                          `json:"webrtc_clients"`
		WebRTCStats     map[string]map[string]uint64 `json:"webrtc_client_stats"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("decode: %v (%s)", err, body)
	}
	if payload.Monitor.FramesProcessed != 1 || payload.Monitor.LastAnnounced != "I see a cup" {
		t.Fatalf("monitor = %+v", payload.Monitor)
	}
	if payload.LatestDetection == nil || payload.LatestDetection.FrameNumber != 7 {
		t.Fatalf("latest = %+v", payload.LatestDetection)
	}
	if len(payload.History) != 1 || payload.WebRTCClients != 3 {
		t.Fatalf("history = %d, webrtc = %d", len(payload.History), payload.WebRTCClients)
	}
	if got := payload.WebRTCStats["client-1"]; got["events_sent"] != 12 || got["events_dropped"] != 1 {
		t.Fatalf("webrtc client stats = %+v", payload.WebRTCStats)
	}
}

func TestDetectionsStreamDeliversEvents(t *testing.T) {
	b := NewDetectionBroadcaster(nil, nil)
	srv, _ := newTestServer(t, Deps{Broadcaster: b})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/detections/stream", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET stream: %v", err)
	}
	defer resp.Body.Close()
	if got := resp.Header.Get("X-Content-Format"); got != "application/json" {
		t.Fatalf("format = %q", got)
	}

	waitFor(t, func() bool { return b.ClientCount() == 1 })
	b.Publish(pipeline.Event{FrameNumber: 3, Detections: []types.Detection{{Label: "dog", Confidence: 0.8}}})

	line := readDataLine(t, resp.Body)
	var ev DetectionEvent
	if err := json.Unmarshal([]byte(line), &ev); err != nil {
		t.Fatalf("decode %q: %v", line, err)
	}
	if ev.FrameNumber != 3 || len(ev.Detections) != 1 || ev.Detections[0].ClassName != "dog" {
		t.Fatalf("event = %+v", ev)
	}
}

func TestWebRTCOffer(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		srv, _ := newTestServer(t, Deps{})
		resp := postOffer(t, srv.URL, `{"type":"offer","sdp":"v=0"}`)
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("status = %d", resp.StatusCode)
		}
	})

	t.Run("invalid", func(t *testing.T) {
		srv, _ := newTestServer(t, Deps{WebRTC: &fakeOffers{}})
		for _, body := range []string{"garbage", `{"type":"offer"}`} {
			if resp := postOffer(t, srv.URL, body); resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("%q: status = %d", body, resp.StatusCode)
			}
		}
	})

	t.Run("full", func(t *testing.T) {
		srv, _ := newTestServer(t, Deps{WebRTC: &fakeOffers{err: fmt.Errorf("offer: %w", webrtc.ErrMaxClients)}})
		if resp := postOffer(t, srv.URL, `{"type":"offer","sdp":"v=0"}`); resp.StatusCode != http.StatusServiceUnavailable {
			t.Fatalf("status = %d", resp.StatusCode)
		}
	})

	t.Run("answer", func(t *testing.T) {
		offers := &fakeOffers{answer: []byte(`{"type":"answer","sdp":"v=0"}`)}
		srv, _ := newTestServer(t, Deps{WebRTC: offers})
		resp := postOffer(t, srv.URL, `{"type":"offer","sdp":"v=0"}`)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d", resp.StatusCode)
		}
		if !strings.Contains(string(offers.got), `"sdp":"v=0"`) {
			t.Fatalf("offer forwarded as %q", offers.got)
		}
	})
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.New()
	m.FramesRead.Add(5)
	srv, _ := newTestServer(t, Deps{Metrics: m})

	resp, body := get(t, srv.URL+"/metrics")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !bytes.Contains(body, []byte("frames_read_total 5")) {
		t.Fatalf("metrics body missing frames counter:\n%s", body)
	}
}

func postOffer(t *testing.T, base, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(base+"/api/webrtc/offer", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST offer: %v", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	return resp
}

func readDataLine(t *testing.T, r io.Reader) string {
	t.Helper()
	buf := make([]byte, 0, 4096)
	tmp := make([]byte, 512)
	for {
		if i := bytes.Index(buf, []byte("\n\n")); i >= 0 {
			line := string(buf[:i])
			if data, ok := strings.CutPrefix(line, "data: "); ok {
				return data
			}
			buf = buf[i+2:]
			continue
		}
		n, err := r.Read(tmp)
		if err != nil {
			t.Fatalf("read SSE: %v", err)
		}
		buf = append(buf, tmp[:n]...)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
