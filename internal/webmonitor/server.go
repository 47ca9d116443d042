package webmonitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"
	"time"

	"github.com/dj-oyu/voice-detect-camera/internal/logger"
	"github.com/dj-oyu/voice-detect-camera/internal/metrics"
	"github.com/dj-oyu/voice-detect-camera/internal/session"
	"github.com/dj-oyu/voice-detect-camera/internal/webrtc"
)

// Session is the capture lifecycle behind /start and /stop.
type Session interface {
	Start(ctx context.Context) string
	Stop() string
	Status() session.Status
}

// Streamer produces the encoded frames behind /video.
type Streamer interface {
	Stream(ctx context.Context) iter.Seq2[[]byte, error]
}

// OfferHandler answers WebRTC offers for the detection data channel.
type OfferHandler interface {
	HandleOffer(offerJSON []byte) ([]byte, error)
	GetClientCount() int
	GetClientStats() map[string]map[string]uint64
}

// Deps are the collaborators of a Server. Session and Streamer are required.
type Deps struct {
	Session     Session
	Streamer    Streamer
	Broadcaster *DetectionBroadcaster
	Monitor     *Monitor
	WebRTC      OfferHandler
	Metrics     *metrics.Metrics
	Health      interface{ Register(*http.ServeMux) }
}

// Server serves the control page, the start/stop controls, the MJPEG stream
// and the monitoring endpoints.
type Server struct {
	cfg  Config
	deps Deps
}

// NewServer returns a configured monitor server.
func NewServer(cfg Config, deps Deps) *Server {
	def := DefaultConfig()
	if cfg.StatusInterval <= 0 {
		cfg.StatusInterval = def.StatusInterval
	}
	if cfg.SSEKeepalive <= 0 {
		cfg.SSEKeepalive = def.SSEKeepalive
	}
	if cfg.MaxOfferBytes <= 0 {
		cfg.MaxOfferBytes = def.MaxOfferBytes
	}
	if deps.Monitor == nil {
		deps.Monitor = NewMonitor()
	}
	if deps.Broadcaster == nil {
		deps.Broadcaster = NewDetectionBroadcaster(deps.Monitor, deps.Metrics)
	}
	return &Server{cfg: cfg, deps: deps}
}

// Handler exposes the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /start", s.handleStart)
	mux.HandleFunc("GET /stop", s.handleStop)
	mux.HandleFunc("GET /video", s.handleVideo)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/status/stream", s.handleStatusStream)
	mux.HandleFunc("GET /api/detections/stream", s.handleDetectionsStream)
	mux.HandleFunc("POST /api/webrtc/offer", s.handleWebRTCOffer)

	if s.deps.Metrics != nil {
		mux.Handle("GET /metrics", s.deps.Metrics.Handler())
	}
	if s.deps.Health != nil {
		s.deps.Health.Register(mux)
	}

	return mux
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(indexHTML))
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	writeText(w, s.deps.Session.Start(r.Context()))
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	writeText(w, s.deps.Session.Stop())
}

func (s *Server) handleVideo(w http.ResponseWriter, r *http.Request) {
	logger.Debug("MJPEG", "Client %s connected", r.RemoteAddr)
	streamMJPEG(w, s.deps.Streamer.Stream(r.Context()), s.deps.Metrics)
}

func (s *Server) statusPayload() map[string]any {
	stats, latest, history := s.deps.Monitor.Snapshot()
	payload := map[string]any{
		"session":           s.deps.Session.Status(),
		"monitor":           stats,
		"latest_detection":  latest,
		"detection_history": history,
		"sse_clients":       s.deps.Broadcaster.ClientCount(),
		"timestamp":         unixSeconds(time.Now()),
	}
	if s.deps.WebRTC != nil {
		payload["webrtc_clients"] = s.deps.WebRTC.GetClientCount()
		payload["webrtc_client_stats"] = s.deps.WebRTC.GetClientStats()
	}
	return payload
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.statusPayload())
}

func (s *Server) handleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ticker := time.NewTicker(s.cfg.StatusInterval)
	defer ticker.Stop()

	for {
		if err := writeSSE(w, s.statusPayload()); err != nil {
			return
		}
		flusher.Flush()

		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Server) handleDetectionsStream(w http.ResponseWriter, r *http.Request) {
	id, eventCh := s.deps.Broadcaster.Subscribe()
	defer s.deps.Broadcaster.Unsubscribe(id)

	accept := r.Header.Get("Accept")
	useProtobuf := strings.Contains(accept, "application/protobuf") ||
		strings.Contains(accept, "application/x-protobuf")

	streamDetectionEventsFromChannel(r.Context(), w, eventCh, useProtobuf, s.cfg.SSEKeepalive)
}

func (s *Server) handleWebRTCOffer(w http.ResponseWriter, r *http.Request) {
	if s.deps.WebRTC == nil {
		writeJSONWithStatus(w, map[string]any{"error": "WebRTC is disabled"}, http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxOfferBytes))
	if err != nil {
		writeJSONWithStatus(w, map[string]any{"error": "Invalid offer data"}, http.StatusBadRequest)
		return
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil || payload["sdp"] == nil || payload["type"] == nil {
		writeJSONWithStatus(w, map[string]any{"error": "Invalid offer data"}, http.StatusBadRequest)
		return
	}

	answer, err := s.deps.WebRTC.HandleOffer(body)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, webrtc.ErrMaxClients) {
			status = http.StatusServiceUnavailable
		}
		logger.Warn("WebRTC", "Offer rejected: %v", err)
		writeJSONWithStatus(w, map[string]any{"error": err.Error()}, status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(answer)
}

func writeText(w http.ResponseWriter, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, text)
}

func writeJSON(w http.ResponseWriter, payload any) {
	writeJSONWithStatus(w, payload, http.StatusOK)
}

func writeJSONWithStatus(w http.ResponseWriter, payload any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		_, _ = fmt.Fprintf(w, `{"error":"%s"}`, err.Error())
	}
}
