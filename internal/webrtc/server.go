// Package webrtc pushes detection events to browsers over WebRTC data
// channels. Video stays on MJPEG; only the small JSON events travel here.
package webrtc

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"

	"github.com/dj-oyu/voice-detect-camera/internal/logger"
	"github.com/dj-oyu/voice-detect-camera/internal/metrics"
)

// ErrMaxClients is returned by HandleOffer when the client limit is reached.
var ErrMaxClients = errors.New("webrtc: maximum clients reached")

// eventBuffer is the number of events queued per client before dropping.
const eventBuffer = 16

// Client represents a connected WebRTC client
type Client struct {
	id            string
	peerConn      *webrtc.PeerConnection
	mu            sync.Mutex
	channel       *webrtc.DataChannel
	eventChan     chan []byte
	closeChan     chan struct{}
	eventsSent    atomic.Uint64
	eventsDropped atomic.Uint64
}

// Server manages WebRTC connections
type Server struct {
	clients    map[string]*Client
	clientsMu  sync.RWMutex
	config     webrtc.Configuration
	maxClients int
	api        *webrtc.API
	metrics    *metrics.Metrics
}

// NewServer creates a new WebRTC server
func NewServer(stunServers []string, maxClients int, m *metrics.Metrics) *Server {
	iceServers := make([]webrtc.ICEServer, 0, len(stunServers))
	for _, url := range stunServers {
		iceServers = append(iceServers, webrtc.ICEServer{
			URLs: []string{url},
		})
	}

	settingsEngine := webrtc.SettingEngine{}

	// Reduce DTLS retransmission timeout (faster connection, less CPU on retries)
	settingsEngine.SetDTLSRetransmissionInterval(time.Second * 2)
	settingsEngine.SetNetworkTypes([]webrtc.NetworkType{
		webrtc.NetworkTypeUDP4,
		webrtc.NetworkTypeUDP6,
	})

	api := webrtc.NewAPI(webrtc.WithSettingEngine(settingsEngine))

	if maxClients <= 0 {
		maxClients = 10
	}

	return &Server{
		clients: make(map[string]*Client),
		config: webrtc.Configuration{
			ICEServers: iceServers,
		},
		maxClients: maxClients,
		api:        api,
		metrics:    m,
	}
}

// HandleOffer handles a WebRTC offer and returns an answer. The offer must
// negotiate a data channel; events are sent on the first channel the browser
// opens.
func (s *Server) HandleOffer(offerJSON []byte) ([]byte, error) {
	var offer webrtc.SessionDescription
	if err := json.Unmarshal(offerJSON, &offer); err != nil {
		return nil, fmt.Errorf("failed to parse offer: %w", err)
	}

	if n := s.GetClientCount(); n >= s.maxClients {
		return nil, fmt.Errorf("%w (%d)", ErrMaxClients, s.maxClients)
	}

	peerConn, err := s.api.NewPeerConnection(s.config)
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	client := &Client{
		id:        uuid.NewString(),
		peerConn:  peerConn,
		eventChan: make(chan []byte, eventBuffer),
		closeChan: make(chan struct{}),
	}

	// Registered before negotiation so a state change during gathering
	// always finds the client to remove.
	if err := s.addClient(client); err != nil {
		peerConn.Close()
		return nil, err
	}

	peerConn.OnDataChannel(func(dc *webrtc.DataChannel) {
		dc.OnOpen(func() {
			client.mu.Lock()
			if client.channel == nil {
				client.channel = dc
			}
			client.mu.Unlock()
			logger.Info("WebRTC", "Client %s opened data channel %q", client.id, dc.Label())
		})
	})

	// Remove client on disconnection, failure, or close
	peerConn.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		logger.Debug("WebRTC", "Client %s connection state: %s", client.id, state.String())

		if state == webrtc.PeerConnectionStateDisconnected ||
			state == webrtc.PeerConnectionStateFailed ||
			state == webrtc.PeerConnectionStateClosed {
			logger.Info("WebRTC", "Client %s connection lost (Peer: %s), removing...", client.id, state.String())
			s.RemoveClient(client.id)
		}
	})

	if err := peerConn.SetRemoteDescription(offer); err != nil {
		s.RemoveClient(client.id)
		return nil, fmt.Errorf("failed to set remote description: %w", err)
	}

	answer, err := peerConn.CreateAnswer(nil)
	if err != nil {
		s.RemoveClient(client.id)
		return nil, fmt.Errorf("failed to create answer: %w", err)
	}

	gatherComplete := webrtc.GatheringCompletePromise(peerConn)

	if err := peerConn.SetLocalDescription(answer); err != nil {
		s.RemoveClient(client.id)
		return nil, fmt.Errorf("failed to set local description: %w", err)
	}

	<-gatherComplete
	logger.Debug("WebRTC", "ICE gathering complete for client %s", client.id)

	if !s.hasClient(client.id) {
		return nil, fmt.Errorf("client %s disconnected during negotiation", client.id)
	}
	logger.Info("WebRTC", "Client %s connected", client.id)

	// Get the complete local description (with ICE candidates)
	localDesc := peerConn.LocalDescription()
	if localDesc == nil {
		s.RemoveClient(client.id)
		return nil, fmt.Errorf("no local description available")
	}

	answerJSON, err := json.Marshal(localDesc)
	if err != nil {
		s.RemoveClient(client.id)
		return nil, fmt.Errorf("failed to marshal answer: %w", err)
	}

	return answerJSON, nil
}

// addClient registers client and starts its sender, enforcing the limit.
func (s *Server) addClient(client *Client) error {
	s.clientsMu.Lock()
	if len(s.clients) >= s.maxClients {
		s.clientsMu.Unlock()
		return fmt.Errorf("%w (%d)", ErrMaxClients, s.maxClients)
	}
	s.clients[client.id] = client
	s.clientsMu.Unlock()

	if s.metrics != nil {
		s.metrics.EventClients.Add(1)
	}
	go s.sendEvents(client)
	return nil
}

func (s *Server) hasClient(id string) bool {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	_, ok := s.clients[id]
	return ok
}

// Broadcast queues msg for every connected client without blocking.
func (s *Server) Broadcast(msg []byte) {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	for _, client := range s.clients {
		select {
		case client.eventChan <- msg:
		default:
			client.eventsDropped.Add(1)
		}
	}
}

// sendEvents drains a client's queue onto its data channel.
func (s *Server) sendEvents(client *Client) {
	for {
		select {
		case <-client.closeChan:
			return

		case msg := <-client.eventChan:
			client.mu.Lock()
			dc := client.channel
			client.mu.Unlock()

			if dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
				client.eventsDropped.Add(1)
				continue
			}
			if err := dc.Send(msg); err != nil {
				logger.Warn("WebRTC", "Error sending event to client %s: %v", client.id, err)
				client.eventsDropped.Add(1)
				continue
			}
			client.eventsSent.Add(1)
		}
	}
}

// RemoveClient removes a client by ID
func (s *Server) RemoveClient(clientID string) {
	s.clientsMu.Lock()
	client, exists := s.clients[clientID]
	if exists {
		delete(s.clients, clientID)
	}
	s.clientsMu.Unlock()

	if !exists {
		return
	}

	close(client.closeChan)
	if s.metrics != nil {
		s.metrics.EventClients.Add(-1)
	}
	// Close triggers the state callback, which finds the client already gone.
	client.peerConn.Close()

	logger.Info("WebRTC", "Client %s disconnected (sent: %d, dropped: %d)",
		clientID, client.eventsSent.Load(), client.eventsDropped.Load())
}

// GetClientCount returns the number of connected clients
func (s *Server) GetClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

// GetClientStats returns stats for all clients
func (s *Server) GetClientStats() map[string]map[string]uint64 {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	stats := make(map[string]map[string]uint64)
	for id, client := range s.clients {
		stats[id] = map[string]uint64{
			"events_sent":    client.eventsSent.Load(),
			"events_dropped": client.eventsDropped.Load(),
		}
	}
	return stats
}

// Close closes all client connections
func (s *Server) Close() error {
	s.clientsMu.RLock()
	ids := make([]string, 0, len(s.clients))
	for id := range s.clients {
		ids = append(ids, id)
	}
	s.clientsMu.RUnlock()

	for _, id := range ids {
		s.RemoveClient(id)
	}
	return nil
}
