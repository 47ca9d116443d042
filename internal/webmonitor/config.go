package webmonitor

import "time"

// Config holds the HTTP layer timings.
type Config struct {
	StatusInterval time.Duration // period of /api/status/stream updates
	SSEKeepalive   time.Duration // idle period before an SSE keepalive comment
	MaxOfferBytes  int64
}

// DefaultConfig returns the defaults used by cmd/voicecam.
func DefaultConfig() Config {
	return Config{
		StatusInterval: 2 * time.Second,
		SSEKeepalive:   30 * time.Second,
		MaxOfferBytes:  64 << 10,
	}
}
