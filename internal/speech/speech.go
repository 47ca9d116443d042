// Package speech announces detected objects through a voice engine without
// blocking the caller.
//
// An [Engine] synthesises and plays one utterance and returns once playback has
// finished. A [Notifier] owns a single worker goroutine that feeds queued
// announcements to the engine in submission order, so the frame pipeline only
// ever pays for a channel send.
package speech

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/dj-oyu/voice-detect-camera/internal/logger"
	"github.com/dj-oyu/voice-detect-camera/internal/metrics"
)

// DefaultQueueSize is the number of pending announcements kept before new
// ones are dropped.
const DefaultQueueSize = 8

// Engine is a voice backend. Say blocks until text has been spoken.
// Implementations are called from a single goroutine.
type Engine interface {
	Say(ctx context.Context, text string) error
}

// EngineFunc adapts a function to Engine.
type EngineFunc func(ctx context.Context, text string) error

// Say calls f.
func (f EngineFunc) Say(ctx context.Context, text string) error { return f(ctx, text) }

// Silent is an engine that discards every utterance.
var Silent Engine = EngineFunc(func(context.Context, string) error { return nil })

// ErrClosed is reported when announcing on a closed notifier.
var ErrClosed = errors.New("speech: notifier closed")

// Option configures a Notifier.
type Option func(*Notifier)

// WithQueueSize sets the pending announcement capacity.
func WithQueueSize(n int) Option {
	return func(n2 *Notifier) {
		if n > 0 {
			n2.queueSize = n
		}
	}
}

// WithMetrics records announcement counters into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(n *Notifier) {
		n.metrics = m
	}
}

// Notifier is a fire-and-forget front for an Engine.
type Notifier struct {
	engine    Engine
	queueSize int
	metrics   *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc
	queue  chan string
	done   chan struct{}

	mu       sync.RWMutex
	closed   bool
	stopping atomic.Bool
}

// NewNotifier starts the worker goroutine driving engine.
func NewNotifier(engine Engine, opts ...Option) *Notifier {
	if engine == nil {
		engine = Silent
	}
	n := &Notifier{
		engine:    engine,
		queueSize: DefaultQueueSize,
	}
	for _, o := range opts {
		o(n)
	}
	n.ctx, n.cancel = context.WithCancel(context.Background())
	n.queue = make(chan string, n.queueSize)
	n.done = make(chan struct{})

	go n.run()
	return n
}

// Announce schedules text for speaking and returns immediately. It reports
// false when the announcement was dropped (queue full or notifier closed).
func (n *Notifier) Announce(text string) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.closed {
		return false
	}

	select {
	case n.queue <- text:
		if n.metrics != nil {
			n.metrics.Announcements.Add(1)
		}
		logger.Debug("Speech", "Queued announcement %q", text)
		return true
	default:
		if n.metrics != nil {
			n.metrics.AnnouncementsDropped.Add(1)
		}
		logger.Warn("Speech", "Speech queue full, dropping %q", text)
		return false
	}
}

// Close stops accepting announcements and waits for the utterance in
// progress to finish. Pending announcements are discarded.
func (n *Notifier) Close() error {
	return n.Shutdown(context.Background())
}

// Shutdown is Close bounded by ctx: when ctx ends first, the utterance in
// progress is cancelled.
func (n *Notifier) Shutdown(ctx context.Context) error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return ErrClosed
	}
	n.closed = true
	n.stopping.Store(true)
	close(n.queue)
	n.mu.Unlock()

	defer n.cancel()
	select {
	case <-n.done:
		return nil
	case <-ctx.Done():
		n.cancel()
		<-n.done
		return ctx.Err()
	}
}

func (n *Notifier) run() {
	defer close(n.done)

	for text := range n.queue {
		if n.stopping.Load() || n.ctx.Err() != nil {
			continue
		}
		if err := n.engine.Say(n.ctx, text); err != nil {
			if n.metrics != nil {
				n.metrics.SpeechErrors.Add(1)
			}
			if n.ctx.Err() == nil {
				logger.Warn("Speech", "Voice engine failed for %q: %v", text, err)
			}
		}
	}
}
