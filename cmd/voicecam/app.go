package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	_ "net/http/pprof"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dj-oyu/voice-detect-camera/internal/capture"
	"github.com/dj-oyu/voice-detect-camera/internal/capture/opencv"
	"github.com/dj-oyu/voice-detect-camera/internal/capture/webcam"
	"github.com/dj-oyu/voice-detect-camera/internal/config"
	"github.com/dj-oyu/voice-detect-camera/internal/detect"
	"github.com/dj-oyu/voice-detect-camera/internal/detect/remote"
	"github.com/dj-oyu/voice-detect-camera/internal/detect/yolo"
	"github.com/dj-oyu/voice-detect-camera/internal/health"
	"github.com/dj-oyu/voice-detect-camera/internal/logger"
	"github.com/dj-oyu/voice-detect-camera/internal/metrics"
	"github.com/dj-oyu/voice-detect-camera/internal/pipeline"
	"github.com/dj-oyu/voice-detect-camera/internal/session"
	"github.com/dj-oyu/voice-detect-camera/internal/speech"
	"github.com/dj-oyu/voice-detect-camera/internal/webmonitor"
	"github.com/dj-oyu/voice-detect-camera/internal/webrtc"
)

// App owns every long-lived component of the server.
type App struct {
	cfg         config.Config
	metrics     *metrics.Metrics
	session     *session.Controller
	notifier    *speech.Notifier
	broadcaster *webmonitor.DetectionBroadcaster
	webrtc      *webrtc.Server
	httpServer  *http.Server

	closers []io.Closer
}

// NewApp wires the components described by cfg. Nothing is opened on the
// camera until /start is requested.
func NewApp(cfg config.Config) (*App, error) {
	m := metrics.New()
	a := &App{cfg: cfg, metrics: m}

	model, err := newModel(cfg.Detector)
	if err != nil {
		return nil, err
	}
	if c, ok := model.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}
	adapter := detect.NewAdapter(model, detect.NewRenderer(), m)

	engine, err := newEngine(cfg.Speech)
	if err != nil {
		a.closeAll()
		return nil, err
	}
	a.notifier = speech.NewNotifier(engine,
		speech.WithQueueSize(cfg.Speech.QueueSize),
		speech.WithMetrics(m),
	)

	a.session = session.New(newOpener(cfg.Camera), cfg.Camera.Device, m)

	monitor := webmonitor.NewMonitor()
	a.broadcaster = webmonitor.NewDetectionBroadcaster(monitor, m)

	pipe := pipeline.New(a.session, adapter, a.notifier, pipeline.Options{
		AllowedClasses: cfg.Pipeline.AllowedClasses,
		Threshold:      cfg.Pipeline.ConfidenceThreshold,
		DebounceWindow: cfg.Pipeline.DebounceWindow,
		AnnounceFormat: cfg.Pipeline.AnnounceFormat,
		Encoder:        pipeline.NewJPEGEncoder(cfg.Pipeline.JPEGQuality),
		Events:         a.broadcaster,
		Metrics:        m,
	})

	deps := webmonitor.Deps{
		Session:     a.session,
		Streamer:    pipe,
		Broadcaster: a.broadcaster,
		Monitor:     monitor,
		Metrics:     m,
		Health:      health.New(a.checks()...),
	}
	if cfg.WebRTC.Enabled {
		a.webrtc = webrtc.NewServer(cfg.WebRTC.STUNServers, cfg.WebRTC.MaxClients, m)
		a.broadcaster.AddListener(func(ev *webmonitor.SerializedEvent) {
			a.webrtc.Broadcast(ev.JSONData)
		})
		deps.WebRTC = a.webrtc
	}

	a.httpServer = &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           webmonitor.NewServer(webmonitor.DefaultConfig(), deps).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return a, nil
}

func newModel(cfg config.DetectorConfig) (detect.Model, error) {
	switch cfg.Backend {
	case "remote":
		c, err := remote.New(cfg.RemoteURL,
			remote.WithTimeout(cfg.Timeout),
			remote.WithMinScore(cfg.MinScore),
		)
		if err != nil {
			return nil, fmt.Errorf("create remote detector: %w", err)
		}
		logger.Info("Main", "Detector: remote %s", cfg.RemoteURL)
		return c, nil
	default:
		d, err := yolo.New(yolo.Options{
			ModelPath:    cfg.ModelPath,
			NamesPath:    cfg.NamesPath,
			InputSize:    cfg.InputSize,
			MinScore:     float32(cfg.MinScore),
			NMSThreshold: float32(cfg.NMSThreshold),
		})
		if err != nil {
			return nil, fmt.Errorf("create yolo detector: %w", err)
		}
		return d, nil
	}
}

func newEngine(cfg config.SpeechConfig) (speech.Engine, error) {
	switch cfg.Engine {
	case "coqui":
		opts := []speech.CoquiOption{speech.WithLanguage(cfg.Language)}
		if cfg.Speaker != "" {
			opts = append(opts, speech.WithSpeaker(cfg.Speaker))
		}
		if cfg.Player != "" {
			opts = append(opts, speech.WithPlayer(cfg.Player, cfg.PlayerArgs...))
		}
		e, err := speech.NewCoquiEngine(cfg.CoquiURL, opts...)
		if err != nil {
			return nil, fmt.Errorf("create coqui engine: %w", err)
		}
		logger.Info("Main", "Speech: coqui %s", cfg.CoquiURL)
		return e, nil
	case "none":
		logger.Info("Main", "Speech: disabled")
		return speech.Silent, nil
	default:
		logger.Info("Main", "Speech: %s", cfg.Command)
		return speech.NewCommandEngine(cfg.Command, cfg.Args...), nil
	}
}

func newOpener(cfg config.CameraConfig) capture.Opener {
	if cfg.Backend == "webcam" {
		return webcam.Opener(webcam.Options{Width: cfg.Width, Height: cfg.Height, FPS: cfg.FPS})
	}
	return opencv.Opener(opencv.Options{Width: cfg.Width, Height: cfg.Height, FPS: cfg.FPS})
}

// checks reports the camera as not ready after a failed open.
func (a *App) checks() []health.Check {
	return []health.Check{{
		Name: "camera",
		Run: func(context.Context) error {
			if msg := a.session.Status().OpenError; msg != "" {
				return errors.New(msg)
			}
			return nil
		},
	}}
}

// Run serves until ctx is cancelled or a listener fails, then shuts down.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Main", "HTTP server listening on %s", a.cfg.Server.Addr)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if *pprofAddr != "" {
		pprofServer := &http.Server{Addr: *pprofAddr, Handler: http.DefaultServeMux, ReadHeaderTimeout: 10 * time.Second}
		g.Go(func() error {
			logger.Info("Main", "pprof listening on %s", *pprofAddr)
			if err := pprofServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("pprof server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			return pprofServer.Close()
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Main", "Shutting down...")
		return a.shutdown()
	})

	return g.Wait()
}

func (a *App) shutdown() error {
	timeout := a.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Stopping the session ends every MJPEG stream at its next read.
	a.session.Stop()
	a.broadcaster.Close()
	if a.webrtc != nil {
		a.webrtc.Close()
	}

	err := a.httpServer.Shutdown(ctx)
	if serr := a.notifier.Shutdown(ctx); serr != nil {
		logger.Warn("Main", "Speech shutdown: %v", serr)
	}
	a.closeAll()
	return err
}

func (a *App) closeAll() {
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			logger.Warn("Main", "Close: %v", err)
		}
	}
	a.closers = nil
}
