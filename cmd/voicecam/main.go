package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dj-oyu/voice-detect-camera/internal/config"
	"github.com/dj-oyu/voice-detect-camera/internal/logger"
)

var (
	configPath = flag.String("config", "", "YAML config file (optional)")
	httpAddr   = flag.String("http", "", "HTTP server address (overrides config)")
	device     = flag.Int("device", -1, "Camera device index (overrides config)")
	camera     = flag.String("camera", "", "Capture backend: opencv or webcam (overrides config)")
	detector   = flag.String("detector", "", "Detector backend: yolo or remote (overrides config)")
	model      = flag.String("model", "", "YOLO ONNX model path (overrides config)")
	remoteURL  = flag.String("remote-url", "", "Remote detector endpoint (overrides config)")
	voice      = flag.String("speech", "", "Speech engine: espeak, coqui or none (overrides config)")
	threshold  = flag.Float64("threshold", 0, "Confidence threshold (overrides config)")
	pprofAddr  = flag.String("pprof", "", "pprof server address (disabled when empty)")
	logLevel   = flag.String("log-level", "", "Log level (debug, info, warn, error, silent)")
	logColor   = flag.String("log-color", "", "Colored log output (auto, always, never)")
	logFile    = flag.String("log-file", "", "Also write logs to this rotated file")
)

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}
	color, err := logger.ParseColorMode(cfg.Log.Color)
	if err != nil {
		log.Fatalf("Invalid log color: %v", err)
	}
	var fileOpts *logger.FileOptions
	if cfg.Log.File != "" {
		fileOpts = &logger.FileOptions{
			Path:       cfg.Log.File,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAgeDays: cfg.Log.MaxAgeDays,
		}
	}
	logger.Init(level, os.Stderr, color, fileOpts)
	defer logger.Close()

	logger.Info("Main", "Voice detection camera starting...")
	logger.Info("Main", "Log level: %s", level)

	app, err := NewApp(cfg)
	if err != nil {
		logger.Error("Main", "Failed to create app: %v", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx); err != nil {
		logger.Error("Main", "Server error: %v", err)
		os.Exit(1)
	}
	logger.Info("Main", "Server stopped")
}

// loadConfig reads the optional config file and applies flag overrides.
func loadConfig() (config.Config, error) {
	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}

	applyFlags(&cfg)
	if err := config.Validate(cfg); err != nil {
		return config.Config{}, fmt.Errorf("after flag overrides: %w", err)
	}
	return cfg, nil
}

func applyFlags(cfg *config.Config) {
	if *httpAddr != "" {
		cfg.Server.Addr = *httpAddr
	}
	if *device >= 0 {
		cfg.Camera.Device = *device
	}
	if *camera != "" {
		cfg.Camera.Backend = *camera
	}
	if *detector != "" {
		cfg.Detector.Backend = *detector
	}
	if *model != "" {
		cfg.Detector.ModelPath = *model
	}
	if *remoteURL != "" {
		cfg.Detector.RemoteURL = *remoteURL
	}
	if *voice != "" {
		cfg.Speech.Engine = *voice
	}
	if *threshold > 0 {
		cfg.Pipeline.ConfidenceThreshold = *threshold
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *logColor != "" {
		cfg.Log.Color = *logColor
	}
	if *logFile != "" {
		cfg.Log.File = *logFile
	}
}
