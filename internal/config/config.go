// Package config holds the runtime configuration of the voice detection camera.
//
// Values start from [Default], are optionally replaced by a YAML file, and are
// finally overridden by command-line flags in main.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dj-oyu/voice-detect-camera/pkg/types"
)

// Config is the root configuration document.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Camera   CameraConfig   `yaml:"camera"`
	Detector DetectorConfig `yaml:"detector"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Speech   SpeechConfig   `yaml:"speech"`
	WebRTC   WebRTCConfig   `yaml:"webrtc"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// CameraConfig selects and shapes the capture device.
type CameraConfig struct {
	Backend string  `yaml:"backend"` // opencv | webcam
	Device  int     `yaml:"device"`
	Width   int     `yaml:"width"`
	Height  int     `yaml:"height"`
	FPS     float64 `yaml:"fps"`
}

// DetectorConfig selects the detection model.
type DetectorConfig struct {
	Backend      string        `yaml:"backend"` // yolo | remote
	ModelPath    string        `yaml:"model_path"`
	NamesPath    string        `yaml:"names_path"`
	InputSize    int           `yaml:"input_size"`
	MinScore     float64       `yaml:"min_score"`
	NMSThreshold float64       `yaml:"nms_threshold"`
	RemoteURL    string        `yaml:"remote_url"`
	Timeout      time.Duration `yaml:"timeout"`
}

// PipelineConfig holds the filter, debounce and encode settings.
type PipelineConfig struct {
	AllowedClasses      []string      `yaml:"allowed_classes"`
	ConfidenceThreshold float64       `yaml:"confidence_threshold"`
	DebounceWindow      time.Duration `yaml:"debounce_window"`
	AnnounceFormat      string        `yaml:"announce_format"`
	JPEGQuality         int           `yaml:"jpeg_quality"`
}

// SpeechConfig selects the voice engine.
type SpeechConfig struct {
	Engine     string   `yaml:"engine"` // espeak | coqui | none
	Command    string   `yaml:"command"`
	Args       []string `yaml:"args"`
	CoquiURL   string   `yaml:"coqui_url"`
	Speaker    string   `yaml:"speaker"`
	Language   string   `yaml:"language"`
	Player     string   `yaml:"player"`
	PlayerArgs []string `yaml:"player_args"`
	QueueSize  int      `yaml:"queue_size"`
}

// WebRTCConfig configures the event data-channel server.
type WebRTCConfig struct {
	Enabled     bool     `yaml:"enabled"`
	STUNServers []string `yaml:"stun_servers"`
	MaxClients  int      `yaml:"max_clients"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level      string `yaml:"level"`
	Color      string `yaml:"color"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Default returns the built-in configuration.
func Default() Config {
	allowed := make([]string, len(types.DefaultAllowedClasses))
	copy(allowed, types.DefaultAllowedClasses)

	return Config{
		Server: ServerConfig{
			Addr:            ":5000",
			ShutdownTimeout: 5 * time.Second,
		},
		Camera: CameraConfig{
			Backend: "opencv",
			Device:  0,
			Width:   640,
			Height:  480,
			FPS:     30,
		},
		Detector: DetectorConfig{
			Backend:      "yolo",
			ModelPath:    "yolov5s.onnx",
			InputSize:    640,
			MinScore:     0.25,
			NMSThreshold: 0.45,
			Timeout:      10 * time.Second,
		},
		Pipeline: PipelineConfig{
			AllowedClasses:      allowed,
			ConfidenceThreshold: 0.6,
			DebounceWindow:      4 * time.Second,
			AnnounceFormat:      "%s detected",
			JPEGQuality:         80,
		},
		Speech: SpeechConfig{
			Engine:    "espeak",
			Command:   "espeak",
			Language:  "en",
			Player:    "aplay",
			QueueSize: 8,
		},
		WebRTC: WebRTCConfig{
			Enabled:     true,
			STUNServers: []string{"stun:stun.l.google.com:19302"},
			MaxClients:  10,
		},
		Log: LogConfig{
			Level:      "info",
			Color:      "auto",
			MaxSizeMB:  50,
			MaxBackups: 3,
		},
	}
}

// Load reads the YAML file at path on top of [Default] and validates it.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return Config{}, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes YAML from r on top of [Default]. Unknown keys are
// rejected. An empty document yields the defaults.
func LoadFromReader(r io.Reader) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all failures found.
func Validate(cfg Config) error {
	var errs []error

	if cfg.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr must not be empty"))
	}

	switch cfg.Camera.Backend {
	case "opencv", "webcam":
	default:
		errs = append(errs, fmt.Errorf("camera.backend %q is invalid; valid values: opencv, webcam", cfg.Camera.Backend))
	}
	if cfg.Camera.Device < 0 {
		errs = append(errs, fmt.Errorf("camera.device must be >= 0, got %d", cfg.Camera.Device))
	}

	switch cfg.Detector.Backend {
	case "yolo":
		if cfg.Detector.ModelPath == "" {
			errs = append(errs, errors.New("detector.model_path is required for the yolo backend"))
		}
	case "remote":
		if cfg.Detector.RemoteURL == "" {
			errs = append(errs, errors.New("detector.remote_url is required for the remote backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("detector.backend %q is invalid; valid values: yolo, remote", cfg.Detector.Backend))
	}

	if t := cfg.Pipeline.ConfidenceThreshold; t <= 0 || t > 1 {
		errs = append(errs, fmt.Errorf("pipeline.confidence_threshold must be in (0,1], got %v", t))
	}
	if len(cfg.Pipeline.AllowedClasses) == 0 {
		errs = append(errs, errors.New("pipeline.allowed_classes must not be empty"))
	}
	if cfg.Pipeline.DebounceWindow < 0 {
		errs = append(errs, fmt.Errorf("pipeline.debounce_window must not be negative, got %v", cfg.Pipeline.DebounceWindow))
	}
	if q := cfg.Pipeline.JPEGQuality; q < 1 || q > 100 {
		errs = append(errs, fmt.Errorf("pipeline.jpeg_quality must be in [1,100], got %d", q))
	}

	switch cfg.Speech.Engine {
	case "espeak":
		if cfg.Speech.Command == "" {
			errs = append(errs, errors.New("speech.command is required for the espeak engine"))
		}
	case "coqui":
		if cfg.Speech.CoquiURL == "" {
			errs = append(errs, errors.New("speech.coqui_url is required for the coqui engine"))
		}
	case "none":
	default:
		errs = append(errs, fmt.Errorf("speech.engine %q is invalid; valid values: espeak, coqui, none", cfg.Speech.Engine))
	}

	if cfg.WebRTC.MaxClients < 0 {
		errs = append(errs, fmt.Errorf("webrtc.max_clients must not be negative, got %d", cfg.WebRTC.MaxClients))
	}

	return errors.Join(errs...)
}
