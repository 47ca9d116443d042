package config

import (
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := Validate(cfg); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Pipeline.ConfidenceThreshold != 0.6 {
		t.Fatalf("threshold = %v", cfg.Pipeline.ConfidenceThreshold)
	}
	if cfg.Pipeline.DebounceWindow != 4*time.Second {
		t.Fatalf("debounce window = %v", cfg.Pipeline.DebounceWindow)
	}
	if len(cfg.Pipeline.AllowedClasses) != 10 {
		t.Fatalf("allowed classes = %v", cfg.Pipeline.AllowedClasses)
	}
}

func TestLoadFromReaderOverridesDefaults(t *testing.T) {
	doc := `
server:
  addr: ":9000"
camera:
  backend: webcam
  device: 2
pipeline:
  allowed_classes: [person, dog]
  confidence_threshold: 0.75
  debounce_window: 2s
speech:
  engine: coqui
  coqui_url: http://localhost:5002
`
	cfg, err := LoadFromReader(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":9000" || cfg.Camera.Backend != "webcam" || cfg.Camera.Device != 2 {
		t.Fatalf("unexpected server/camera: %+v %+v", cfg.Server, cfg.Camera)
	}
	if got := strings.Join(cfg.Pipeline.AllowedClasses, ","); got != "person,dog" {
		t.Fatalf("allowed classes = %q", got)
	}
	if cfg.Pipeline.DebounceWindow != 2*time.Second {
		t.Fatalf("debounce window = %v", cfg.Pipeline.DebounceWindow)
	}
	// untouched keys keep their defaults
	if cfg.Pipeline.JPEGQuality != 80 {
		t.Fatalf("jpeg quality = %d", cfg.Pipeline.JPEGQuality)
	}
}

func TestLoadFromReaderEmptyDocument(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != Default().Server.Addr {
		t.Fatalf("addr = %q", cfg.Server.Addr)
	}
}

func TestLoadFromReaderRejectsUnknownKeys(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader("pipeline:\n  threshold: 0.5\n"))
	if err == nil {
		t.Fatalf("expected error for unknown key")
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.Camera.Backend = "v4l"
	cfg.Pipeline.ConfidenceThreshold = 1.5
	cfg.Speech.Engine = "pyttsx3"

	err := Validate(cfg)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, needle := range []string{"camera.backend", "confidence_threshold", "speech.engine"} {
		if !strings.Contains(err.Error(), needle) {
			t.Fatalf("error %q missing %q", err, needle)
		}
	}
}
