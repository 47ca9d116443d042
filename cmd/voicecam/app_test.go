package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dj-oyu/voice-detect-camera/internal/config"
	"github.com/dj-oyu/voice-detect-camera/internal/speech"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Detector.Backend = "remote"
	cfg.Detector.RemoteURL = "http://127.0.0.1:1/detect"
	cfg.Speech.Engine = "none"
	cfg.WebRTC.Enabled = false
	return cfg
}

func TestNewAppServesControlPage(t *testing.T) {
	app, err := NewApp(testConfig())
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	defer app.shutdown()

	srv := httptest.NewServer(app.httpServer.Handler)
	defer srv.Close()

	for path, want := range map[string]string{
		"/":        `id="video"`,
		"/stop":    "Camera Stopped",
		"/healthz": `"ok"`,
	} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), want) {
			t.Fatalf("GET %s: %d %q", path, resp.StatusCode, body)
		}
	}

	resp, err := http.Post(srv.URL+"/api/webrtc/offer", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("POST offer: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("offer with webrtc disabled: %d", resp.StatusCode)
	}
}

func TestNewEngine(t *testing.T) {
	cfg := config.Default().Speech

	cfg.Engine = "none"
	e, err := newEngine(cfg)
	if err != nil || e == nil {
		t.Fatalf("none engine: %v", err)
	}
	if err := e.Say(context.Background(), "hello"); err != nil {
		t.Fatalf("silent engine: %v", err)
	}

	cfg.Engine = "espeak"
	e, _ = newEngine(cfg)
	if c, ok := e.(*speech.CommandEngine); !ok || c.Command != "espeak" {
		t.Fatalf("espeak engine = %#v", e)
	}

	cfg.Engine = "coqui"
	cfg.CoquiURL = ""
	if _, err := newEngine(cfg); err == nil {
		t.Fatalf("coqui without url should fail")
	}
}

func TestApplyFlags(t *testing.T) {
	oldAddr, oldDevice, oldThreshold := *httpAddr, *device, *threshold
	t.Cleanup(func() { *httpAddr, *device, *threshold = oldAddr, oldDevice, oldThreshold })

	*httpAddr = ":9000"
	*device = 2
	*threshold = 0.8

	cfg := config.Default()
	applyFlags(&cfg)
	if cfg.Server.Addr != ":9000" || cfg.Camera.Device != 2 || cfg.Pipeline.ConfidenceThreshold != 0.8 {
		t.Fatalf("overrides not applied: %+v %+v %+v", cfg.Server, cfg.Camera, cfg.Pipeline)
	}
	if cfg.Speech.Engine != "espeak" {
		t.Fatalf("unset flag changed speech engine to %q", cfg.Speech.Engine)
	}
}
