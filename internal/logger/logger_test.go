package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"debug":   DEBUG,
		"INFO":    INFO,
		"warning": WARN,
		"error":   ERROR,
		"none":    SILENT,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil {
			t.Fatalf("ParseLevel(%q) error: %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseLevel(%q) = %s, want %s", in, got, want)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatalf("ParseLevel(loud) expected error")
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(WARN, &buf, ColorNever, nil)

	l.Info("Pipeline", "hidden %d", 1)
	l.Warn("Pipeline", "shown %d", 2)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info message should be filtered: %q", out)
	}
	if !strings.Contains(out, "[WARN] [Pipeline] shown 2") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestColorModes(t *testing.T) {
	var buf bytes.Buffer
	New(DEBUG, &buf, ColorAlways, nil).Error("", "boom")
	if !strings.Contains(buf.String(), levelColors[ERROR]) {
		t.Fatalf("expected color escape in %q", buf.String())
	}

	buf.Reset()
	New(DEBUG, &buf, ColorAuto, nil).Error("", "boom")
	if strings.Contains(buf.String(), "\033[") {
		t.Fatalf("auto mode on a buffer should not color: %q", buf.String())
	}

	if _, err := ParseColorMode("sometimes"); err == nil {
		t.Fatalf("ParseColorMode(sometimes) expected error")
	}
}

func TestRotatingFileIsPlain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voicecam.log")
	var console bytes.Buffer
	l := New(INFO, &console, ColorAlways, &FileOptions{Path: path, MaxSizeMB: 1})

	l.Info("Speech", "person detected")
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "[INFO] [Speech] person detected") {
		t.Fatalf("file output = %q", data)
	}
	if strings.Contains(string(data), "\033[") {
		t.Fatalf("file output must not contain color escapes: %q", data)
	}
}
