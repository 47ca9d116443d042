package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/go-audio/wav"

	"github.com/dj-oyu/voice-detect-camera/internal/logger"
)

// CommandEngine speaks by running a local synthesiser such as espeak with the
// text as its final argument. The process plays the audio itself, so Say
// returns once it exits.
type CommandEngine struct {
	Command string
	Args    []string
}

// NewCommandEngine returns an engine that runs command with args followed by
// the text to speak.
func NewCommandEngine(command string, args ...string) *CommandEngine {
	return &CommandEngine{Command: command, Args: args}
}

// Say runs the synthesiser and waits for it to finish.
func (e *CommandEngine) Say(ctx context.Context, text string) error {
	if e.Command == "" {
		return errors.New("speech: command engine has no command")
	}
	args := append(append([]string(nil), e.Args...), text)
	cmd := exec.CommandContext(ctx, e.Command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("speech: %s: %w: %s", e.Command, err, msg)
		}
		return fmt.Errorf("speech: %s: %w", e.Command, err)
	}
	return nil
}

const (
	coquiTTSEndpoint = "/api/tts"
	coquiTimeout     = 30 * time.Second
)

// CoquiEngine synthesises through a Coqui TTS server (GET /api/tts) and plays
// the returned WAV with a local player command.
type CoquiEngine struct {
	serverURL  string
	speaker    string
	language   string
	player     string
	playerArgs []string
	httpClient *http.Client
}

// CoquiOption configures a CoquiEngine.
type CoquiOption func(*CoquiEngine)

// WithSpeaker selects a speaker id for multi-speaker models.
func WithSpeaker(id string) CoquiOption {
	return func(e *CoquiEngine) { e.speaker = id }
}

// WithLanguage sets the language id sent to the server.
func WithLanguage(lang string) CoquiOption {
	return func(e *CoquiEngine) { e.language = lang }
}

// WithPlayer sets the command used to play the synthesised file. The file path
// is appended to args.
func WithPlayer(command string, args ...string) CoquiOption {
	return func(e *CoquiEngine) {
		e.player = command
		e.playerArgs = args
	}
}

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) CoquiOption {
	return func(e *CoquiEngine) { e.httpClient = c }
}

// NewCoquiEngine targets the server at serverURL, e.g. "http://localhost:5002".
func NewCoquiEngine(serverURL string, opts ...CoquiOption) (*CoquiEngine, error) {
	if serverURL == "" {
		return nil, errors.New("speech: coqui server url must not be empty")
	}
	e := &CoquiEngine{
		serverURL:  strings.TrimRight(serverURL, "/"),
		player:     "aplay",
		httpClient: &http.Client{Timeout: coquiTimeout},
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Say fetches the utterance from the server and plays it.
func (e *CoquiEngine) Say(ctx context.Context, text string) error {
	audio, err := e.synthesize(ctx, text)
	if err != nil {
		return err
	}

	dur, err := validateWAV(audio)
	if err != nil {
		return err
	}
	logger.Debug("Speech", "Coqui returned %d bytes (%v) for %q", len(audio), dur, text)

	return e.play(ctx, audio)
}

func (e *CoquiEngine) synthesize(ctx context.Context, text string) ([]byte, error) {
	q := url.Values{}
	q.Set("text", text)
	if e.speaker != "" {
		q.Set("speaker_id", e.speaker)
	}
	if e.language != "" {
		q.Set("language_id", e.language)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.serverURL+coquiTTSEndpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("speech: coqui request: %w", err)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("speech: coqui request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("speech: coqui read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("speech: coqui server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

// validateWAV checks that data is a decodable WAV file and returns its length.
func validateWAV(data []byte) (time.Duration, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return 0, errors.New("speech: coqui response is not a valid WAV file")
	}
	dur, err := dec.Duration()
	if err != nil {
		return 0, fmt.Errorf("speech: coqui wav duration: %w", err)
	}
	return dur, nil
}

func (e *CoquiEngine) play(ctx context.Context, audio []byte) error {
	f, err := os.CreateTemp("", "voicecam-*.wav")
	if err != nil {
		return fmt.Errorf("speech: temp file: %w", err)
	}
	defer os.Remove(f.Name())

	if _, err := f.Write(audio); err != nil {
		f.Close()
		return fmt.Errorf("speech: write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("speech: close temp file: %w", err)
	}

	player := NewCommandEngine(e.player, e.playerArgs...)
	return player.Say(ctx, f.Name())
}
