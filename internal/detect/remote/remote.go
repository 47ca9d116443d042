// Package remote sends frames to an HTTP inference server and converts its
// JSON response into detections.
//
// The server receives a JPEG body on POST and answers with
//
//	{"detections": [{"class": "person", "class_id": 0, "confidence": 0.91, "bbox": [x1, y1, x2, y2]}],
//	 "inference_time_ms": 12.5}
//
// where bbox is in the pixel space of the uploaded image.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/image/draw"

	"github.com/dj-oyu/voice-detect-camera/internal/logger"
	"github.com/dj-oyu/voice-detect-camera/pkg/types"
)

const (
	defaultTimeout  = 10 * time.Second
	defaultMaxSide  = 640
	uploadQuality   = 85
	maxResponseSize = 4 << 20
)

type detectionJSON struct {
	Class      string    `json:"class"`
	ClassID    int       `json:"class_id"`
	Confidence float64   `json:"confidence"`
	BBox       []float64 `json:"bbox"`
}

type responseJSON struct {
	Detections      []detectionJSON `json:"detections"`
	InferenceTimeMs float64         `json:"inference_time_ms"`
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithMaxSide bounds the longer side of uploaded frames. Larger frames are
// downscaled and the returned boxes scaled back.
func WithMaxSide(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxSide = n
		}
	}
}

// WithMinScore is forwarded to the server as the conf query parameter.
func WithMinScore(s float64) Option {
	return func(c *Client) { c.minScore = s }
}

// Client is a detect.Model backed by a remote server.
type Client struct {
	endpoint   string
	maxSide    int
	minScore   float64
	httpClient *http.Client
}

// New returns a client posting frames to endpoint.
func New(endpoint string, opts ...Option) (*Client, error) {
	if endpoint == "" {
		return nil, errors.New("remote: endpoint must not be empty")
	}
	if _, err := url.Parse(endpoint); err != nil {
		return nil, fmt.Errorf("remote: endpoint: %w", err)
	}
	c := &Client{
		endpoint:   strings.TrimRight(endpoint, "/"),
		maxSide:    defaultMaxSide,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Infer uploads img and returns the server's detections in img coordinates.
func (c *Client) Infer(ctx context.Context, img image.Image) ([]types.Detection, error) {
	upload, scale := downscale(img, c.maxSide)

	var body bytes.Buffer
	if err := jpeg.Encode(&body, upload, &jpeg.Options{Quality: uploadQuality}); err != nil {
		return nil, fmt.Errorf("remote: encode upload: %w", err)
	}

	target := c.endpoint
	if c.minScore > 0 {
		target += "?conf=" + strconv.FormatFloat(c.minScore, 'f', -1, 64)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, &body)
	if err != nil {
		return nil, fmt.Errorf("remote: request: %w", err)
	}
	req.Header.Set("Content-Type", "image/jpeg")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("remote: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("remote: server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out responseJSON
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&out); err != nil {
		return nil, fmt.Errorf("remote: decode response: %w", err)
	}
	logger.Debug("Remote", "%d detections in %.1fms", len(out.Detections), out.InferenceTimeMs)

	return convert(out.Detections, scale, img.Bounds()), nil
}

// downscale returns img resized so its longer side is at most maxSide, and
// the factor to multiply result coordinates by.
func downscale(img image.Image, maxSide int) (image.Image, float64) {
	b := img.Bounds()
	long := max(b.Dx(), b.Dy())
	if long <= maxSide {
		return img, 1
	}

	f := float64(maxSide) / float64(long)
	w := max(1, int(float64(b.Dx())*f))
	h := max(1, int(float64(b.Dy())*f))
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst, float64(long) / float64(max(w, h))
}

func convert(in []detectionJSON, scale float64, bounds image.Rectangle) []types.Detection {
	out := make([]types.Detection, 0, len(in))
	for _, d := range in {
		if len(d.BBox) < 4 {
			continue
		}
		box := image.Rect(
			int(d.BBox[0]*scale), int(d.BBox[1]*scale),
			int(d.BBox[2]*scale), int(d.BBox[3]*scale),
		).Add(bounds.Min).Intersect(bounds)
		out = append(out, types.Detection{
			Label:      d.Class,
			Confidence: d.Confidence,
			Box:        box,
		})
	}
	return out
}
