// Package yolo runs a YOLOv5 ONNX export through the OpenCV DNN module.
package yolo

import (
	"bufio"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"strings"
	"sync"

	"gocv.io/x/gocv"

	"github.com/dj-oyu/voice-detect-camera/internal/logger"
	"github.com/dj-oyu/voice-detect-camera/pkg/types"
)

//go:embed coco.names
var cocoNames string

// Options configures a Detector.
type Options struct {
	ModelPath    string
	NamesPath    string // empty uses the embedded COCO names
	InputSize    int
	MinScore     float32
	NMSThreshold float32
}

// Detector is a detect.Model backed by gocv.Net. Forward passes are
// serialised; a Net must not run concurrently.
type Detector struct {
	opts  Options
	names []string

	mu  sync.Mutex
	net gocv.Net
}

// New loads the model and class names.
func New(opts Options) (*Detector, error) {
	if opts.InputSize <= 0 {
		opts.InputSize = 640
	}
	if opts.MinScore <= 0 {
		opts.MinScore = 0.25
	}
	if opts.NMSThreshold <= 0 {
		opts.NMSThreshold = 0.45
	}

	names, err := loadNames(opts.NamesPath)
	if err != nil {
		return nil, err
	}

	net := gocv.ReadNetFromONNX(opts.ModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("yolo: could not load model %q", opts.ModelPath)
	}
	if err := net.SetPreferableBackend(gocv.NetBackendDefault); err != nil {
		net.Close()
		return nil, fmt.Errorf("yolo: set backend: %w", err)
	}
	if err := net.SetPreferableTarget(gocv.NetTargetCPU); err != nil {
		net.Close()
		return nil, fmt.Errorf("yolo: set target: %w", err)
	}

	logger.Info("YOLO", "Loaded %s (%d classes, input %dx%d)", opts.ModelPath, len(names), opts.InputSize, opts.InputSize)
	return &Detector{opts: opts, names: names, net: net}, nil
}

// Infer runs one forward pass and returns boxes in img coordinates after
// per-class non-maximum suppression.
func (d *Detector) Infer(ctx context.Context, img image.Image) ([]types.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	src, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("yolo: convert frame: %w", err)
	}
	defer src.Close()

	size := image.Pt(d.opts.InputSize, d.opts.InputSize)
	blob := gocv.BlobFromImage(src, 1.0/255.0, size, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.mu.Lock()
	d.net.SetInput(blob, "")
	out := d.net.Forward("")
	d.mu.Unlock()
	defer out.Close()

	if out.Empty() {
		return nil, errors.New("yolo: empty network output")
	}

	dims := out.Size()
	if len(dims) != 3 {
		return nil, fmt.Errorf("yolo: unexpected output shape %v", dims)
	}
	data, err := out.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("yolo: read output: %w", err)
	}

	b := img.Bounds()
	scale := scaleFactors{
		x:      float32(b.Dx()) / float32(d.opts.InputSize),
		y:      float32(b.Dy()) / float32(d.opts.InputSize),
		origin: b.Min,
		bounds: b,
	}
	cands := decodeRows(data, dims[1], dims[2], d.opts.MinScore, scale)
	if len(cands) == 0 {
		return nil, nil
	}

	keep := suppressPerClass(cands, func(boxes []image.Rectangle, scores []float32) []int {
		return gocv.NMSBoxes(boxes, scores, d.opts.MinScore, d.opts.NMSThreshold)
	})

	dets := make([]types.Detection, 0, len(keep))
	for _, idx := range keep {
		c := cands[idx]
		dets = append(dets, types.Detection{
			Label:      d.label(c.class),
			Confidence: float64(c.score),
			Box:        c.box,
		})
	}
	return dets, nil
}

// Close releases the network.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}

func (d *Detector) label(class int) string {
	if class >= 0 && class < len(d.names) {
		return d.names[class]
	}
	return fmt.Sprintf("class%d", class)
}

func loadNames(path string) ([]string, error) {
	if path == "" {
		return parseNames(strings.NewReader(cocoNames))
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("yolo: open names: %w", err)
	}
	defer f.Close()
	return parseNames(f)
}

func parseNames(r io.Reader) ([]string, error) {
	var names []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if name := strings.TrimSpace(sc.Text()); name != "" {
			names = append(names, name)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("yolo: read names: %w", err)
	}
	if len(names) == 0 {
		return nil, errors.New("yolo: no class names")
	}
	return names, nil
}
