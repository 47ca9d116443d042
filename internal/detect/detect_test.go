package detect

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/dj-oyu/voice-detect-camera/internal/metrics"
	"github.com/dj-oyu/voice-detect-camera/pkg/types"
)

func blankFrame(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 0xff
	}
	return img
}

func staticModel(dets ...types.Detection) Model {
	return ModelFunc(func(context.Context, image.Image) ([]types.Detection, error) {
		return dets, nil
	})
}

func TestDetectAnnotatesCopy(t *testing.T) {
	frame := blankFrame(120, 90)
	// a label outside any allow-list is still drawn
	dets := []types.Detection{
		{Label: "person", Confidence: 0.9, Box: image.Rect(20, 30, 80, 80)},
		{Label: "giraffe", Confidence: 0.3, Box: image.Rect(5, 5, 40, 40)},
	}
	a := NewAdapter(staticModel(dets...), nil, nil)

	got, annotated, err := a.Detect(context.Background(), frame)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(got) != 2 || got[0].Label != "person" || got[1].Label != "giraffe" {
		t.Fatalf("detections = %+v", got)
	}
	if annotated.Bounds() != frame.Bounds() {
		t.Fatalf("annotated bounds = %v", annotated.Bounds())
	}

	// the box edge is drawn on the copy only
	edge := image.Pt(50, 80)
	if r, g, b, _ := annotated.At(edge.X, edge.Y).RGBA(); r == 0 && g == 0 && b == 0 {
		t.Fatalf("expected box stroke at %v", edge)
	}
	if c := frame.RGBAAt(edge.X, edge.Y); c != (color.RGBA{A: 0xff}) {
		t.Fatalf("input frame modified at %v: %v", edge, c)
	}
}

func TestDetectWithoutDetectionsReturnsCopy(t *testing.T) {
	frame := blankFrame(10, 10)
	a := NewAdapter(staticModel(), nil, nil)

	dets, annotated, err := a.Detect(context.Background(), frame)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(dets) != 0 {
		t.Fatalf("detections = %+v", dets)
	}
	if rgba, ok := annotated.(*image.RGBA); ok && &rgba.Pix[0] == &frame.Pix[0] {
		t.Fatalf("annotated image aliases the input frame")
	}
}

func TestDetectNilImage(t *testing.T) {
	a := NewAdapter(staticModel(), nil, nil)
	if _, _, err := a.Detect(context.Background(), nil); !errors.Is(err, ErrNoImage) {
		t.Fatalf("err = %v, want ErrNoImage", err)
	}
}

func TestDetectInferenceError(t *testing.T) {
	boom := errors.New("boom")
	m := metrics.New()
	a := NewAdapter(ModelFunc(func(context.Context, image.Image) ([]types.Detection, error) {
		return nil, boom
	}), nil, m)

	_, _, err := a.Detect(context.Background(), blankFrame(4, 4))
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped boom", err)
	}
	if m.InferenceErrors.Load() != 1 {
		t.Fatalf("inference errors = %d", m.InferenceErrors.Load())
	}
}

func TestCaptionAndColor(t *testing.T) {
	d := types.Detection{Label: "cup", Confidence: 0.876}
	if got := Caption(d); got != "cup 0.88" {
		t.Fatalf("Caption = %q", got)
	}
	if ColorFor("cup") != ColorFor("cup") {
		t.Fatalf("ColorFor is not stable")
	}
}
