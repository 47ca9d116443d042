package detect

import (
	"fmt"
	"hash/fnv"
	"image"
	"image/color"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/dj-oyu/voice-detect-camera/pkg/types"
)

var regular *truetype.Font

func init() {
	var err error
	regular, err = truetype.Parse(goregular.TTF)
	if err != nil {
		panic(err)
	}
}

// palette cycles per label so the same class keeps its colour across frames.
var palette = []color.RGBA{
	{R: 0, G: 255, B: 204, A: 255},
	{R: 255, G: 56, B: 56, A: 255},
	{R: 255, G: 157, B: 151, A: 255},
	{R: 255, G: 178, B: 29, A: 255},
	{R: 72, G: 249, B: 10, A: 255},
	{R: 26, G: 147, B: 52, A: 255},
	{R: 0, G: 194, B: 255, A: 255},
	{R: 132, G: 56, B: 255, A: 255},
	{R: 255, G: 55, B: 199, A: 255},
}

// Renderer draws detection boxes and captions.
type Renderer struct {
	LineWidth float64
	FontSize  float64
}

// NewRenderer returns a renderer with a 2px box and 14pt captions.
func NewRenderer() *Renderer {
	return &Renderer{LineWidth: 2, FontSize: 14}
}

// Caption is the text drawn above a detection box.
func Caption(d types.Detection) string {
	return fmt.Sprintf("%s %.2f", d.Label, d.Confidence)
}

// ColorFor returns the box colour used for label.
func ColorFor(label string) color.RGBA {
	h := fnv.New32a()
	h.Write([]byte(label))
	return palette[h.Sum32()%uint32(len(palette))]
}

// Render returns a copy of img with every detection drawn on it.
func (r *Renderer) Render(img image.Image, dets []types.Detection) image.Image {
	dc := gg.NewContextForImage(img)
	if len(dets) == 0 {
		return dc.Image()
	}
	// faces cache glyphs and are not safe to share between streams
	dc.SetFontFace(truetype.NewFace(regular, &truetype.Options{Size: r.FontSize}))

	for _, d := range dets {
		c := ColorFor(d.Label)
		box := d.Box.Sub(img.Bounds().Min)
		r.drawBox(dc, box, c)
		r.drawCaption(dc, box, Caption(d), c)
	}
	return dc.Image()
}

func (r *Renderer) drawBox(dc *gg.Context, b image.Rectangle, c color.Color) {
	dc.SetColor(c)
	dc.SetLineWidth(r.LineWidth)
	dc.DrawRectangle(float64(b.Min.X), float64(b.Min.Y), float64(b.Dx()), float64(b.Dy()))
	dc.Stroke()
}

// drawCaption fills a label tab above the box, or inside it when the box
// touches the top edge.
func (r *Renderer) drawCaption(dc *gg.Context, b image.Rectangle, text string, c color.Color) {
	w, h := dc.MeasureString(text)
	pad := 2.0
	x := float64(b.Min.X)
	y := float64(b.Min.Y) - h - 2*pad
	if y < 0 {
		y = float64(b.Min.Y)
	}

	dc.SetColor(c)
	dc.DrawRectangle(x, y, w+2*pad, h+2*pad)
	dc.Fill()

	dc.SetColor(color.White)
	dc.DrawStringAnchored(text, x+pad, y+pad, 0, 1)
}
