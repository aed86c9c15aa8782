package processing

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"golang.org/x/image/colornames"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/menta2k/object-counter/pkg/types"
)

// Palette lists the named colors boxes cycle through, by detection index
var Palette = []string{
	"red", "green", "blue", "yellow", "orange", "pink", "purple", "brown", "gray", "turquoise",
	"cyan", "magenta", "lime", "navy", "maroon", "teal", "olive", "coral", "violet", "gold",
}

// RenderOptions controls how detections are drawn
type RenderOptions struct {
	StrokeWidth int
	LabelOffset image.Point
	Face        font.Face
}

// DefaultRenderOptions returns a 4px stroke with labels 8,6 px inside the top-left corner
func DefaultRenderOptions() RenderOptions {
	return RenderOptions{
		StrokeWidth: 4,
		LabelOffset: image.Pt(8, 6),
		Face:        basicfont.Face7x13,
	}
}

// ColorFor returns the palette entry for the i-th detection
func ColorFor(i int) (string, color.NRGBA) {
	name := Palette[i%len(Palette)]
	c := colornames.Map[name]
	return name, color.NRGBA{R: c.R, G: c.G, B: c.B, A: 255}
}

// DrawDetections draws a labelled rectangle per detection on a copy of img
func (p *Processor) DrawDetections(img image.Image, dets []types.Detection) (*image.NRGBA, []types.RenderedBox) {
	out := imaging.Clone(img)
	w := out.Bounds().Dx()
	h := out.Bounds().Dy()

	stroke := p.render.StrokeWidth
	if stroke < 1 {
		stroke = 1
	}
	face := p.render.Face
	if face == nil {
		face = basicfont.Face7x13
	}

	boxes := make([]types.RenderedBox, 0, len(dets))
	for i, d := range dets {
		name, c := ColorFor(i)
		rect := boxToPixels(d.Box, w, h)

		drawRect(out, rect, c, stroke)
		drawLabel(out, face, d.Label, rect.Min.Add(p.render.LabelOffset), c)

		boxes = append(boxes, types.RenderedBox{Label: d.Label, Color: name, Rect: rect})
	}
	return out, boxes
}

// boxToPixels converts a normalized box into pixel corners, truncating toward zero
func boxToPixels(box types.Box, w, h int) image.Rectangle {
	return image.Rectangle{
		Min: image.Pt(int(box.X1*float64(w)), int(box.Y1*float64(h))),
		Max: image.Pt(int(box.X2*float64(w)), int(box.Y2*float64(h))),
	}
}

// drawRect outlines r inward with both corners inclusive
func drawRect(img *image.NRGBA, r image.Rectangle, c color.NRGBA, stroke int) {
	r = r.Canon()
	x0, y0, x1, y1 := r.Min.X, r.Min.Y, r.Max.X, r.Max.Y
	for s := 0; s < stroke; s++ {
		drawHLine(img, y0+s, x0, x1+1, c)
		drawHLine(img, y1-s, x0, x1+1, c)
		drawVLine(img, x0+s, y0, y1+1, c)
		drawVLine(img, x1-s, y0, y1+1, c)
	}
}

// drawLabel draws text with its top-left corner at pt
func drawLabel(img *image.NRGBA, face font.Face, text string, pt image.Point, c color.NRGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(pt.X, pt.Y+face.Metrics().Ascent.Ceil()),
	}
	d.DrawString(text)
}

func drawHLine(img *image.NRGBA, y, x0, x1 int, c color.NRGBA) {
	if y < 0 || y >= img.Bounds().Dy() {
		return
	}
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	if x1 <= 0 || x0 >= img.Bounds().Dx() {
		return
	}
	if x0 < 0 {
		x0 = 0
	}
	if x1 > img.Bounds().Dx() {
		x1 = img.Bounds().Dx()
	}
	i := y*img.Stride + x0*4
	for x := x0; x < x1; x++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += 4
	}
}

func drawVLine(img *image.NRGBA, x, y0, y1 int, c color.NRGBA) {
	if x < 0 || x >= img.Bounds().Dx() {
		return
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	if y1 <= 0 || y0 >= img.Bounds().Dy() {
		return
	}
	if y0 < 0 {
		y0 = 0
	}
	if y1 > img.Bounds().Dy() {
		y1 = img.Bounds().Dy()
	}
	i := y0*img.Stride + x*4
	for y := y0; y < y1; y++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += img.Stride
	}
}
