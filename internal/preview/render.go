package preview

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"iter"
	"math"
	"sync"

	"pdf-text-overlay/internal/annotation"
	"pdf-text-overlay/internal/geometry"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
)

var (
	textColor      = color.Black
	selectionColor = color.RGBA{R: 0x25, G: 0x63, B: 0xeb, A: 0xff}
	backdropColor  = color.White
)

// Canvas is a domain.Surface that keeps the last painted raster.
type Canvas struct {
	mu  sync.RWMutex
	img image.Image
}

// Paint stores img.
func (c *Canvas) Paint(img image.Image) {
	c.mu.Lock()
	c.img = img
	c.mu.Unlock()
}

// Image returns the painted raster, if any.
func (c *Canvas) Image() (image.Image, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.img, c.img != nil
}

// Scene is everything one preview frame shows.
type Scene struct {
	Raster      image.Image
	RasterSize  geometry.Size
	Zoom        float64
	Annotations iter.Seq[annotation.Annotation]
	Selected    annotation.ID
}

// Renderer draws scenes.
type Renderer struct {
	measurer *Measurer
}

// NewRenderer creates a renderer sharing m's faces.
func NewRenderer(m *Measurer) *Renderer {
	return &Renderer{measurer: m}
}

// Render draws the raster scaled by zoom with every annotation on top. Text
// size and position are scaled by zoom at draw time only.
func (r *Renderer) Render(s Scene) (*image.RGBA, error) {
	w := int(math.Round(s.RasterSize.Width * s.Zoom))
	h := int(math.Round(s.RasterSize.Height * s.Zoom))
	if w <= 0 || h <= 0 {
		return nil, geometry.ErrFrameUnknown
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(backdropColor), image.Point{}, draw.Src)
	if s.Raster != nil {
		draw.CatmullRom.Scale(dst, dst.Bounds(), s.Raster, s.Raster.Bounds(), draw.Over, nil)
	}

	if s.Annotations == nil {
		return dst, nil
	}
	for a := range s.Annotations {
		if err := r.drawAnnotation(dst, a, s.Zoom, a.ID == s.Selected); err != nil {
			return nil, err
		}
	}
	return dst, nil
}

func (r *Renderer) drawAnnotation(dst *image.RGBA, a annotation.Annotation, zoom float64, selected bool) error {
	size := a.FontSize * zoom
	ext, err := r.measurer.Measure(a.Text, size)
	if err != nil {
		return err
	}

	origin := a.Position.Scale(zoom)
	if a.Text != "" {
		r.measurer.mu.Lock()
		face, err := r.measurer.face(size)
		if err != nil {
			r.measurer.mu.Unlock()
			return err
		}
		d := &font.Drawer{
			Dst:  dst,
			Src:  image.NewUniform(textColor),
			Face: face,
			Dot: fixed.Point26_6{
				X: fixed.Int26_6(origin.X * 64),
				Y: fixed.Int26_6((origin.Y + ext.Ascent) * 64),
			},
		}
		d.DrawString(a.Text)
		r.measurer.mu.Unlock()
	}

	if selected {
		pad := HitPadding * zoom
		box := Box{
			Min: origin.Sub(geometry.Point{X: pad, Y: pad}),
			Max: origin.Add(geometry.Point{X: ext.Width + pad, Y: ext.Height() + pad}),
		}
		strokeRect(dst, box.rect(), selectionColor, max(1, int(math.Round(zoom))))
	}
	return nil
}

func strokeRect(dst *image.RGBA, rc image.Rectangle, c color.Color, width int) {
	src := image.NewUniform(c)
	edges := []image.Rectangle{
		image.Rect(rc.Min.X, rc.Min.Y, rc.Max.X, rc.Min.Y+width),
		image.Rect(rc.Min.X, rc.Max.Y-width, rc.Max.X, rc.Max.Y),
		image.Rect(rc.Min.X, rc.Min.Y, rc.Min.X+width, rc.Max.Y),
		image.Rect(rc.Max.X-width, rc.Min.Y, rc.Max.X, rc.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(dst, e.Intersect(dst.Bounds()), src, image.Point{}, draw.Src)
	}
}

// EncodePNG renders s and encodes it as PNG.
func (r *Renderer) EncodePNG(s Scene) ([]byte, error) {
	img, err := r.Render(s)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
