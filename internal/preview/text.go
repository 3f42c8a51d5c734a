// Package preview draws the zoomed page with its annotation overlay and
// measures annotation text for hit testing.
package preview

import (
	"fmt"
	"image"
	"iter"
	"math"
	"sync"

	"pdf-text-overlay/internal/annotation"
	"pdf-text-overlay/internal/geometry"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// HitPadding widens every annotation box on each side, in raster pixels.
const HitPadding = 4.0

// Box is an axis-aligned rectangle in raster space.
type Box struct {
	Min geometry.Point `json:"min"`
	Max geometry.Point `json:"max"`
}

// Contains reports whether p lies inside the box, edges included.
func (b Box) Contains(p geometry.Point) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X && p.Y >= b.Min.Y && p.Y <= b.Max.Y
}

// Scale maps the box into screen space.
func (b Box) Scale(k float64) Box {
	return Box{Min: b.Min.Scale(k), Max: b.Max.Scale(k)}
}

func (b Box) rect() image.Rectangle {
	return image.Rect(
		int(math.Floor(b.Min.X)), int(math.Floor(b.Min.Y)),
		int(math.Ceil(b.Max.X)), int(math.Ceil(b.Max.Y)),
	)
}

// Measurer lays out annotation text with the Go Regular face. Faces are
// cached per size; opentype faces are not safe for concurrent use, so all
// access goes through mu.
type Measurer struct {
	mu    sync.Mutex
	font  *opentype.Font
	faces map[int]font.Face
}

// NewMeasurer parses the embedded font.
func NewMeasurer() (*Measurer, error) {
	f, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse Go Regular: %w", err)
	}
	return &Measurer{font: f, faces: make(map[int]font.Face)}, nil
}

// face returns the face for size. mu must be held.
func (m *Measurer) face(size float64) (font.Face, error) {
	key := int(math.Round(size * 4))
	if f, ok := m.faces[key]; ok {
		return f, nil
	}
	f, err := opentype.NewFace(m.font, &opentype.FaceOptions{
		Size:    float64(key) / 4,
		DPI:     72,
		Hinting: font.HintingNone,
	})
	if err != nil {
		return nil, err
	}
	m.faces[key] = f
	return f, nil
}

// Extent is the laid-out size of a text run.
type Extent struct {
	Width   float64
	Ascent  float64
	Descent float64
}

// Height is the line height of the run.
func (e Extent) Height() float64 { return e.Ascent + e.Descent }

// Measure returns the extent of text at size. Empty text measures as one
// em wide so an empty annotation can still be grabbed.
func (m *Measurer) Measure(text string, size float64) (Extent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, err := m.face(size)
	if err != nil {
		return Extent{}, err
	}
	metrics := f.Metrics()
	ext := Extent{
		Width:   fixedToFloat(font.MeasureString(f, text)),
		Ascent:  fixedToFloat(metrics.Ascent),
		Descent: fixedToFloat(metrics.Descent),
	}
	if ext.Width < size {
		ext.Width = size
	}
	return ext, nil
}

// Bounds returns the padded raster-space box of a.
func (m *Measurer) Bounds(a annotation.Annotation) (Box, error) {
	ext, err := m.Measure(a.Text, a.FontSize)
	if err != nil {
		return Box{}, err
	}
	return Box{
		Min: a.Position.Sub(geometry.Point{X: HitPadding, Y: HitPadding}),
		Max: a.Position.Add(geometry.Point{X: ext.Width + HitPadding, Y: ext.Height() + HitPadding}),
	}, nil
}

// HitTest returns the topmost annotation whose box contains the raster point.
// Later annotations are drawn over earlier ones.
func (m *Measurer) HitTest(anns iter.Seq[annotation.Annotation], p geometry.Point) (annotation.ID, bool) {
	var (
		hit   annotation.ID
		found bool
	)
	for a := range anns {
		box, err := m.Bounds(a)
		if err != nil {
			continue
		}
		if box.Contains(p) {
			hit, found = a.ID, true
		}
	}
	return hit, found
}

func fixedToFloat(v fixed.Int26_6) float64 {
	return float64(v) / 64
}
