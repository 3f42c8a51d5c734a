package preview

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"pdf-text-overlay/internal/annotation"
	"pdf-text-overlay/internal/geometry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMeasurer(t *testing.T) *Measurer {
	t.Helper()
	m, err := NewMeasurer()
	require.NoError(t, err)
	return m
}

func TestMeasure_ScalesWithSize(t *testing.T) {
	m := newMeasurer(t)

	small, err := m.Measure("Your text", 12)
	require.NoError(t, err)
	large, err := m.Measure("Your text", 24)
	require.NoError(t, err)

	assert.Greater(t, small.Width, 12.0)
	assert.InDelta(t, small.Width*2, large.Width, 2)
	assert.Greater(t, large.Height(), small.Height())
}

func TestMeasure_EmptyTextIsGrabbable(t *testing.T) {
	ext, err := newMeasurer(t).Measure("", 24)
	require.NoError(t, err)
	assert.Equal(t, 24.0, ext.Width)
	assert.Greater(t, ext.Height(), 0.0)
}

func TestHitTest_TopmostWins(t *testing.T) {
	m := newMeasurer(t)
	s := annotation.NewStore(annotation.DefaultOptions())
	first := s.Create(geometry.Point{X: 160, Y: 116})  // top-left (100,100)
	second := s.Create(geometry.Point{X: 170, Y: 121}) // top-left (110,105), overlaps
	far := s.Create(geometry.Point{X: 560, Y: 516})    // top-left (500,500)

	id, ok := m.HitTest(s.All(), geometry.Point{X: 112, Y: 110})
	require.True(t, ok)
	assert.Equal(t, second, id)

	id, ok = m.HitTest(s.All(), geometry.Point{X: 101, Y: 101})
	require.True(t, ok)
	assert.Equal(t, first, id)

	id, ok = m.HitTest(s.All(), geometry.Point{X: 505, Y: 510})
	require.True(t, ok)
	assert.Equal(t, far, id)

	_, ok = m.HitTest(s.All(), geometry.Point{X: 20, Y: 700})
	assert.False(t, ok)
}

func TestBounds_Padding(t *testing.T) {
	m := newMeasurer(t)
	box, err := m.Bounds(annotation.Annotation{Position: geometry.Point{X: 50, Y: 60}, FontSize: 24})
	require.NoError(t, err)
	assert.Equal(t, geometry.Point{X: 46, Y: 56}, box.Min)
	assert.True(t, box.Contains(geometry.Point{X: 47, Y: 57}))
	assert.False(t, box.Contains(geometry.Point{X: 45, Y: 57}))
}

func solid(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestRender_ZoomAndOverlay(t *testing.T) {
	m := newMeasurer(t)
	r := NewRenderer(m)

	s := annotation.NewStore(annotation.DefaultOptions())
	id := s.Create(geometry.Point{X: 80, Y: 36}) // top-left (20,20)

	var canvas Canvas
	canvas.Paint(solid(200, 100, color.White))
	raster, ok := canvas.Image()
	require.True(t, ok)

	img, err := r.Render(Scene{
		Raster:      raster,
		RasterSize:  geometry.Size{Width: 200, Height: 100},
		Zoom:        1.5,
		Annotations: s.All(),
		Selected:    id,
	})
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 300, 150), img.Bounds())

	// Selection ring sits HitPadding*zoom outside the scaled origin.
	ring := img.RGBAAt(30-6, 40)
	assert.Equal(t, selectionColor, ring)

	// Some text pixels are dark.
	dark := false
	for y := 30; y < 30+36 && !dark; y++ {
		for x := 30; x < 120 && !dark; x++ {
			if c := img.RGBAAt(x, y); c.R < 0x80 && c.G < 0x80 && c.B < 0x80 {
				dark = true
			}
		}
	}
	assert.True(t, dark, "annotation text drawn")
}

func TestRender_UnknownFrame(t *testing.T) {
	_, err := NewRenderer(newMeasurer(t)).Render(Scene{Zoom: 1})
	assert.ErrorIs(t, err, geometry.ErrFrameUnknown)
}

func TestEncodePNG(t *testing.T) {
	data, err := NewRenderer(newMeasurer(t)).EncodePNG(Scene{
		RasterSize: geometry.Size{Width: 40, Height: 20},
		Zoom:       0.5,
	})
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 20, 10), img.Bounds())
}
