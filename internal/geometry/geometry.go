// Package geometry maps points between the three coordinate spaces of an
// annotated page.
//
// Native space is the PDF page in points with the origin at the bottom-left.
// Raster space is the fixed-resolution image produced by rendering the page at
// the session's render scale, origin top-left. Screen space is raster space
// multiplied by the user's zoom factor. Annotation positions are always stored
// in raster space.
package geometry

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrFrameUnknown is returned when native or raster sizes are not yet known.
	ErrFrameUnknown = errors.New("page frame not known")
	// ErrInvalidZoom is returned for a zoom factor that is not strictly positive
	// or a percent outside the zoom stops.
	ErrInvalidZoom = errors.New("invalid zoom")
)

// Point is a 2D coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Add returns p+q.
func (p Point) Add(q Point) Point { return Point{X: p.X + q.X, Y: p.Y + q.Y} }

// Sub returns p-q.
func (p Point) Sub(q Point) Point { return Point{X: p.X - q.X, Y: p.Y - q.Y} }

// Scale returns p multiplied by k on both axes.
func (p Point) Scale(k float64) Point { return Point{X: p.X * k, Y: p.Y * k} }

// Size is a width/height pair.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Valid reports whether both dimensions are strictly positive and finite.
func (s Size) Valid() bool {
	return s.Width > 0 && s.Height > 0 && !math.IsInf(s.Width, 0) && !math.IsInf(s.Height, 0)
}

// Scale returns s multiplied by k.
func (s Size) Scale(k float64) Size { return Size{Width: s.Width * k, Height: s.Height * k} }

// Frame pairs the native page size with the size of its raster.
type Frame struct {
	Native Size `json:"native"`
	Raster Size `json:"raster"`
}

// Valid reports whether both sizes are known.
func (f Frame) Valid() bool { return f.Native.Valid() && f.Raster.Valid() }

// NativePlacement is a text placement in native space: the baseline origin and
// the font size in points.
type NativePlacement struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	FontSize float64 `json:"font_size"`
}

// Transform converts between native, raster and screen space for one frame
// and zoom factor. The zero value is not usable; build one with NewTransform.
type Transform struct {
	Frame
	Zoom float64
}

// NewTransform validates the triad and returns a Transform.
func NewTransform(frame Frame, zoom float64) (Transform, error) {
	if !frame.Valid() {
		return Transform{}, ErrFrameUnknown
	}
	if !(zoom > 0) || math.IsInf(zoom, 0) {
		return Transform{}, fmt.Errorf("%w: %v", ErrInvalidZoom, zoom)
	}
	return Transform{Frame: frame, Zoom: zoom}, nil
}

// ScreenToRaster converts a point relative to the raster's on-screen origin
// into raster space.
func (t Transform) ScreenToRaster(p Point) Point {
	return Point{X: p.X / t.Zoom, Y: p.Y / t.Zoom}
}

// RasterToScreen converts a raster point into screen space.
func (t Transform) RasterToScreen(p Point) Point {
	return p.Scale(t.Zoom)
}

// scales returns the native-per-raster ratio for each axis.
func (t Transform) scales() (float64, float64) {
	return t.Native.Width / t.Raster.Width, t.Native.Height / t.Raster.Height
}

// RasterToNative projects the top-left of a text run at p with the given
// raster font size into native space.
//
// The Y axis flips, and the font size (in native units) is subtracted once as
// an approximation of the distance from the top of the glyphs to the baseline.
// It is not a measured font metric: unusually tall glyphs may land slightly off.
func (t Transform) RasterToNative(p Point, fontSize float64) NativePlacement {
	sx, sy := t.scales()
	size := fontSize * sy
	return NativePlacement{
		X:        p.X * sx,
		Y:        t.Native.Height - p.Y*sy - size,
		FontSize: size,
	}
}

// NativeToRaster is the inverse of RasterToNative.
func (t Transform) NativeToRaster(np NativePlacement) (Point, float64) {
	sx, sy := t.scales()
	fontSize := np.FontSize / sy
	y := (t.Native.Height - np.Y - np.FontSize) / sy
	return Point{X: np.X / sx, Y: y}, fontSize
}
