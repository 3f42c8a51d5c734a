package geometry

import (
	"fmt"
	"slices"
)

// ZoomStops are the zoom percents a user can pick.
var ZoomStops = []int{50, 75, 100, 125, 150, 200}

// ZoomFromPercent converts a zoom percent to a factor. Only values in
// ZoomStops are accepted.
func ZoomFromPercent(percent int) (float64, error) {
	if !slices.Contains(ZoomStops, percent) {
		return 0, fmt.Errorf("%w: %d%% is not one of %v", ErrInvalidZoom, percent, ZoomStops)
	}
	return float64(percent) / 100, nil
}

// Viewport holds what a session knows about its page frame and the current
// zoom. The frame stays unknown until the page has been measured and rendered.
type Viewport struct {
	frame       Frame
	known       bool
	zoomPercent int
}

// NewViewport returns a viewport with an unknown frame at the given zoom.
func NewViewport(zoomPercent int) (*Viewport, error) {
	if _, err := ZoomFromPercent(zoomPercent); err != nil {
		return nil, err
	}
	return &Viewport{zoomPercent: zoomPercent}, nil
}

// SetFrame records the native and raster sizes.
func (v *Viewport) SetFrame(f Frame) error {
	if !f.Valid() {
		return ErrFrameUnknown
	}
	v.frame = f
	v.known = true
	return nil
}

// ResetFrame forgets the frame, e.g. while a new document is loading.
func (v *Viewport) ResetFrame() {
	v.frame = Frame{}
	v.known = false
}

// Frame returns the frame and whether it is known.
func (v *Viewport) Frame() (Frame, bool) {
	return v.frame, v.known
}

// SetZoom changes the zoom percent.
func (v *Viewport) SetZoom(percent int) error {
	if _, err := ZoomFromPercent(percent); err != nil {
		return err
	}
	v.zoomPercent = percent
	return nil
}

// ZoomPercent returns the current zoom percent.
func (v *Viewport) ZoomPercent() int { return v.zoomPercent }

// Zoom returns the current zoom factor.
func (v *Viewport) Zoom() float64 { return float64(v.zoomPercent) / 100 }

// Transform returns the current transform, or false while the frame is unknown.
func (v *Viewport) Transform() (Transform, bool) {
	if !v.known {
		return Transform{}, false
	}
	t, err := NewTransform(v.frame, v.Zoom())
	if err != nil {
		return Transform{}, false
	}
	return t, true
}
