// Package fitz implements the rendering engine on top of MuPDF.
package fitz

import (
	"context"
	"fmt"
	"image"
	"math"
	"sync"
	"time"

	"pdf-text-overlay/internal/domain"
	"pdf-text-overlay/internal/geometry"
	apperrors "pdf-text-overlay/pkg/errors"

	"github.com/gen2brain/go-fitz"
)

// pointsPerInch is the PDF user-space unit density; rendering at
// 72*scale DPI produces a raster scale times the native size.
const pointsPerInch = 72.0

// PageSizer reports the page box in points. The engine measures pages
// with the same box the output builder stamps against, so both sides share
// one coordinate space.
type PageSizer interface {
	PageSize(src []byte, index int) (geometry.Size, error)
}

// Engine implements domain.RenderingEngine.
type Engine struct {
	fetcher     domain.SourceFetcher
	sizer       PageSizer
	logger      domain.Logger
	pageTimeout time.Duration
}

// NewEngine creates a rendering engine reading sources through fetcher.
// sizer may be nil, in which case page sizes come from MuPDF bounds.
func NewEngine(fetcher domain.SourceFetcher, sizer PageSizer, logger domain.Logger) *Engine {
	return &Engine{
		fetcher:     fetcher,
		sizer:       sizer,
		logger:      logger,
		pageTimeout: 90 * time.Second,
	}
}

// LoadDocument fetches and opens the document at ref.
func (e *Engine) LoadDocument(ctx context.Context, ref domain.SourceRef) (domain.DocumentHandle, error) {
	data, err := e.fetcher.Fetch(ctx, ref)
	if err != nil {
		return nil, apperrors.NewLoadError("failed to fetch source document", err)
	}

	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, apperrors.NewLoadError("failed to open PDF", err)
	}

	if doc.NumPage() < 1 {
		doc.Close()
		return nil, apperrors.NewLoadError("document has no pages", nil)
	}

	e.logger.Debug("Document opened", "source", ref, "pages", doc.NumPage())
	return &document{doc: doc, src: data, engine: e}, nil
}

type document struct {
	mu     sync.Mutex
	doc    *fitz.Document
	src    []byte
	engine *Engine
	closed bool
}

func (d *document) NumPages() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0
	}
	return d.doc.NumPage()
}

func (d *document) Page(index int) (domain.PageHandle, error) {
	if n := d.NumPages(); index < 0 || index >= n {
		return nil, apperrors.NewRenderError(fmt.Sprintf("page %d out of range", index), nil)
	}
	return &page{doc: d, index: index}, nil
}

func (d *document) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.doc.Close()
}

type page struct {
	doc   *document
	index int
}

// NativeSize returns the page MediaBox in points.
func (p *page) NativeSize() (geometry.Size, error) {
	p.doc.mu.Lock()
	defer p.doc.mu.Unlock()
	if p.doc.closed {
		return geometry.Size{}, apperrors.NewRenderError("document closed", nil)
	}

	if sizer := p.doc.engine.sizer; sizer != nil {
		size, err := sizer.PageSize(p.doc.src, p.index)
		if err == nil {
			return size, nil
		}
		p.doc.engine.logger.Warn("Page box unreadable, using rendered bounds", "page", p.index, "error", err)
	}

	// Bound rounds to whole points.
	bounds, err := p.doc.doc.Bound(p.index)
	if err != nil {
		return geometry.Size{}, apperrors.NewRenderError("failed to measure page", err)
	}
	size := geometry.Size{Width: float64(bounds.Dx()), Height: float64(bounds.Dy())}
	if !size.Valid() {
		return geometry.Size{}, apperrors.NewRenderError("page has empty bounds", nil)
	}
	return size, nil
}

type renderResult struct {
	img image.Image
	err error
}

// RenderToSurface rasterizes the page at scale and paints it on surface.
func (p *page) RenderToSurface(ctx context.Context, scale float64, surface domain.Surface) (geometry.Size, error) {
	if scale <= 0 {
		return geometry.Size{}, apperrors.NewRenderError(fmt.Sprintf("invalid render scale %v", scale), nil)
	}
	native, err := p.NativeSize()
	if err != nil {
		return geometry.Size{}, err
	}

	resultCh := make(chan renderResult, 1)
	go func() {
		p.doc.mu.Lock()
		defer p.doc.mu.Unlock()
		if p.doc.closed {
			resultCh <- renderResult{err: fmt.Errorf("document closed")}
			return
		}
		img, err := p.doc.doc.ImageDPI(p.index, pointsPerInch*scale)
		resultCh <- renderResult{img: img, err: err}
	}()

	timer := time.NewTimer(p.doc.engine.pageTimeout)
	defer timer.Stop()

	select {
	case res := <-resultCh:
		if res.err != nil {
			return geometry.Size{}, apperrors.NewRenderError("failed to render page", res.err)
		}
		surface.Paint(res.img)
		b := res.img.Bounds()
		raster := geometry.Size{Width: float64(b.Dx()), Height: float64(b.Dy())}
		if want := native.Scale(scale); math.Abs(raster.Width-want.Width) > 1 || math.Abs(raster.Height-want.Height) > 1 {
			// CropBox or /Rotate differs from the MediaBox.
			p.doc.engine.logger.Warn("Rendered page does not match media box",
				"page", p.index, "raster_width", raster.Width, "raster_height", raster.Height,
				"expected_width", want.Width, "expected_height", want.Height)
		}
		return raster, nil
	case <-ctx.Done():
		return geometry.Size{}, ctx.Err()
	case <-timer.C:
		p.doc.engine.logger.Warn("Page render timeout", "page", p.index, "timeout_sec", int(p.doc.engine.pageTimeout.Seconds()))
		return geometry.Size{}, apperrors.NewRenderError(fmt.Sprintf("render timed out after %v", p.doc.engine.pageTimeout), nil)
	}
}
