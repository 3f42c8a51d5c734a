package domain

import (
	"context"
	"image"
	"image/color"
	"strings"

	"pdf-text-overlay/internal/geometry"
)

// UploadScheme prefixes references to documents held in memory.
const UploadScheme = "upload:"

// SourceRef locates the source PDF: an http(s) URL, a local path, or an
// uploaded document ("upload:<id>").
type SourceRef string

// IsUpload reports whether r names an in-memory upload.
func (r SourceRef) IsUpload() bool {
	return strings.HasPrefix(strings.TrimSpace(string(r)), UploadScheme)
}

// SourceFetcher returns the bytes of a source document.
type SourceFetcher interface {
	Fetch(ctx context.Context, ref SourceRef) ([]byte, error)
}

// RenderingEngine opens documents for measuring and rasterizing.
type RenderingEngine interface {
	LoadDocument(ctx context.Context, ref SourceRef) (DocumentHandle, error)
}

// DocumentHandle is an open document. Close releases engine resources.
type DocumentHandle interface {
	NumPages() int
	Page(index int) (PageHandle, error)
	Close() error
}

// PageHandle is one page of an open document.
type PageHandle interface {
	// NativeSize returns the unscaled page size in points.
	NativeSize() (geometry.Size, error)
	// RenderToSurface paints the page at the given scale and returns the
	// raster size, which is NativeSize multiplied by scale.
	RenderToSurface(ctx context.Context, scale float64, surface Surface) (geometry.Size, error)
}

// Surface receives a rendered raster.
type Surface interface {
	Paint(img image.Image)
}

// OutputBuilder loads a source document for text placement.
type OutputBuilder interface {
	Load(ctx context.Context, src []byte) (OutputDocument, error)
}

// OutputDocument is a document being stamped. Coordinates are native points
// with the origin at the bottom-left of the first page; y is the baseline.
type OutputDocument interface {
	PlaceText(text string, x, y, size float64, c color.Color)
	Serialize(ctx context.Context) ([]byte, error)
}

// DownloadSink receives finished output.
type DownloadSink interface {
	Save(ctx context.Context, data []byte, filename string) error
}
