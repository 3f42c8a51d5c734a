package fitz

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"testing"

	"pdf-text-overlay/internal/domain"
	"pdf-text-overlay/internal/geometry"
	pdfout "pdf-text-overlay/internal/infra/fpdf"

	"codeberg.org/go-pdf/fpdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})         {}
func (nopLogger) Error(string, error, ...interface{}) {}
func (nopLogger) Debug(string, ...interface{})        {}
func (nopLogger) Warn(string, ...interface{})         {}
func (l nopLogger) With(...interface{}) domain.Logger { return l }

type memFetcher map[domain.SourceRef][]byte

func (f memFetcher) Fetch(_ context.Context, ref domain.SourceRef) ([]byte, error) {
	data, ok := f[ref]
	if !ok {
		return nil, fmt.Errorf("no source %q", ref)
	}
	return data, nil
}

type recordingSurface struct {
	img image.Image
}

func (s *recordingSurface) Paint(img image.Image) { s.img = img }

type failingSizer struct{}

func (failingSizer) PageSize([]byte, int) (geometry.Size, error) {
	return geometry.Size{}, fmt.Errorf("no box")
}

func a4PDF(t *testing.T) []byte {
	t.Helper()
	src := fpdf.New("P", "pt", "A4", "")
	src.SetFont("Arial", "", 12)
	src.AddPage()
	src.Text(20, 20, "Source page")
	var buf bytes.Buffer
	require.NoError(t, src.Output(&buf))
	return buf.Bytes()
}

func openPage(t *testing.T, engine *Engine) domain.PageHandle {
	t.Helper()
	doc, err := engine.LoadDocument(context.Background(), "a4.pdf")
	require.NoError(t, err)
	t.Cleanup(func() { doc.Close() })
	require.Equal(t, 1, doc.NumPages())

	page, err := doc.Page(0)
	require.NoError(t, err)
	return page
}

func TestEngine_A4PageSizes(t *testing.T) {
	fetcher := memFetcher{"a4.pdf": a4PDF(t)}
	engine := NewEngine(fetcher, pdfout.NewBuilder(nopLogger{}), nopLogger{})
	page := openPage(t, engine)

	native, err := page.NativeSize()
	require.NoError(t, err)
	assert.InDelta(t, 595.28, native.Width, 0.01)
	assert.InDelta(t, 841.89, native.Height, 0.01)

	surface := &recordingSurface{}
	raster, err := page.RenderToSurface(context.Background(), 1.5, surface)
	require.NoError(t, err)
	require.NotNil(t, surface.img)

	bounds := surface.img.Bounds()
	assert.Equal(t, float64(bounds.Dx()), raster.Width)
	assert.Equal(t, float64(bounds.Dy()), raster.Height)
	assert.InDelta(t, native.Width*1.5, raster.Width, 1)
	assert.InDelta(t, native.Height*1.5, raster.Height, 1)
}

func TestEngine_FallsBackToRenderedBounds(t *testing.T) {
	fetcher := memFetcher{"a4.pdf": a4PDF(t)}
	engine := NewEngine(fetcher, failingSizer{}, nopLogger{})
	page := openPage(t, engine)

	native, err := page.NativeSize()
	require.NoError(t, err)
	assert.InDelta(t, 595.28, native.Width, 1)
	assert.InDelta(t, 841.89, native.Height, 1)
}

func TestEngine_Errors(t *testing.T) {
	fetcher := memFetcher{"a4.pdf": a4PDF(t), "junk.pdf": []byte("not a pdf")}
	engine := NewEngine(fetcher, nil, nopLogger{})

	_, err := engine.LoadDocument(context.Background(), "missing.pdf")
	assert.Error(t, err)

	_, err = engine.LoadDocument(context.Background(), "junk.pdf")
	assert.Error(t, err)

	doc, err := engine.LoadDocument(context.Background(), "a4.pdf")
	require.NoError(t, err)

	_, err = doc.Page(1)
	assert.Error(t, err)

	page, err := doc.Page(0)
	require.NoError(t, err)

	_, err = page.RenderToSurface(context.Background(), 0, &recordingSurface{})
	assert.Error(t, err)

	require.NoError(t, doc.Close())
	require.NoError(t, doc.Close())
	assert.Equal(t, 0, doc.NumPages())

	_, err = page.NativeSize()
	assert.Error(t, err)
}
