package fpdf

import (
	"bytes"
	"context"
	"image/color"
	"io"
	"testing"

	"pdf-text-overlay/internal/domain"

	"codeberg.org/go-pdf/fpdf"
	"codeberg.org/go-pdf/fpdf/contrib/gofpdi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})         {}
func (nopLogger) Error(string, error, ...interface{}) {}
func (nopLogger) Debug(string, ...interface{})        {}
func (nopLogger) Warn(string, ...interface{})         {}
func (l nopLogger) With(...interface{}) domain.Logger { return l }

func sourcePDF(t *testing.T, pages int) []byte {
	t.Helper()
	src := fpdf.New("P", "pt", "A4", "")
	src.SetFont("Arial", "", 12)
	for i := 0; i < pages; i++ {
		src.AddPage()
		src.Text(20, 20, "Source page")
	}
	var buf bytes.Buffer
	require.NoError(t, src.Output(&buf))
	return buf.Bytes()
}

func pageSizes(t *testing.T, data []byte) map[int]map[string]map[string]float64 {
	t.Helper()
	scratch := fpdf.New("P", "pt", "", "")
	imp := gofpdi.NewImporter()
	rs := io.ReadSeeker(bytes.NewReader(data))
	imp.ImportPageFromStream(scratch, &rs, 1, mediaBox)
	return imp.GetPageSizes()
}

func TestBuilder_StampsAndKeepsPages(t *testing.T) {
	b := NewBuilder(nopLogger{})

	doc, err := b.Load(context.Background(), sourcePDF(t, 2))
	require.NoError(t, err)

	doc.PlaceText("Your text", 40, 815.33, 16, color.Black)
	doc.PlaceText("", 100, 100, 8, color.Black)

	out, err := doc.Serialize(context.Background())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))

	sizes := pageSizes(t, out)
	require.Len(t, sizes, 2)
	assert.InDelta(t, 595.28, sizes[1][mediaBox]["w"], 0.01)
	assert.InDelta(t, 841.89, sizes[1][mediaBox]["h"], 0.01)
}

func TestBuilder_RejectsGarbage(t *testing.T) {
	b := NewBuilder(nopLogger{})

	_, err := b.Load(context.Background(), nil)
	assert.Error(t, err)

	_, err = b.Load(context.Background(), []byte("definitely not a pdf"))
	assert.Error(t, err)
}

func TestBuilder_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewBuilder(nopLogger{}).Load(ctx, sourcePDF(t, 1))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBuilder_PageSizeReadsMediaBox(t *testing.T) {
	b := NewBuilder(nopLogger{})
	src := sourcePDF(t, 2)

	size, err := b.PageSize(src, 0)
	require.NoError(t, err)
	assert.InDelta(t, 595.28, size.Width, 0.01)
	assert.InDelta(t, 841.89, size.Height, 0.01)

	second, err := b.PageSize(src, 1)
	require.NoError(t, err)
	assert.Equal(t, size, second)

	_, err = b.PageSize(src, 5)
	assert.Error(t, err)

	_, err = b.PageSize([]byte("not a pdf"), 0)
	assert.Error(t, err)

	_, err = b.PageSize(nil, 0)
	assert.Error(t, err)
}
