// Package fpdf stamps text onto an existing PDF by importing its pages as
// templates into a new fpdf document.
package fpdf

import (
	"bytes"
	"context"
	"fmt"
	"image/color"
	"io"

	"pdf-text-overlay/internal/domain"
	"pdf-text-overlay/internal/geometry"

	"codeberg.org/go-pdf/fpdf"
	"codeberg.org/go-pdf/fpdf/contrib/gofpdi"
)

const (
	mediaBox = "/MediaBox"
	fontName = "Helvetica"
)

// Builder implements domain.OutputBuilder.
type Builder struct {
	logger domain.Logger
}

// NewBuilder creates a new output builder.
func NewBuilder(logger domain.Logger) *Builder {
	return &Builder{logger: logger}
}

// Load imports the first page of src and prepares it for text placement.
// The remaining pages are copied through unchanged on Serialize.
func (b *Builder) Load(ctx context.Context, src []byte) (out domain.OutputDocument, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(src) == 0 {
		return nil, fmt.Errorf("empty source document")
	}

	// gofpdi panics on malformed input.
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("failed to import source document: %v", r)
		}
	}()

	pdf := fpdf.New("P", "pt", "", "")
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)

	doc := &document{
		pdf:      pdf,
		importer: gofpdi.NewImporter(),
		rs:       io.ReadSeeker(bytes.NewReader(src)),
		logger:   b.logger,
	}

	tpl := doc.importer.ImportPageFromStream(pdf, &doc.rs, 1, mediaBox)
	doc.sizes = doc.importer.GetPageSizes()
	w, h := doc.pageSize(1)
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("source document has no usable first page")
	}

	pdf.AddPageFormat("P", fpdf.SizeType{Wd: w, Ht: h})
	doc.importer.UseImportedTemplate(pdf, tpl, 0, 0, w, h)
	doc.height = h
	doc.tr = pdf.UnicodeTranslatorFromDescriptor("")

	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("failed to import first page: %w", err)
	}

	b.logger.Debug("Source document imported", "pages", len(doc.sizes), "width", w, "height", h)
	return doc, nil
}

// PageSize returns the MediaBox of the page at index (0-based) in points.
// It is the same box Load stamps against, so page sizes measured here and
// output coordinates agree.
func (b *Builder) PageSize(src []byte, index int) (size geometry.Size, err error) {
	if len(src) == 0 {
		return geometry.Size{}, fmt.Errorf("empty source document")
	}
	defer func() {
		if r := recover(); r != nil {
			size, err = geometry.Size{}, fmt.Errorf("failed to read page box: %v", r)
		}
	}()

	scratch := fpdf.New("P", "pt", "", "")
	importer := gofpdi.NewImporter()
	rs := io.ReadSeeker(bytes.NewReader(src))
	importer.ImportPageFromStream(scratch, &rs, 1, mediaBox)

	box, ok := importer.GetPageSizes()[index+1][mediaBox]
	if !ok {
		return geometry.Size{}, fmt.Errorf("page %d has no media box", index)
	}
	size = geometry.Size{Width: box["w"], Height: box["h"]}
	if !size.Valid() {
		return geometry.Size{}, fmt.Errorf("page %d has an empty media box", index)
	}
	return size, nil
}

type document struct {
	pdf      *fpdf.Fpdf
	importer *gofpdi.Importer
	rs       io.ReadSeeker
	sizes    map[int]map[string]map[string]float64
	height   float64
	tr       func(string) string
	logger   domain.Logger
}

func (d *document) pageSize(page int) (float64, float64) {
	box, ok := d.sizes[page][mediaBox]
	if !ok {
		return 0, 0
	}
	return box["w"], box["h"]
}

// PlaceText draws text on the first page. y is measured from the bottom of
// the page and marks the baseline.
func (d *document) PlaceText(text string, x, y, size float64, c color.Color) {
	r, g, b, _ := c.RGBA()
	d.pdf.SetFont(fontName, "", size)
	d.pdf.SetTextColor(int(r>>8), int(g>>8), int(b>>8))
	d.pdf.Text(x, d.height-y, d.tr(text))
}

// Serialize appends the untouched pages and writes the document.
func (d *document) Serialize(ctx context.Context) (data []byte, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	defer func() {
		if r := recover(); r != nil {
			data, err = nil, fmt.Errorf("failed to write output document: %v", r)
		}
	}()

	for page := 2; page <= len(d.sizes); page++ {
		w, h := d.pageSize(page)
		if w <= 0 || h <= 0 {
			d.logger.Warn("Skipping page without media box", "page", page)
			continue
		}
		d.pdf.AddPageFormat("P", fpdf.SizeType{Wd: w, Ht: h})
		tpl := d.importer.ImportPageFromStream(d.pdf, &d.rs, page, mediaBox)
		d.importer.UseImportedTemplate(d.pdf, tpl, 0, 0, w, h)
	}

	var buf bytes.Buffer
	if err := d.pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
