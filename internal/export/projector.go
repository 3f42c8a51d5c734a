// Package export projects stored annotations into native page space and
// stamps them onto a fresh copy of the source document.
package export

import (
	"context"
	"image/color"
	"iter"
	"strings"
	"time"

	"pdf-text-overlay/internal/annotation"
	"pdf-text-overlay/internal/domain"
	"pdf-text-overlay/internal/geometry"
	apperrors "pdf-text-overlay/pkg/errors"

	"github.com/google/uuid"
)

// TargetPage is the only page annotations are placed on.
const TargetPage = 0

// Placement is one annotation projected into native space.
type Placement struct {
	AnnotationID annotation.ID            `json:"annotation_id"`
	Text         string                   `json:"text"`
	Native       geometry.NativePlacement `json:"native"`
}

// Snapshot is everything an export needs, captured while the session is
// locked so the slow part can run without it.
type Snapshot struct {
	Source     domain.SourceRef
	Frame      geometry.Frame
	FrameKnown bool
	Placements []Placement
}

// Project converts the annotations on page into native placements, in
// insertion order.
func Project(frame geometry.Frame, anns iter.Seq[annotation.Annotation], page int) ([]Placement, error) {
	tr, err := geometry.NewTransform(frame, 1)
	if err != nil {
		return nil, err
	}
	var out []Placement
	for a := range anns {
		if a.PageIndex != page {
			continue
		}
		out = append(out, Placement{
			AnnotationID: a.ID,
			Text:         a.Text,
			Native:       tr.RasterToNative(a.Position, a.FontSize),
		})
	}
	return out, nil
}

// Capture builds a snapshot. Placements are only computed when the frame is
// known.
func Capture(src domain.SourceRef, frame geometry.Frame, known bool, anns iter.Seq[annotation.Annotation]) Snapshot {
	snap := Snapshot{Source: src, Frame: frame, FrameKnown: known && frame.Valid()}
	if !snap.FrameKnown {
		return snap
	}
	placements, err := Project(frame, anns, TargetPage)
	if err != nil {
		snap.FrameKnown = false
		return snap
	}
	snap.Placements = placements
	return snap
}

// Result is a finished output document. Filename is the download name;
// ObjectName is unique per export and keys the archived copy in sinks.
type Result struct {
	Data       []byte
	Filename   string
	ObjectName string
	Placements int
}

// Projector drives the output builder.
type Projector struct {
	fetcher domain.SourceFetcher
	builder domain.OutputBuilder
	logger  domain.Logger

	textColor      color.Color
	filenamePrefix string
	now            func() time.Time
	suffix         func() string
}

// NewProjector creates a projector. Text is drawn in black.
func NewProjector(fetcher domain.SourceFetcher, builder domain.OutputBuilder, filenamePrefix string, logger domain.Logger) *Projector {
	return &Projector{
		fetcher:        fetcher,
		builder:        builder,
		logger:         logger,
		textColor:      color.Black,
		filenamePrefix: filenamePrefix,
		now:            time.Now,
		suffix:         shortID,
	}
}

func shortID() string {
	return uuid.NewString()[:8]
}

// Export stamps the snapshot's placements onto the source document. When the
// frame is unknown it does nothing and returns a nil result. Any collaborator
// failure is returned as an export error and no output is produced.
func (p *Projector) Export(ctx context.Context, snap Snapshot) (*Result, error) {
	if !snap.FrameKnown {
		p.logger.Debug("Export skipped, page frame unknown", "source", snap.Source)
		return nil, nil
	}

	src, err := p.fetcher.Fetch(ctx, snap.Source)
	if err != nil {
		return nil, apperrors.NewExportError("failed to fetch source document", err)
	}

	doc, err := p.builder.Load(ctx, src)
	if err != nil {
		return nil, apperrors.NewExportError("failed to load source document", err)
	}

	for _, pl := range snap.Placements {
		p.logger.Debug("Placing text",
			"annotation_id", pl.AnnotationID,
			"x", pl.Native.X, "y", pl.Native.Y, "size", pl.Native.FontSize)
		doc.PlaceText(pl.Text, pl.Native.X, pl.Native.Y, pl.Native.FontSize, p.textColor)
	}

	data, err := doc.Serialize(ctx)
	if err != nil {
		return nil, apperrors.NewExportError("failed to serialize output document", err)
	}

	filename := p.SuggestedFilename()
	return &Result{
		Data:       data,
		Filename:   filename,
		ObjectName: strings.TrimSuffix(filename, ".pdf") + "-" + p.suffix() + ".pdf",
		Placements: len(snap.Placements),
	}, nil
}

// SuggestedFilename returns the download name for an export made now.
func (p *Projector) SuggestedFilename() string {
	return p.filenamePrefix + p.now().UTC().Format("2006-01-02T15-04-05Z") + ".pdf"
}
