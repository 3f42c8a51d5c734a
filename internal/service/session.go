package service

import (
	"sync"
	"time"

	"pdf-text-overlay/internal/annotation"
	"pdf-text-overlay/internal/domain"
	"pdf-text-overlay/internal/geometry"
	"pdf-text-overlay/internal/interaction"
	"pdf-text-overlay/internal/preview"
)

// Status is the load state of a session's document.
type Status string

const (
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
	StatusFailed  Status = "failed"
)

// session is one editing session. Every field is guarded by mu; the store,
// viewport and machine are only touched with mu held.
type session struct {
	id     string
	logger domain.Logger

	mu         sync.Mutex
	source     domain.SourceRef
	status     Status
	loadErr    error
	generation uint64
	settled    chan struct{}
	doc        domain.DocumentHandle
	pageCount  int
	canvas     *preview.Canvas
	view       *geometry.Viewport
	store      *annotation.Store
	machine    *interaction.Machine
	exporting  bool
	lastUsed   time.Time
	closed     bool
	// releasePending defers freeing the source until the running export
	// has finished with it.
	releasePending bool
}

// isCurrent reports whether gen is still the live load.
func (s *session) isCurrent(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && s.generation == gen
}

// closeDocLocked releases the open document, if any.
func (s *session) closeDocLocked() {
	if s.doc == nil {
		return
	}
	if err := s.doc.Close(); err != nil {
		s.logger.Warn("Failed to close document", "error", err)
	}
	s.doc = nil
	s.canvas = nil
	s.pageCount = 0
}

// AnnotationView is an annotation as the UI shell draws it.
type AnnotationView struct {
	annotation.Annotation
	Selected       bool                      `json:"selected"`
	Screen         geometry.Point            `json:"screen"`
	ScreenFontSize float64                   `json:"screen_font_size"`
	Native         *geometry.NativePlacement `json:"native,omitempty"`
}

// Snapshot is the externally visible state of a session.
type Snapshot struct {
	ID          string           `json:"id"`
	Source      domain.SourceRef `json:"source"`
	Status      Status           `json:"status"`
	Error       string           `json:"error,omitempty"`
	PageCount   int              `json:"page_count,omitempty"`
	NativeSize  *geometry.Size   `json:"native_size,omitempty"`
	RasterSize  *geometry.Size   `json:"raster_size,omitempty"`
	ZoomPercent int              `json:"zoom_percent"`
	Mode        string           `json:"mode"`
	Adding      bool             `json:"adding"`
	Dragging    annotation.ID    `json:"dragging,omitempty"`
	Exporting   bool             `json:"exporting"`
	SelectedID  annotation.ID    `json:"selected_id,omitempty"`
	Annotations []AnnotationView `json:"annotations"`
}

// snapshotLocked builds a Snapshot. mu must be held.
func (s *session) snapshotLocked() Snapshot {
	snap := Snapshot{
		ID:          s.id,
		Source:      s.source,
		Status:      s.status,
		PageCount:   s.pageCount,
		ZoomPercent: s.view.ZoomPercent(),
		Mode:        s.machine.Mode().String(),
		Adding:      s.machine.Adding(),
		Exporting:   s.exporting,
		SelectedID:  s.store.SelectedID(),
		Annotations: make([]AnnotationView, 0, s.store.Len()),
	}
	if s.loadErr != nil {
		snap.Error = s.loadErr.Error()
	}
	if id, ok := s.machine.DragTarget(); ok {
		snap.Dragging = id
	}

	frame, known := s.view.Frame()
	if known {
		native, raster := frame.Native, frame.Raster
		snap.NativeSize, snap.RasterSize = &native, &raster
	}
	tr, hasTransform := s.view.Transform()

	for a := range s.store.All() {
		v := AnnotationView{
			Annotation:     a,
			Selected:       s.store.IsSelected(a.ID),
			Screen:         a.Position.Scale(s.view.Zoom()),
			ScreenFontSize: a.FontSize * s.view.Zoom(),
		}
		if hasTransform {
			np := tr.RasterToNative(a.Position, a.FontSize)
			v.Native = &np
		}
		snap.Annotations = append(snap.Annotations, v)
	}
	return snap
}
