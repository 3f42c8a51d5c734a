package service

import (
	"context"
	"errors"

	"pdf-text-overlay/internal/domain"
	"pdf-text-overlay/internal/export"
	"pdf-text-overlay/internal/geometry"
	"pdf-text-overlay/internal/preview"
	apperrors "pdf-text-overlay/pkg/errors"
)

// beginLoadLocked supersedes any pending load and starts a new one for ref.
// Interaction stays disabled until the new frame is known. s.mu must be held.
func (svc *SessionService) beginLoadLocked(s *session, ref domain.SourceRef) {
	s.generation++
	gen := s.generation

	s.machine.Reset()
	s.view.ResetFrame()
	s.closeDocLocked()
	s.source = ref
	s.status = StatusLoading
	s.loadErr = nil

	settled := make(chan struct{})
	s.settled = settled

	svc.wg.Add(1)
	go func() {
		defer svc.wg.Done()
		defer close(settled)
		svc.load(s, gen, ref)
	}()
}

// load opens the document, measures page 0 and renders it at the session
// render scale. Liveness is checked after every step; a superseded load
// never touches the session.
func (svc *SessionService) load(s *session, gen uint64, ref domain.SourceRef) {
	ctx := svc.ctx

	doc, err := svc.deps.Engine.LoadDocument(ctx, ref)
	if !s.isCurrent(gen) {
		if doc != nil {
			_ = doc.Close()
		}
		s.logger.Debug("Stale load abandoned", "source", ref, "stage", "open")
		return
	}
	if err != nil {
		svc.fail(s, gen, ensureType(err, apperrors.NewLoadError, "failed to load document"))
		return
	}

	page, err := doc.Page(export.TargetPage)
	if err != nil {
		_ = doc.Close()
		svc.fail(s, gen, ensureType(err, apperrors.NewRenderError, "failed to open page"))
		return
	}

	native, err := page.NativeSize()
	if !s.isCurrent(gen) {
		_ = doc.Close()
		s.logger.Debug("Stale load abandoned", "source", ref, "stage", "measure")
		return
	}
	if err != nil {
		_ = doc.Close()
		svc.fail(s, gen, ensureType(err, apperrors.NewRenderError, "failed to measure page"))
		return
	}

	canvas := &preview.Canvas{}
	raster, err := page.RenderToSurface(ctx, svc.opts.RenderScale, canvas)
	if err != nil {
		_ = doc.Close()
		if s.isCurrent(gen) {
			svc.fail(s, gen, ensureType(err, apperrors.NewRenderError, "failed to render page"))
		}
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.generation != gen {
		_ = doc.Close()
		s.logger.Debug("Stale load abandoned", "source", ref, "stage", "render")
		return
	}
	if err := s.view.SetFrame(geometry.Frame{Native: native, Raster: raster}); err != nil {
		_ = doc.Close()
		s.status = StatusFailed
		s.loadErr = apperrors.NewRenderError("engine reported an unusable page size", err)
		s.logger.Error("Session load failed", s.loadErr)
		return
	}
	s.doc = doc
	s.canvas = canvas
	s.pageCount = doc.NumPages()
	s.status = StatusReady
	s.logger.Info("Document ready",
		"source", ref,
		"native_width", native.Width, "native_height", native.Height,
		"raster_width", raster.Width, "raster_height", raster.Height)
}

// fail records a load or render failure for gen. There is no automatic
// retry; setting a new source is the retry.
func (svc *SessionService) fail(s *session, gen uint64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.generation != gen {
		return
	}
	s.status = StatusFailed
	s.loadErr = err
	s.logger.Error("Session load failed", err, "source", s.source)
}

// ensureType wraps err with ctor unless it already carries an AppError.
func ensureType(err error, ctor func(string, error) *apperrors.AppError, msg string) error {
	if _, ok := apperrors.As(err); ok {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return apperrors.NewLoadError("load cancelled", err)
	}
	return ctor(msg, err)
}
