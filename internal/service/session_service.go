package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"pdf-text-overlay/internal/annotation"
	"pdf-text-overlay/internal/domain"
	"pdf-text-overlay/internal/export"
	"pdf-text-overlay/internal/geometry"
	"pdf-text-overlay/internal/interaction"
	"pdf-text-overlay/internal/preview"

	"github.com/google/uuid"
)

// SourceRegistry validates source references and frees uploaded ones.
type SourceRegistry interface {
	Validate(ref domain.SourceRef) error
	Release(ref domain.SourceRef)
}

// Options configures a SessionService.
type Options struct {
	RenderScale float64
	DefaultZoom int
	Annotation  annotation.Options
	SessionTTL  time.Duration
	SinkTimeout time.Duration
}

// Dependencies are the collaborators of a SessionService.
type Dependencies struct {
	Engine    domain.RenderingEngine
	Projector *export.Projector
	Sinks     []domain.DownloadSink
	Measurer  *preview.Measurer
	Sources   SourceRegistry
	Logger    domain.Logger
}

// SessionService hosts editing sessions. Each session serializes its own
// calls into the store, viewport and machine.
type SessionService struct {
	deps   Dependencies
	opts   Options
	logger domain.Logger
	render *preview.Renderer
	now    func() time.Time

	mu       sync.RWMutex
	sessions map[string]*session

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewSessionService creates the service and starts its idle janitor.
func NewSessionService(deps Dependencies, opts Options) (*SessionService, error) {
	if deps.Engine == nil || deps.Projector == nil || deps.Measurer == nil || deps.Logger == nil {
		return nil, fmt.Errorf("session service: missing dependency")
	}
	if opts.RenderScale <= 0 {
		return nil, fmt.Errorf("session service: render scale must be positive, got %v", opts.RenderScale)
	}
	if _, err := geometry.ZoomFromPercent(opts.DefaultZoom); err != nil {
		return nil, fmt.Errorf("session service: default zoom: %w", err)
	}
	if opts.SinkTimeout <= 0 {
		opts.SinkTimeout = time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())
	svc := &SessionService{
		deps:     deps,
		opts:     opts,
		logger:   deps.Logger,
		render:   preview.NewRenderer(deps.Measurer),
		now:      time.Now,
		sessions: make(map[string]*session),
		ctx:      ctx,
		cancel:   cancel,
	}

	if opts.SessionTTL > 0 {
		svc.wg.Add(1)
		go svc.janitor(opts.SessionTTL)
	}
	return svc, nil
}

// Options returns the settings the UI shell needs.
func (svc *SessionService) Options() Options { return svc.opts }

// Create starts a session and begins loading ref in the background.
func (svc *SessionService) Create(ref domain.SourceRef) (Snapshot, error) {
	if err := svc.validate(ref); err != nil {
		return Snapshot{}, err
	}

	view, err := geometry.NewViewport(svc.opts.DefaultZoom)
	if err != nil {
		return Snapshot{}, err
	}
	store := annotation.NewStore(svc.opts.Annotation)
	id := uuid.NewString()
	sess := &session{
		id:       id,
		logger:   svc.logger.With("session_id", id),
		view:     view,
		store:    store,
		machine:  interaction.NewMachine(store, view, interaction.NewBus()),
		lastUsed: svc.now(),
	}

	svc.mu.Lock()
	svc.sessions[id] = sess
	svc.mu.Unlock()

	sess.mu.Lock()
	defer sess.mu.Unlock()
	svc.beginLoadLocked(sess, ref)
	sess.logger.Info("Session created", "source", ref)
	return sess.snapshotLocked(), nil
}

// Get returns the current snapshot.
func (svc *SessionService) Get(id string) (Snapshot, error) {
	var snap Snapshot
	err := svc.with(id, func(s *session) error {
		snap = s.snapshotLocked()
		return nil
	})
	return snap, err
}

// WaitSettled blocks until the session's current load has finished or ctx
// is done, then returns the snapshot.
func (svc *SessionService) WaitSettled(ctx context.Context, id string) (Snapshot, error) {
	var settled chan struct{}
	if err := svc.with(id, func(s *session) error {
		settled = s.settled
		return nil
	}); err != nil {
		return Snapshot{}, err
	}
	select {
	case <-settled:
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
	return svc.Get(id)
}

// Delete ends a session. A pending load is abandoned. A session with an
// export in flight cannot be deleted.
func (svc *SessionService) Delete(id string) error {
	svc.mu.Lock()
	sess, ok := svc.sessions[id]
	if !ok {
		svc.mu.Unlock()
		return domain.ErrSessionNotFound
	}
	sess.mu.Lock()
	exporting := sess.exporting
	sess.mu.Unlock()
	if exporting {
		svc.mu.Unlock()
		return domain.ErrBusy
	}
	delete(svc.sessions, id)
	svc.mu.Unlock()

	svc.closeSession(sess)
	sess.logger.Info("Session ended")
	return nil
}

func (svc *SessionService) closeSession(sess *session) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.closed = true
	sess.generation++
	sess.machine.Reset()
	sess.closeDocLocked()
	if sess.exporting {
		// The running export still reads the source; finishExport frees it.
		sess.releasePending = true
		return
	}
	svc.releaseSource(sess.source)
}

// SetSource replaces the document. Annotations are kept; interaction is
// blocked until the new page has been measured and rendered.
func (svc *SessionService) SetSource(id string, ref domain.SourceRef) (Snapshot, error) {
	if err := svc.validate(ref); err != nil {
		return Snapshot{}, err
	}
	var snap Snapshot
	err := svc.with(id, func(s *session) error {
		if s.exporting {
			return domain.ErrBusy
		}
		if s.source != ref {
			svc.releaseSource(s.source)
		}
		svc.beginLoadLocked(s, ref)
		s.logger.Info("Session source replaced", "source", ref)
		snap = s.snapshotLocked()
		return nil
	})
	return snap, err
}

// SetAddingMode arms or disarms one-shot placement.
func (svc *SessionService) SetAddingMode(id string, on bool) (Snapshot, error) {
	return svc.mutate(id, func(s *session) error {
		return s.machine.SetAddingMode(on)
	})
}

// SetZoom changes the display zoom.
func (svc *SessionService) SetZoom(id string, percent int) (Snapshot, error) {
	return svc.mutate(id, func(s *session) error {
		return s.machine.SetZoom(percent)
	})
}

// TargetKind selects how a pointer event's target is resolved.
type TargetKind string

const (
	TargetAuto       TargetKind = "auto"
	TargetRaster     TargetKind = "raster"
	TargetAnnotation TargetKind = "annotation"
	TargetOutside    TargetKind = "outside"
)

// PointerKind is the kind of a pointer event.
type PointerKind string

const (
	PointerDown  PointerKind = "down"
	PointerMove  PointerKind = "move"
	PointerUp    PointerKind = "up"
	PointerClick PointerKind = "click"
)

// PointerInput is one pointer event in screen coordinates relative to the
// raster's on-screen origin.
type PointerInput struct {
	Kind         PointerKind   `json:"kind"`
	X            float64       `json:"x"`
	Y            float64       `json:"y"`
	Target       TargetKind    `json:"target"`
	AnnotationID annotation.ID `json:"annotation_id,omitempty"`
}

// PointerResult describes what a pointer event did.
type PointerResult struct {
	Effect   string        `json:"effect"`
	TargetID annotation.ID `json:"target_id,omitempty"`
	Snapshot Snapshot      `json:"session"`
}

var (
	// ErrUnknownPointerKind is returned for an unsupported event kind.
	ErrUnknownPointerKind = errors.New("unknown pointer event kind")
	// ErrClosed is returned once the service has shut down.
	ErrClosed = errors.New("session service closed")
)

// Pointer dispatches a pointer event to the session's state machine.
func (svc *SessionService) Pointer(id string, in PointerInput) (PointerResult, error) {
	var res PointerResult
	err := svc.with(id, func(s *session) error {
		p := geometry.Point{X: in.X, Y: in.Y}
		res.Effect = "none"

		switch in.Kind {
		case PointerDown:
			if s.exporting {
				return domain.ErrBusy
			}
			target := svc.resolveTargetLocked(s, in, p)
			res.TargetID = target.ID
			effect, err := s.machine.PointerDown(target, p)
			if err != nil {
				return err
			}
			switch effect {
			case interaction.EffectCreated:
				res.Effect = "created"
				res.TargetID = s.store.SelectedID()
				s.logger.Debug("Annotation placed", "annotation_id", res.TargetID)
			case interaction.EffectDragStarted:
				res.Effect = "drag_started"
				s.logger.Debug("Drag started", "annotation_id", res.TargetID)
			}
		case PointerMove:
			if _, dragging := s.machine.DragTarget(); dragging {
				res.Effect = "moved"
			}
			s.machine.PointerMove(p)
		case PointerUp:
			if dragID, dragging := s.machine.DragTarget(); dragging {
				res.Effect = "drag_ended"
				res.TargetID = dragID
			}
			s.machine.PointerUp(p)
		case PointerClick:
			target := svc.resolveTargetLocked(s, in, p)
			res.TargetID = target.ID
			if s.machine.Click(target) {
				res.Effect = "selected"
			}
		default:
			return fmt.Errorf("%w: %q", ErrUnknownPointerKind, in.Kind)
		}
		res.Snapshot = s.snapshotLocked()
		return nil
	})
	return res, err
}

// resolveTargetLocked maps the event's target to a machine target, hit
// testing against measured text when asked to.
func (svc *SessionService) resolveTargetLocked(s *session, in PointerInput, p geometry.Point) interaction.Target {
	switch in.Target {
	case TargetAnnotation:
		return interaction.OnAnnotation(in.AnnotationID)
	case TargetOutside:
		return interaction.Target{Kind: interaction.TargetOutside}
	case TargetRaster:
		return interaction.OnRaster()
	}

	tr, ok := s.view.Transform()
	if !ok {
		return interaction.OnRaster()
	}
	rp := tr.ScreenToRaster(p)
	frame, _ := s.view.Frame()
	if rp.X < 0 || rp.Y < 0 || rp.X > frame.Raster.Width || rp.Y > frame.Raster.Height {
		return interaction.Target{Kind: interaction.TargetOutside}
	}
	if hit, found := svc.deps.Measurer.HitTest(s.store.ListForPage(export.TargetPage), rp); found {
		return interaction.OnAnnotation(hit)
	}
	return interaction.OnRaster()
}

// UpdateActive patches the selected annotation. With nothing selected it is
// a no-op.
func (svc *SessionService) UpdateActive(id string, patch annotation.Patch) (bool, Snapshot, error) {
	var changed bool
	snap, err := svc.mutate(id, func(s *session) error {
		changed = s.machine.UpdateActive(patch)
		return nil
	})
	return changed, snap, err
}

// DeleteActive removes the selected annotation.
func (svc *SessionService) DeleteActive(id string) (bool, Snapshot, error) {
	var removed bool
	snap, err := svc.mutate(id, func(s *session) error {
		selected := s.store.SelectedID()
		removed = s.machine.DeleteActive()
		if removed {
			s.logger.Debug("Annotation deleted", "annotation_id", selected)
		}
		return nil
	})
	return removed, snap, err
}

// Preview renders the zoomed page with its overlay as PNG.
func (svc *SessionService) Preview(id string) ([]byte, error) {
	var scene preview.Scene
	err := svc.with(id, func(s *session) error {
		if s.status == StatusFailed {
			return fmt.Errorf("%w: %v", domain.ErrSessionFailed, s.loadErr)
		}
		frame, ok := s.view.Frame()
		if !ok || s.canvas == nil {
			return domain.ErrNotReady
		}
		raster, _ := s.canvas.Image()
		scene = preview.Scene{
			Raster:      raster,
			RasterSize:  frame.Raster,
			Zoom:        s.view.Zoom(),
			Annotations: slices.Values(slices.Collect(s.store.ListForPage(export.TargetPage))),
			Selected:    s.store.SelectedID(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return svc.render.EncodePNG(scene)
}

// Export stamps the annotations onto a fresh copy of the source document.
// A nil result with a nil error means the page frame is not known yet. Once
// started an export is not cancelled by ctx.
func (svc *SessionService) Export(ctx context.Context, id string) (*export.Result, error) {
	var (
		snap   export.Snapshot
		logger domain.Logger
		sess   *session
	)
	err := svc.with(id, func(s *session) error {
		if s.exporting {
			return domain.ErrBusy
		}
		if _, dragging := s.machine.DragTarget(); dragging {
			return domain.ErrDragInProgress
		}
		frame, known := s.view.Frame()
		snap = export.Capture(s.source, frame, known, s.store.All())
		if snap.FrameKnown {
			s.exporting = true
		}
		sess = s
		logger = s.logger
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !snap.FrameKnown {
		return nil, nil
	}
	defer svc.finishExport(sess)

	logger.Info("Export started", "annotations", len(snap.Placements))
	start := svc.now()
	res, err := svc.deps.Projector.Export(context.WithoutCancel(ctx), snap)
	if err != nil {
		logger.Error("Export failed", err)
		return nil, err
	}
	logger.Info("Export finished", "filename", res.Filename, "bytes", len(res.Data), "duration", svc.now().Sub(start))

	svc.deliver(logger, res)
	return res, nil
}

func (svc *SessionService) finishExport(sess *session) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.exporting = false
	sess.lastUsed = svc.now()
	if sess.releasePending {
		sess.releasePending = false
		svc.releaseSource(sess.source)
	}
}

// deliver hands the result to every sink in the background. Sink failures
// are logged only.
func (svc *SessionService) deliver(logger domain.Logger, res *export.Result) {
	for _, sink := range svc.deps.Sinks {
		svc.wg.Add(1)
		go func() {
			defer svc.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), svc.opts.SinkTimeout)
			defer cancel()
			if err := sink.Save(ctx, res.Data, res.ObjectName); err != nil {
				logger.Error("Export sink failed", err, "object", res.ObjectName)
			}
		}()
	}
}

// Len returns the number of live sessions.
func (svc *SessionService) Len() int {
	svc.mu.RLock()
	defer svc.mu.RUnlock()
	return len(svc.sessions)
}

// Close ends every session, stops the janitor and waits for background work.
func (svc *SessionService) Close() {
	svc.closeOnce.Do(func() {
		svc.cancel()

		svc.mu.Lock()
		sessions := svc.sessions
		svc.sessions = make(map[string]*session)
		svc.mu.Unlock()

		for _, sess := range sessions {
			svc.closeSession(sess)
		}
		svc.wg.Wait()
		svc.logger.Info("Session service stopped", "sessions", len(sessions))
	})
}

func (svc *SessionService) janitor(ttl time.Duration) {
	defer svc.wg.Done()
	interval := max(ttl/2, time.Second)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-svc.ctx.Done():
			return
		case <-ticker.C:
			svc.EvictIdle(ttl)
		}
	}
}

// EvictIdle ends sessions unused for longer than ttl. Sessions with an
// export in flight are kept.
func (svc *SessionService) EvictIdle(ttl time.Duration) int {
	cutoff := svc.now().Add(-ttl)

	svc.mu.Lock()
	var idle []*session
	for id, sess := range svc.sessions {
		sess.mu.Lock()
		if sess.lastUsed.Before(cutoff) && !sess.exporting {
			idle = append(idle, sess)
			delete(svc.sessions, id)
		}
		sess.mu.Unlock()
	}
	svc.mu.Unlock()

	for _, sess := range idle {
		svc.closeSession(sess)
		sess.logger.Info("Session evicted", "idle_for", ttl)
	}
	return len(idle)
}

// with runs fn with the session locked and marks it used.
func (svc *SessionService) with(id string, fn func(*session) error) error {
	svc.mu.RLock()
	sess, ok := svc.sessions[id]
	svc.mu.RUnlock()
	if !ok {
		return domain.ErrSessionNotFound
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.closed {
		return domain.ErrSessionNotFound
	}
	sess.lastUsed = svc.now()
	return fn(sess)
}

// mutate runs fn and returns the resulting snapshot.
func (svc *SessionService) mutate(id string, fn func(*session) error) (Snapshot, error) {
	var snap Snapshot
	err := svc.with(id, func(s *session) error {
		if err := fn(s); err != nil {
			return err
		}
		snap = s.snapshotLocked()
		return nil
	})
	return snap, err
}

func (svc *SessionService) validate(ref domain.SourceRef) error {
	if svc.ctx.Err() != nil {
		return ErrClosed
	}
	if ref == "" {
		return fmt.Errorf("%w: empty reference", domain.ErrInvalidSource)
	}
	if svc.deps.Sources == nil {
		return nil
	}
	return svc.deps.Sources.Validate(ref)
}

func (svc *SessionService) releaseSource(ref domain.SourceRef) {
	if svc.deps.Sources != nil && ref != "" {
		svc.deps.Sources.Release(ref)
	}
}
