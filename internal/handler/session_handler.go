// Package handler provides HTTP handlers for the API.
package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"pdf-text-overlay/internal/annotation"
	"pdf-text-overlay/internal/domain"
	"pdf-text-overlay/internal/export"
	"pdf-text-overlay/internal/geometry"
	"pdf-text-overlay/internal/service"

	"github.com/gorilla/mux"
)

// settleTimeout bounds how long ?wait=true holds a create or reload request.
const settleTimeout = 2 * time.Minute

// SessionAPI is the session service as seen by the HTTP layer.
type SessionAPI interface {
	Options() service.Options
	Create(ref domain.SourceRef) (service.Snapshot, error)
	Get(id string) (service.Snapshot, error)
	WaitSettled(ctx context.Context, id string) (service.Snapshot, error)
	Delete(id string) error
	SetSource(id string, ref domain.SourceRef) (service.Snapshot, error)
	SetAddingMode(id string, on bool) (service.Snapshot, error)
	SetZoom(id string, percent int) (service.Snapshot, error)
	Pointer(id string, in service.PointerInput) (service.PointerResult, error)
	UpdateActive(id string, patch annotation.Patch) (bool, service.Snapshot, error)
	DeleteActive(id string) (bool, service.Snapshot, error)
	Preview(id string) ([]byte, error)
	Export(ctx context.Context, id string) (*export.Result, error)
}

// UploadRegistry keeps uploaded PDFs addressable as sources.
type UploadRegistry interface {
	Register(data []byte) (domain.SourceRef, error)
	Release(ref domain.SourceRef)
}

// SessionHandler handles editing-session HTTP requests
type SessionHandler struct {
	sessions    SessionAPI
	uploads     UploadRegistry
	maxFileSize int64
	logger      domain.Logger
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(sessions SessionAPI, uploads UploadRegistry, maxFileSize int64, logger domain.Logger) *SessionHandler {
	return &SessionHandler{
		sessions:    sessions,
		uploads:     uploads,
		maxFileSize: maxFileSize,
		logger:      logger,
	}
}

// OptionsResponse lists the editor settings the UI needs.
type OptionsResponse struct {
	ZoomStops       []int   `json:"zoom_stops"`
	DefaultZoom     int     `json:"default_zoom"`
	RenderScale     float64 `json:"render_scale"`
	FontSizeMin     float64 `json:"font_size_min"`
	FontSizeMax     float64 `json:"font_size_max"`
	DefaultFontSize float64 `json:"default_font_size"`
	DefaultText     string  `json:"default_text"`
}

type sourceRequest struct {
	Source string `json:"source"`
}

type addingRequest struct {
	Adding bool `json:"adding"`
}

type zoomRequest struct {
	Percent int `json:"percent"`
}

type activeResponse struct {
	Changed bool             `json:"changed"`
	Session service.Snapshot `json:"session"`
}

// GetOptions returns zoom stops, font bounds and annotation defaults.
func (h *SessionHandler) GetOptions(w http.ResponseWriter, r *http.Request) {
	opts := h.sessions.Options()
	writeJSON(w, http.StatusOK, OptionsResponse{
		ZoomStops:       geometry.ZoomStops,
		DefaultZoom:     opts.DefaultZoom,
		RenderScale:     opts.RenderScale,
		FontSizeMin:     opts.Annotation.Bounds.Min,
		FontSizeMax:     opts.Annotation.Bounds.Max,
		DefaultFontSize: opts.Annotation.DefaultFontSize,
		DefaultText:     opts.Annotation.DefaultText,
	})
}

// CreateSession starts a session from a multipart upload or a JSON source.
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	ref, uploaded, err := h.sourceFromRequest(w, r)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	snap, err := h.sessions.Create(ref)
	if err != nil {
		if uploaded {
			h.uploads.Release(ref)
		}
		writeServiceError(w, h.logger, err)
		return
	}

	if wantsWait(r) {
		snap, err = h.waitSettled(r, snap.ID)
		if err != nil {
			writeServiceError(w, h.logger, err)
			return
		}
	}

	w.Header().Set("Location", "/api/v1/sessions/"+snap.ID)
	writeJSON(w, http.StatusCreated, snap)
}

// GetSession returns the session snapshot.
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var (
		snap service.Snapshot
		err  error
	)
	if wantsWait(r) {
		snap, err = h.waitSettled(r, id)
	} else {
		snap, err = h.sessions.Get(id)
	}
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// DeleteSession ends the session.
func (h *SessionHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Delete(mux.Vars(r)["id"]); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetSource reloads the session from a new source.
func (h *SessionHandler) SetSource(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	ref, uploaded, err := h.sourceFromRequest(w, r)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	snap, err := h.sessions.SetSource(id, ref)
	if err != nil {
		if uploaded {
			h.uploads.Release(ref)
		}
		writeServiceError(w, h.logger, err)
		return
	}
	if wantsWait(r) {
		if snap, err = h.waitSettled(r, id); err != nil {
			writeServiceError(w, h.logger, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, snap)
}

// SetAdding arms or disarms placement mode.
func (h *SessionHandler) SetAdding(w http.ResponseWriter, r *http.Request) {
	var req addingRequest
	if err := readJSON(w, r, &req); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	snap, err := h.sessions.SetAddingMode(mux.Vars(r)["id"], req.Adding)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// SetZoom changes the display zoom.
func (h *SessionHandler) SetZoom(w http.ResponseWriter, r *http.Request) {
	var req zoomRequest
	if err := readJSON(w, r, &req); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	snap, err := h.sessions.SetZoom(mux.Vars(r)["id"], req.Percent)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// Pointer forwards one pointer event to the session.
func (h *SessionHandler) Pointer(w http.ResponseWriter, r *http.Request) {
	var in service.PointerInput
	if err := readJSON(w, r, &in); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	if in.Target == "" {
		in.Target = service.TargetAuto
	}
	res, err := h.sessions.Pointer(mux.Vars(r)["id"], in)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// UpdateActive patches the selected annotation.
func (h *SessionHandler) UpdateActive(w http.ResponseWriter, r *http.Request) {
	var patch annotation.Patch
	if err := readJSON(w, r, &patch); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	changed, snap, err := h.sessions.UpdateActive(mux.Vars(r)["id"], patch)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, activeResponse{Changed: changed, Session: snap})
}

// DeleteActive removes the selected annotation.
func (h *SessionHandler) DeleteActive(w http.ResponseWriter, r *http.Request) {
	removed, snap, err := h.sessions.DeleteActive(mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, activeResponse{Changed: removed, Session: snap})
}

// Preview returns the zoomed page with its overlay as PNG.
func (h *SessionHandler) Preview(w http.ResponseWriter, r *http.Request) {
	data, err := h.sessions.Preview(mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// Export stamps the annotations into the source PDF and returns it as an
// attachment. Nothing is produced while the page frame is unknown.
func (h *SessionHandler) Export(w http.ResponseWriter, r *http.Request) {
	res, err := h.sessions.Export(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	if res == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", res.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(res.Data)))
	w.Header().Set("X-Annotation-Count", strconv.Itoa(res.Placements))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Data)
}

// sourceFromRequest returns the source named by a JSON body or registers
// the uploaded file. uploaded reports whether the caller owns the upload.
func (h *SessionHandler) sourceFromRequest(w http.ResponseWriter, r *http.Request) (ref domain.SourceRef, uploaded bool, err error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		ref, err = h.registerUpload(w, r)
		return ref, err == nil, err
	}

	var req sourceRequest
	if err := readJSON(w, r, &req); err != nil {
		return "", false, err
	}
	ref = domain.SourceRef(strings.TrimSpace(req.Source))
	if ref == "" {
		return "", false, &domain.ValidationError{Field: "source", Message: "is required"}
	}
	// An upload belongs to the session it was posted with.
	if ref.IsUpload() {
		return "", false, &domain.ValidationError{Field: "source", Message: "upload references cannot be reused"}
	}
	return ref, false, nil
}

func (h *SessionHandler) registerUpload(w http.ResponseWriter, r *http.Request) (domain.SourceRef, error) {
	// Leave room for multipart framing around the file itself.
	r.Body = http.MaxBytesReader(w, r.Body, h.maxFileSize+1<<20)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return "", fmt.Errorf("%w: file exceeds %d bytes", domain.ErrInvalidFile, h.maxFileSize)
		}
		return "", &domain.ValidationError{Field: "file", Message: "is required"}
	}
	defer file.Close()

	if header.Size > h.maxFileSize {
		return "", fmt.Errorf("%w: file exceeds %d bytes", domain.ErrInvalidFile, h.maxFileSize)
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidFile, err)
	}

	ref, err := h.uploads.Register(data)
	if err != nil {
		return "", err
	}
	h.logger.Info("Upload registered", "filename", header.Filename, "bytes", len(data))
	return ref, nil
}

func (h *SessionHandler) waitSettled(r *http.Request, id string) (service.Snapshot, error) {
	ctx, cancel := context.WithTimeout(r.Context(), settleTimeout)
	defer cancel()
	snap, err := h.sessions.WaitSettled(ctx, id)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		// Still loading; report the current state instead of failing.
		return h.sessions.Get(id)
	}
	return snap, err
}

func wantsWait(r *http.Request) bool {
	wait, _ := strconv.ParseBool(r.URL.Query().Get("wait"))
	return wait
}
