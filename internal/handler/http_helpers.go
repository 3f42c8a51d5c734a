package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"pdf-text-overlay/internal/domain"
	"pdf-text-overlay/internal/geometry"
	"pdf-text-overlay/internal/service"
	apperrors "pdf-text-overlay/pkg/errors"
)

// maxJSONBody caps request bodies that are not file uploads.
const maxJSONBody = 1 << 20

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response (helper function)
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

// readJSON decodes a bounded JSON body into dst.
func readJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(dst); err != nil {
		return &domain.ValidationError{Message: "invalid JSON body: " + err.Error()}
	}
	return nil
}

// statusFor maps service and domain errors to an HTTP status.
func statusFor(err error) int {
	var validation *domain.ValidationError
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNotReady),
		errors.Is(err, domain.ErrBusy),
		errors.Is(err, domain.ErrDragInProgress),
		errors.Is(err, domain.ErrSessionFailed):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidSource),
		errors.Is(err, domain.ErrInvalidFile),
		errors.Is(err, geometry.ErrInvalidZoom),
		errors.Is(err, service.ErrUnknownPointerKind),
		errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrClosed):
		return http.StatusServiceUnavailable
	}
	if _, ok := apperrors.As(err); ok {
		return apperrors.GetStatusCode(err)
	}
	return http.StatusInternalServerError
}

// writeServiceError answers with the status for err. Unexpected errors are
// logged and reported without detail.
func writeServiceError(w http.ResponseWriter, logger domain.Logger, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed", err, "status", status)
	}
	if status == http.StatusInternalServerError {
		writeError(w, status, "Internal server error")
		return
	}
	if appErr, ok := apperrors.As(err); ok {
		writeJSON(w, status, map[string]string{
			"error": appErr.Message,
			"type":  string(appErr.Type),
		})
		return
	}
	writeError(w, status, err.Error())
}
