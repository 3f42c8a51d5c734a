package domain

import "errors"

// Domain errors
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrNotReady        = errors.New("document not ready")
	ErrBusy            = errors.New("export in progress")
	ErrDragInProgress  = errors.New("drag in progress")
	ErrInvalidFile     = errors.New("invalid file")
	ErrInvalidSource   = errors.New("invalid source")
	ErrSessionFailed   = errors.New("session failed to load")
)

// ValidationError represents a validation error with field and message information.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return e.Field + ": " + e.Message
	}
	return e.Message
}
