package apperrors

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by the quiz, notes and history packages.
var (
	ErrOutOfRange    = errors.New("index out of range")
	ErrInvalidPhase  = errors.New("operation not allowed in current phase")
	ErrStaleResponse = errors.New("response belongs to a superseded session generation")
	ErrNotFound      = errors.New("not found")
)

// ValidationError is a local pre-flight failure. No state changes when one is returned.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidation builds a ValidationError for a single field.
func NewValidation(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// UpstreamError wraps a failure reported by (or while reaching) the external collaborator.
// Message is the service-provided detail when one was returned.
type UpstreamError struct {
	Service string
	Status  int
	Message string
	Err     error
}

func (e *UpstreamError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s: %s (status %d)", e.Service, e.Message, e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Service, e.Message)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsUpstream reports whether err carries an UpstreamError.
func IsUpstream(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue)
}

// UserMessage returns the text shown to a user for a blocking error.
func UserMessage(err error) string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Message
	}
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
