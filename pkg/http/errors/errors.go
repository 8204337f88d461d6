package errors

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/gokatarajesh/notes-quiz/internal/apperrors"
)

// Error codes for standardized error responses.
const (
	ErrCodeInvalidRequest   = "invalid_request"
	ErrCodeValidationFailed = "validation_failed"
	ErrCodeNotFound         = "not_found"
	ErrCodeOutOfRange       = "out_of_range"
	ErrCodeInvalidPhase     = "invalid_phase"
	ErrCodeStaleResponse    = "stale_response"
	ErrCodeUpstreamError    = "upstream_error"
	ErrCodeInternalError    = "internal_error"
)

// ErrorResponse represents a standardized error response.
type ErrorResponse struct {
	Error   string         `json:"error"`
	Message string         `json:"message"`
	Field   string         `json:"field,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// RespondError writes a standardized error response to the HTTP response writer.
func RespondError(w http.ResponseWriter, status int, code, message string) {
	write(w, status, ErrorResponse{Error: code, Message: message})
}

// RespondValidationError writes a validation error response with field information.
func RespondValidationError(w http.ResponseWriter, code, message, field string) {
	write(w, http.StatusBadRequest, ErrorResponse{Error: code, Message: message, Field: field})
}

// RespondErrorWithDetails writes an error response with additional details.
func RespondErrorWithDetails(w http.ResponseWriter, status int, code, message string, details map[string]any) {
	write(w, status, ErrorResponse{Error: code, Message: message, Details: details})
}

// RespondBadRequest writes a bad request error response.
func RespondBadRequest(w http.ResponseWriter, code, message string) {
	RespondError(w, http.StatusBadRequest, code, message)
}

// RespondInternalError writes an internal server error response.
func RespondInternalError(w http.ResponseWriter, message string) {
	RespondError(w, http.StatusInternalServerError, ErrCodeInternalError, message)
}

// RespondDomainError maps an error from the quiz, notes or history packages
// to a status and code. Upstream failures carry the backend's detail message.
func RespondDomainError(w http.ResponseWriter, err error) {
	var ve *apperrors.ValidationError
	if stderrors.As(err, &ve) {
		RespondValidationError(w, ErrCodeValidationFailed, ve.Message, ve.Field)
		return
	}
	var ue *apperrors.UpstreamError
	if stderrors.As(err, &ue) {
		details := map[string]any{"service": ue.Service}
		if ue.Status > 0 {
			details["status"] = ue.Status
		}
		RespondErrorWithDetails(w, http.StatusBadGateway, ErrCodeUpstreamError, ue.Message, details)
		return
	}
	switch {
	case stderrors.Is(err, apperrors.ErrNotFound):
		RespondError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case stderrors.Is(err, apperrors.ErrOutOfRange):
		RespondError(w, http.StatusUnprocessableEntity, ErrCodeOutOfRange, err.Error())
	case stderrors.Is(err, apperrors.ErrInvalidPhase):
		RespondError(w, http.StatusConflict, ErrCodeInvalidPhase, err.Error())
	case stderrors.Is(err, apperrors.ErrStaleResponse):
		RespondError(w, http.StatusConflict, ErrCodeStaleResponse, err.Error())
	default:
		RespondInternalError(w, "internal server error")
	}
}

func write(w http.ResponseWriter, status int, body ErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
