package response

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/palmbay/experience-bookings/internal/domain"
)

// ErrorResponse represents a structured JSON error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// WriteError writes a structured JSON error response
func WriteError(w http.ResponseWriter, statusCode int, message string, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	errResp := ErrorResponse{
		Error: message,
		Code:  code,
	}

	if err := json.NewEncoder(w).Encode(errResp); err != nil {
		log.Printf("failed to encode error response: %v", err)
	}
}

// Common error codes
const (
	CodeInvalidInput         = "INVALID_INPUT"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeForbidden            = "FORBIDDEN"
	CodeNotFound             = "NOT_FOUND"
	CodeConflict             = "CONFLICT"
	CodeInsufficientCapacity = "INSUFFICIENT_CAPACITY"
	CodeDuplicatePending     = "DUPLICATE_PENDING"
	CodeExternalFailure      = "EXTERNAL_FAILURE"
	CodeInternalError        = "INTERNAL_ERROR"
)

// Convenience functions for common errors
func BadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, message, CodeInvalidInput)
}

func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, message, CodeUnauthorized)
}

func Forbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, message, CodeForbidden)
}

func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, message, CodeNotFound)
}

func Conflict(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, message, CodeConflict)
}

func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, message, CodeInternalError)
}

// FromDomainError maps the engine's error taxonomy to HTTP responses.
// InsufficientCapacity gets its own code so callers can offer alternative
// slots instead of treating it as a generic conflict.
func FromDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		NotFound(w, err.Error())
	case errors.Is(err, domain.ErrInvalidInput):
		BadRequest(w, err.Error())
	case errors.Is(err, domain.ErrInsufficientCapacity):
		WriteError(w, http.StatusConflict, err.Error(), CodeInsufficientCapacity)
	case errors.Is(err, domain.ErrDuplicatePending):
		WriteError(w, http.StatusConflict, err.Error(), CodeDuplicatePending)
	case errors.Is(err, domain.ErrConflict):
		Conflict(w, err.Error())
	case errors.Is(err, domain.ErrExternalFailure):
		WriteError(w, http.StatusBadGateway, err.Error(), CodeExternalFailure)
	default:
		InternalError(w, "internal error")
	}
}
