package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kubilitics/kubilitics-forecast/internal/analytics"
	"github.com/kubilitics/kubilitics-forecast/internal/db"
	"github.com/kubilitics/kubilitics-forecast/internal/middleware"
)

// APIError is the body of every non-2xx response.
type APIError struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Status    string `json:"status,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// Error codes.
const (
	ErrCodeInvalidRequest   = "INVALID_REQUEST"
	ErrCodeMissingParameter = "MISSING_PARAMETER"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeInternalError    = "INTERNAL_ERROR"
	ErrCodeUnavailable      = "UNAVAILABLE"
)

// classify maps an error onto an HTTP status and error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, analytics.ErrMissingParameter):
		return http.StatusBadRequest, ErrCodeMissingParameter
	case errors.Is(err, analytics.ErrInvalidRequest):
		return http.StatusBadRequest, ErrCodeInvalidRequest
	case errors.Is(err, db.ErrNotFound):
		return http.StatusNotFound, ErrCodeNotFound
	default:
		return http.StatusInternalServerError, ErrCodeInternalError
	}
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	respondJSON(w, status, APIError{
		Error:     message,
		Code:      code,
		RequestID: middleware.RequestIDFromContext(r.Context()),
	})
}

// respondErr writes err with the status its sentinel maps to. Internal
// failures do not leak their cause to the client.
func respondErr(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	msg, label := err.Error(), analytics.StatusOf(err)
	switch status {
	case http.StatusInternalServerError:
		msg = "internal failure"
	case http.StatusNotFound:
		label = "not_found"
	}
	respondJSON(w, status, APIError{
		Error:     msg,
		Code:      code,
		Status:    label,
		RequestID: middleware.RequestIDFromContext(r.Context()),
	})
}
