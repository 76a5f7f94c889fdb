package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/bobmcallan/screener/internal/models"
)

// Error codes carried in ErrorResponse.Code.
const (
	CodeValidation = "validation_error"
	CodeTimeout    = "analysis_timeout"
	CodeInternal   = "internal_error"
)

// ErrorResponse is the standard error format for REST API responses.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// WriteError writes a JSON error response.
func WriteError(w http.ResponseWriter, statusCode int, message string) {
	WriteJSON(w, statusCode, ErrorResponse{Error: message})
}

// WriteErrorWithCode writes a JSON error response with an error code.
func WriteErrorWithCode(w http.ResponseWriter, statusCode int, message, code string) {
	WriteJSON(w, statusCode, ErrorResponse{Error: message, Code: code})
}

// RequireMethod validates the HTTP method and returns true if it matches.
// If it doesn't match, it writes a 405 response and returns false.
func RequireMethod(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	w.Header().Set("Allow", strings.Join(methods, ", "))
	WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	return false
}

// DecodeJSON reads and decodes JSON from the request body into v.
// Returns false and writes a 400 error if decoding fails.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if r.Body == nil {
		WriteError(w, http.StatusBadRequest, "Request body is required")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		WriteErrorWithCode(w, http.StatusBadRequest, "Invalid JSON: "+err.Error(), CodeValidation)
		return false
	}
	return true
}

// statusForError maps a service error to its HTTP status and error code.
func statusForError(err error) (int, string) {
	switch {
	case models.IsValidationError(err):
		return http.StatusBadRequest, CodeValidation
	case errors.Is(err, models.ErrAnalysisTimeout):
		return http.StatusGatewayTimeout, CodeTimeout
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

// writeServiceError writes err with the status of its class. Internal errors
// are logged and reported without detail.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusForError(err)
	if status == http.StatusInternalServerError {
		s.logger.Error().
			Str("path", r.URL.Path).
			Err(err).
			Msg("Analysis failed")
		WriteErrorWithCode(w, status, "Internal server error", code)
		return
	}
	WriteErrorWithCode(w, status, err.Error(), code)
}
