package httpext

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/animestream/authcore/internal/logger"
)

// ErrorResponse represents a standardised JSON error response
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
	ErrorURI         string `json:"error_uri,omitempty"`
	RetryAfter       int    `json:"retry_after,omitempty"`
}

// JsonError writes a JSON error response with the specified status code
func JsonError(w http.ResponseWriter, message string, code int) {
	JsonErrorWithDetails(w, code, ErrorResponse{Error: message})
}

// JsonErrorWithDetails writes a detailed JSON error response with optional description and URI
func JsonErrorWithDetails(w http.ResponseWriter, code int, err ErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	if encErr := json.NewEncoder(w).Encode(err); encErr != nil {
		log := logger.For(logger.HANDLER)
		log.Error().Err(encErr).Msg("Failed to encode error response")
		return
	}
}

// JsonRateLimited writes a 429 carrying the wait both as a Retry-After header and
// as retry_after in the body, in whole seconds.
func JsonRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	secs := int((retryAfter + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	JsonErrorWithDetails(w, http.StatusTooManyRequests, ErrorResponse{
		Error:      "Too many requests",
		RetryAfter: secs,
	})
}

// JsonResponse writes v as JSON with the given status code
func JsonResponse(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		log := logger.For(logger.HANDLER)
		log.Error().Err(err).Msg("Failed to encode response")
	}
}
