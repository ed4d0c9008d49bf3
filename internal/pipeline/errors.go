package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrNetwork wraps failures where no response was received.
	ErrNetwork = errors.New("network error")
	// ErrUnauthorized matches any *APIError with status 401.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrRateLimited matches any *APIError with status 429.
	ErrRateLimited = errors.New("rate limited")
)

// DefaultRetryAfter applies when a 429 carries no hint.
const DefaultRetryAfter = 60 * time.Second

// maxErrorBody caps how much of an error response is read.
const maxErrorBody = 1 << 20

// APIError is a non-2xx response. Body holds the decoded JSON object when there was one.
type APIError struct {
	Status     int
	Message    string
	Body       map[string]any
	RetryAfter time.Duration
	Method     string
	Path       string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("Request failed with status code %d", e.Status)
}

func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	case ErrRateLimited:
		return e.Status == http.StatusTooManyRequests
	}
	return false
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// newAPIError drains and closes the response body.
func newAPIError(req *http.Request, resp *http.Response) *APIError {
	defer resp.Body.Close()

	apiErr := &APIError{
		Status: resp.StatusCode,
		Method: req.Method,
		Path:   req.URL.Path,
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var body map[string]any
	if len(raw) > 0 && json.Unmarshal(raw, &body) == nil {
		apiErr.Body = body
	}
	apiErr.Message = messageFrom(body)
	if apiErr.Message == "" && len(raw) > 0 && body == nil {
		apiErr.Message = strings.TrimSpace(string(raw))
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		apiErr.RetryAfter = retryAfter(body, resp.Header)
		apiErr.Message = fmt.Sprintf("Too many requests. Please try again in %d seconds.",
			int64(apiErr.RetryAfter/time.Second))
	}
	return apiErr
}

func messageFrom(body map[string]any) string {
	if body == nil {
		return ""
	}
	if msg, ok := body["message"].(string); ok && msg != "" {
		return msg
	}
	switch e := body["error"].(type) {
	case string:
		return e
	case map[string]any:
		if msg, ok := e["message"].(string); ok {
			return msg
		}
	}
	return ""
}

// retryAfter prefers the body's retry_after, then the Retry-After header.
func retryAfter(body map[string]any, header http.Header) time.Duration {
	if body != nil {
		switch v := body["retry_after"].(type) {
		case float64:
			if v > 0 {
				return time.Duration(v) * time.Second
			}
		case string:
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				return time.Duration(n) * time.Second
			}
		}
	}
	if n, err := strconv.Atoi(header.Get("Retry-After")); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	return DefaultRetryAfter
}
