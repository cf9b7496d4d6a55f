// Package error defines the API error schema and encoders.
package error

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"time"
)

// Error is the JSON body returned for every failed request.
type Error struct {
	Code              ErrorCode `json:"code"`
	Message           string    `json:"message"`
	ErrorID           string    `json:"error_id,omitempty"`
	RetryAfterSeconds int64     `json:"retry_after_seconds,omitempty"`
	Status            int       `json:"-"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// EncodeError writes the error as JSON with the code's status.
func EncodeError(w http.ResponseWriter, code ErrorCode, message, errorID string) error {
	return encode(w, &Error{
		Code:    code,
		Message: message,
		ErrorID: errorID,
		Status:  code.StatusCode(),
	})
}

// EncodeInternalError writes a generic 500 response.
func EncodeInternalError(w http.ResponseWriter, errorID string) error {
	return EncodeError(w, InternalServerError, "internal server error", errorID)
}

// EncodeRateLimited writes a 429 with a Retry-After header. The retry hint
// is rounded up so clients never retry inside the closed window.
func EncodeRateLimited(w http.ResponseWriter, retryAfter time.Duration, errorID string) error {
	seconds := int64(math.Ceil(retryAfter.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	w.Header().Set("Retry-After", fmt.Sprintf("%d", seconds))
	return encode(w, &Error{
		Code:              RateLimited,
		Message:           "rate limit exceeded",
		ErrorID:           errorID,
		RetryAfterSeconds: seconds,
		Status:            RateLimited.StatusCode(),
	})
}

func encode(w http.ResponseWriter, e *Error) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Status)
	if err := json.NewEncoder(w).Encode(e); err != nil {
		return fmt.Errorf("encoding error response: %w", err)
	}
	return nil
}
