package soda

import (
	"errors"
	"fmt"
	"time"

	"github.com/tidewater-labs/siphon-cli/internal/core/domain"
)

// Source-specific errors.
var (
	// ErrCursorStalled indicates the server returned a next-page link
	// equal to the current page. Pagination must advance strictly or
	// the fetch would never terminate.
	ErrCursorStalled = errors.New("soda: pagination cursor did not advance")

	// ErrCountUnavailable indicates the count probe returned no usable
	// total.
	ErrCountUnavailable = errors.New("soda: record count unavailable")

	// ErrRetriesExhausted indicates a transient failure outlived the
	// retry ceiling. The run fails; partial fetches are never staged
	// as complete.
	ErrRetriesExhausted = errors.New("soda: retries exhausted")
)

// RateLimitError represents a rate limit rejection with reset time.
type RateLimitError struct {
	ResetAt   time.Time
	Remaining int
	Limit     int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("soda: rate limit exceeded, resets at %s", e.ResetAt.Format(time.RFC3339))
}

// Is matches the domain-level rate limit sentinel, so callers outside
// this package can test with errors.Is(err, domain.ErrRateLimited).
func (e *RateLimitError) Is(target error) bool {
	return target == domain.ErrRateLimited
}

// APIError represents a source API error response.
type APIError struct {
	StatusCode int
	Message    string
	URL        string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("soda: API error %d: %s (URL: %s)", e.StatusCode, e.Message, e.URL)
}

// IsRateLimited checks if the error indicates rate limiting.
func IsRateLimited(err error) bool {
	var rateLimitErr *RateLimitError
	return errors.As(err, &rateLimitErr)
}

// IsUnauthorized checks if the error indicates an authentication failure.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 401
	}
	return false
}

// IsForbidden checks if the error indicates a forbidden resource.
func IsForbidden(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 403
	}
	return false
}

// IsRetryable checks if the error is worth retrying: rate limits,
// request timeouts and server-side failures. Authentication and client
// errors fail immediately.
func IsRetryable(err error) bool {
	if IsRateLimited(err) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 408 || apiErr.StatusCode >= 500
	}
	return false
}
