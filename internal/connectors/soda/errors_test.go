package soda

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tidewater-labs/siphon-cli/internal/core/domain"
)

func TestRateLimitError_MatchesDomainSentinel(t *testing.T) {
	err := fmt.Errorf("fetching page 3: %w", &RateLimitError{ResetAt: time.Now().Add(time.Minute)})

	assert.True(t, errors.Is(err, domain.ErrRateLimited))
	assert.True(t, IsRateLimited(err))

	assert.False(t, errors.Is(errors.New("boom"), domain.ErrRateLimited))
	assert.False(t, errors.Is(&APIError{StatusCode: 500}, domain.ErrRateLimited))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(&RateLimitError{}))
	assert.True(t, IsRetryable(&APIError{StatusCode: 503}))
	assert.True(t, IsRetryable(&APIError{StatusCode: 408}))

	assert.False(t, IsRetryable(&APIError{StatusCode: 401}))
	assert.False(t, IsRetryable(&APIError{StatusCode: 404}))
	assert.False(t, IsRetryable(errors.New("parse failure")))
}
