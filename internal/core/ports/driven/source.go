package driven

import (
	"context"

	"github.com/tidewater-labs/siphon-cli/internal/core/domain"
)

// SourceClient fetches records from one dataset's paginated API.
// It never writes to any store; its only side effect is network I/O.
type SourceClient interface {
	// Count returns the source-reported total record count. Captured
	// once at run start, it becomes the batch's expected count.
	Count(ctx context.Context) (int64, error)

	// Fetch streams every record in pagination order.
	// Returns channels for records and errors; both close when the
	// fetch finishes. A value on the error channel ends the stream:
	// transient failures have already been retried by then.
	Fetch(ctx context.Context) (<-chan domain.Record, <-chan error)

	// Validate makes a lightweight authenticated probe so
	// misconfiguration fails before any staging work begins.
	Validate(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// SourceClientFactory creates source clients from dataset configuration.
type SourceClientFactory interface {
	// NewClient builds a client for the dataset's source. An env:
	// access key reference is resolved during construction.
	NewClient(cfg domain.SourceConfig, retry domain.RetryPolicy) (SourceClient, error)
}
