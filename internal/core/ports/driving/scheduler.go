package driving

import "context"

// Scheduler runs datasets on their cron schedules.
type Scheduler interface {
	// Start begins the scheduling loop.
	// Blocks until the context is cancelled or an error occurs.
	Start(ctx context.Context) error

	// Stop gracefully stops the loop, waiting for an in-flight run to
	// finish.
	Stop() error

	// Reload re-reads dataset schedules, picking up config edits
	// without a restart.
	Reload(ctx context.Context) error
}
