package driven

import (
	"context"

	"github.com/tidewater-labs/siphon-cli/internal/core/domain"
)

// RunStore persists run history for inspection and scheduling.
type RunStore interface {
	// SaveRun stores or updates a run by id.
	SaveRun(ctx context.Context, run *domain.Run) error

	// GetRun retrieves a run by id.
	GetRun(ctx context.Context, id string) (*domain.Run, error)

	// ListRuns returns a dataset's runs, most recent first.
	ListRuns(ctx context.Context, datasetID string, limit int) ([]domain.Run, error)

	// LastRun returns a dataset's most recent run, or
	// domain.ErrNotFound if it has never run.
	LastRun(ctx context.Context, datasetID string) (*domain.Run, error)

	// PruneRuns deletes all but the most recent keep runs for a
	// dataset.
	PruneRuns(ctx context.Context, datasetID string, keep int) error
}
