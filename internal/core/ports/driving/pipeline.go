package driving

import (
	"context"

	"github.com/tidewater-labs/siphon-cli/internal/core/domain"
)

// PipelineService executes and inspects ingestion runs.
type PipelineService interface {
	// Run executes the full pipeline for a dataset: count, fetch,
	// stage, promote, refresh view. The returned run carries the final
	// state; err is non-nil whenever the run failed. The destination
	// is unchanged unless the run succeeded.
	Run(ctx context.Context, datasetID string) (*domain.Run, error)

	// Preview fetches up to limit records from the source without
	// touching any store.
	Preview(ctx context.Context, datasetID string, limit int) ([]domain.Record, error)

	// RefreshView reinstalls the dataset's typed view from its current
	// view spec without running the pipeline.
	RefreshView(ctx context.Context, datasetID string) error

	// BreakLock force-releases the dataset's destination run lock.
	// Only for operator recovery after a crashed run left the lock
	// behind; breaking the lock of a live run corrupts it.
	BreakLock(ctx context.Context, datasetID string) error

	// ActiveRuns returns live snapshots of in-flight runs.
	ActiveRuns() []domain.RunStatus

	// RunHistory returns a dataset's recent runs, most recent first.
	RunHistory(ctx context.Context, datasetID string, limit int) ([]domain.Run, error)
}
