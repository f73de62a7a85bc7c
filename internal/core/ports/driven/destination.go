package driven

import (
	"context"
	"time"

	"github.com/tidewater-labs/siphon-cli/internal/core/domain"
)

// StagingStore appends one run's canonical payloads. It is purely
// additive during a run and never touches the destination table.
type StagingStore interface {
	// BeginBatch clears residual staging rows from earlier aborted
	// runs and opens a new batch with the next monotonic batch id.
	// startedAt becomes the ingestion timestamp of every payload.
	BeginBatch(ctx context.Context, startedAt time.Time) (*domain.StagingBatch, error)

	// AppendPayloads writes one page of payloads for the batch.
	AppendPayloads(ctx context.Context, batchID int64, payloads []domain.StagedPayload) error

	// ObservedCount returns how many payloads a batch has staged.
	ObservedCount(ctx context.Context, batchID int64) (int64, error)

	// DiscardBatch removes a batch's staging rows.
	DiscardBatch(ctx context.Context, batchID int64) error
}

// PromotionStore swaps a complete staging batch into the destination
// table, all or nothing. On any failure the previous destination
// content remains intact and queryable.
type PromotionStore interface {
	// Promote builds the destination's replacement from the batch's
	// staging rows and renames it into place atomically. It re-verifies
	// the copied row count against batch.Expected inside the
	// transaction and rolls back on mismatch.
	Promote(ctx context.Context, batch *domain.StagingBatch) error

	// DestinationCount returns the committed destination's row count.
	DestinationCount(ctx context.Context) (int64, error)
}

// ViewStore installs the typed read-time projection.
type ViewStore interface {
	// InstallView drops and recreates the dataset's typed view from
	// its view spec. The view stores nothing; readers recompute it
	// per query.
	InstallView(ctx context.Context) error
}

// RunLock serializes pipeline runs per dataset. The lock lives in the
// destination database, so runs from different hosts exclude each
// other too.
type RunLock interface {
	// AcquireLock claims the dataset's run lock with a caller token.
	// Returns domain.ErrRunInProgress if another token holds it.
	AcquireLock(ctx context.Context, token string) error

	// ReleaseLock releases the lock if the token matches the holder.
	ReleaseLock(ctx context.Context, token string) error

	// BreakLock removes the dataset's lock regardless of holder, for
	// operator recovery after a crashed run.
	BreakLock(ctx context.Context) error
}

// Destination is an open connection to one dataset's destination
// database, scoped to that dataset's tables.
type Destination interface {
	StagingStore
	PromotionStore
	ViewStore
	RunLock

	// Ping verifies the connection.
	Ping(ctx context.Context) error

	// Close releases the connection.
	Close() error
}

// DestinationOpener opens destinations from dataset configuration.
// An env: DSN reference is resolved during open.
type DestinationOpener interface {
	Open(ctx context.Context, ds *domain.Dataset) (Destination, error)
}
