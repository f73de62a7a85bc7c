package driven

import (
	"context"

	"github.com/tidewater-labs/siphon-cli/internal/core/domain"
)

// DatasetStore persists dataset configuration records.
// Backed by a TOML file so operators can edit datasets by hand.
type DatasetStore interface {
	// SaveDataset stores or updates a dataset.
	SaveDataset(ctx context.Context, ds *domain.Dataset) error

	// GetDataset retrieves a dataset by id.
	GetDataset(ctx context.Context, id string) (*domain.Dataset, error)

	// ListDatasets returns all configured datasets.
	ListDatasets(ctx context.Context) ([]domain.Dataset, error)

	// DeleteDataset removes a dataset's configuration. Stored data is
	// left untouched.
	DeleteDataset(ctx context.Context, id string) error
}
