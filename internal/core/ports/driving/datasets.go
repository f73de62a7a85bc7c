package driving

import (
	"context"

	"github.com/tidewater-labs/siphon-cli/internal/core/domain"
)

// DatasetService manages dataset configuration records.
type DatasetService interface {
	// AddDataset validates and registers a new dataset.
	AddDataset(ctx context.Context, ds *domain.Dataset) error

	// UpdateDataset validates and replaces an existing dataset.
	UpdateDataset(ctx context.Context, ds *domain.Dataset) error

	// GetDataset retrieves a dataset by id.
	GetDataset(ctx context.Context, id string) (*domain.Dataset, error)

	// ListDatasets returns all configured datasets.
	ListDatasets(ctx context.Context) ([]domain.Dataset, error)

	// RemoveDataset removes a dataset's configuration.
	RemoveDataset(ctx context.Context, id string) error
}
