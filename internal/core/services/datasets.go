package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/tidewater-labs/siphon-cli/internal/core/domain"
	"github.com/tidewater-labs/siphon-cli/internal/core/ports/driven"
	"github.com/tidewater-labs/siphon-cli/internal/core/ports/driving"
)

var _ driving.DatasetService = (*DatasetManager)(nil)

// DatasetManager manages dataset configuration records on top of the
// registry store.
type DatasetManager struct {
	store driven.DatasetStore
}

// NewDatasetManager creates a dataset manager over the given store.
func NewDatasetManager(store driven.DatasetStore) *DatasetManager {
	return &DatasetManager{store: store}
}

// AddDataset validates and registers a new dataset. Adding an id that
// already exists fails; use UpdateDataset to change one.
func (m *DatasetManager) AddDataset(ctx context.Context, ds *domain.Dataset) error {
	if err := validateDataset(ds); err != nil {
		return err
	}
	if _, err := m.store.GetDataset(ctx, ds.ID); err == nil {
		return fmt.Errorf("dataset %q: %w", ds.ID, domain.ErrAlreadyExists)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("checking dataset %q: %w", ds.ID, err)
	}
	return m.store.SaveDataset(ctx, ds)
}

// UpdateDataset validates and replaces an existing dataset.
func (m *DatasetManager) UpdateDataset(ctx context.Context, ds *domain.Dataset) error {
	if err := validateDataset(ds); err != nil {
		return err
	}
	if _, err := m.store.GetDataset(ctx, ds.ID); err != nil {
		return fmt.Errorf("dataset %q: %w", ds.ID, err)
	}
	return m.store.SaveDataset(ctx, ds)
}

// GetDataset retrieves a dataset by id.
func (m *DatasetManager) GetDataset(ctx context.Context, id string) (*domain.Dataset, error) {
	return m.store.GetDataset(ctx, id)
}

// ListDatasets returns all configured datasets.
func (m *DatasetManager) ListDatasets(ctx context.Context) ([]domain.Dataset, error) {
	return m.store.ListDatasets(ctx)
}

// RemoveDataset removes a dataset's configuration. Data already in the
// destination stays as it is.
func (m *DatasetManager) RemoveDataset(ctx context.Context, id string) error {
	return m.store.DeleteDataset(ctx, id)
}

// validateDataset layers schedule parsing on top of the domain checks.
// Cron syntax is a service concern so the domain stays free of it.
func validateDataset(ds *domain.Dataset) error {
	if ds == nil {
		return fmt.Errorf("%w: nil dataset", domain.ErrInvalidInput)
	}
	if err := ds.Validate(); err != nil {
		return err
	}
	if ds.Schedule != "" {
		if _, err := cron.ParseStandard(ds.Schedule); err != nil {
			return fmt.Errorf("%w: schedule %q: %v", domain.ErrInvalidInput, ds.Schedule, err)
		}
	}
	return nil
}
