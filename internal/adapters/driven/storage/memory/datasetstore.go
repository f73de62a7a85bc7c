package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/tidewater-labs/siphon-cli/internal/core/domain"
	"github.com/tidewater-labs/siphon-cli/internal/core/ports/driven"
)

// Ensure DatasetStore implements the interface.
var _ driven.DatasetStore = (*DatasetStore)(nil)

// DatasetStore is an in-memory implementation of driven.DatasetStore.
type DatasetStore struct {
	mu       sync.RWMutex
	datasets map[string]domain.Dataset
}

// NewDatasetStore creates a new in-memory dataset store.
func NewDatasetStore() *DatasetStore {
	return &DatasetStore{
		datasets: make(map[string]domain.Dataset),
	}
}

// SaveDataset stores or updates a dataset.
func (s *DatasetStore) SaveDataset(_ context.Context, ds *domain.Dataset) error {
	if ds == nil {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.datasets[ds.ID] = *ds
	return nil
}

// GetDataset retrieves a dataset by id.
func (s *DatasetStore) GetDataset(_ context.Context, id string) (*domain.Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ds, ok := s.datasets[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &ds, nil
}

// ListDatasets returns all datasets ordered by id.
func (s *DatasetStore) ListDatasets(_ context.Context) ([]domain.Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]domain.Dataset, 0, len(s.datasets))
	for _, ds := range s.datasets {
		result = append(result, ds)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// DeleteDataset removes a dataset.
func (s *DatasetStore) DeleteDataset(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.datasets[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.datasets, id)
	return nil
}
