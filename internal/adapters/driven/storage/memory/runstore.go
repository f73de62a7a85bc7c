package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/tidewater-labs/siphon-cli/internal/core/domain"
	"github.com/tidewater-labs/siphon-cli/internal/core/ports/driven"
)

// Ensure RunStore implements the interface.
var _ driven.RunStore = (*RunStore)(nil)

// RunStore is an in-memory implementation of driven.RunStore.
type RunStore struct {
	mu   sync.RWMutex
	runs map[string]domain.Run
}

// NewRunStore creates a new in-memory run store.
func NewRunStore() *RunStore {
	return &RunStore{
		runs: make(map[string]domain.Run),
	}
}

// SaveRun stores or updates a run by id.
func (s *RunStore) SaveRun(_ context.Context, run *domain.Run) error {
	if run == nil || run.ID == "" {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = *run
	return nil
}

// GetRun retrieves a run by id.
func (s *RunStore) GetRun(_ context.Context, id string) (*domain.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &run, nil
}

// ListRuns returns a dataset's runs, most recent first.
func (s *RunStore) ListRuns(_ context.Context, datasetID string, limit int) ([]domain.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := s.datasetRuns(datasetID)
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// LastRun returns a dataset's most recent run.
func (s *RunStore) LastRun(_ context.Context, datasetID string) (*domain.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	runs := s.datasetRuns(datasetID)
	if len(runs) == 0 {
		return nil, domain.ErrNotFound
	}
	return &runs[0], nil
}

// PruneRuns deletes all but the most recent keep runs for a dataset.
func (s *RunStore) PruneRuns(_ context.Context, datasetID string, keep int) error {
	if keep < 0 {
		keep = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	runs := s.datasetRuns(datasetID)
	if len(runs) <= keep {
		return nil
	}
	for _, run := range runs[keep:] {
		delete(s.runs, run.ID)
	}
	return nil
}

// datasetRuns returns a dataset's runs sorted most recent first.
// Callers must hold at least a read lock.
func (s *RunStore) datasetRuns(datasetID string) []domain.Run {
	var result []domain.Run
	for _, run := range s.runs {
		if run.DatasetID == datasetID {
			result = append(result, run)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].StartedAt.Equal(result[j].StartedAt) {
			return result[i].StartedAt.After(result[j].StartedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result
}
