package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/tidewater-labs/siphon-cli/internal/core/domain"
	"github.com/tidewater-labs/siphon-cli/internal/core/ports/driven"
)

// Ensure DatasetStore implements the interface.
var _ driven.DatasetStore = (*DatasetStore)(nil)

// DatasetStore is a TOML-backed implementation of driven.DatasetStore.
// The whole registry lives in one file keyed by dataset id.
type DatasetStore struct {
	mu       sync.RWMutex
	filePath string
	datasets map[string]datasetRecord
}

// document is the on-disk shape: one [datasets.<id>] table per dataset.
type document struct {
	Datasets map[string]datasetRecord `toml:"datasets"`
}

// datasetRecord mirrors domain.Dataset in TOML-friendly form. Delays
// are duration strings ("500ms", "30s") so hand edits stay readable.
type datasetRecord struct {
	Name        string            `toml:"name,omitempty"`
	Schedule    string            `toml:"schedule,omitempty"`
	Source      sourceRecord      `toml:"source"`
	Destination destinationRecord `toml:"destination"`
	View        viewRecord        `toml:"view"`
	Retry       retryRecord       `toml:"retry,omitempty"`
	CreatedAt   time.Time         `toml:"created_at,omitempty"`
	UpdatedAt   time.Time         `toml:"updated_at,omitempty"`
}

type sourceRecord struct {
	Endpoint   string  `toml:"endpoint"`
	AccessKey  string  `toml:"access_key,omitempty"`
	Auth       string  `toml:"auth,omitempty"`
	PageSize   int     `toml:"page_size,omitempty"`
	Pagination string  `toml:"pagination,omitempty"`
	RateLimit  float64 `toml:"rate_limit,omitempty"`
}

type destinationRecord struct {
	Dialect string `toml:"dialect"`
	DSN     string `toml:"dsn"`
	Table   string `toml:"table"`
}

type viewRecord struct {
	Name       string         `toml:"name,omitempty"`
	NaturalKey []string       `toml:"natural_key"`
	Columns    []columnRecord `toml:"columns"`
}

type columnRecord struct {
	Name  string `toml:"name"`
	Field string `toml:"field"`
	Type  string `toml:"type"`
	Cast  string `toml:"cast,omitempty"`
}

type retryRecord struct {
	MaxRetries int    `toml:"max_retries,omitempty"`
	BaseDelay  string `toml:"base_delay,omitempty"`
	MaxDelay   string `toml:"max_delay,omitempty"`
}

// NewDatasetStore opens the registry at filePath, creating the parent
// directory when needed. An empty path defaults to
// ~/.siphon/datasets.toml.
func NewDatasetStore(filePath string) (*DatasetStore, error) {
	if filePath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		filePath = filepath.Join(home, ".siphon", "datasets.toml")
	}

	if err := os.MkdirAll(filepath.Dir(filePath), 0700); err != nil {
		return nil, err
	}

	s := &DatasetStore{
		filePath: filePath,
		datasets: make(map[string]datasetRecord),
	}

	if err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

// SaveDataset validates and stores a dataset, stamping CreatedAt on
// first save and UpdatedAt on every save, then persists immediately.
func (s *DatasetStore) SaveDataset(_ context.Context, ds *domain.Dataset) error {
	if ds == nil {
		return fmt.Errorf("%w: dataset is nil", domain.ErrInvalidInput)
	}
	if err := ds.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC().Truncate(time.Second)
	if existing, ok := s.datasets[ds.ID]; ok {
		ds.CreatedAt = existing.CreatedAt
	} else if ds.CreatedAt.IsZero() {
		ds.CreatedAt = now
	}
	ds.UpdatedAt = now

	s.datasets[ds.ID] = toRecord(ds)
	return s.save()
}

// GetDataset retrieves a dataset by id.
func (s *DatasetStore) GetDataset(_ context.Context, id string) (*domain.Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.datasets[id]
	if !ok {
		return nil, fmt.Errorf("%w: dataset %q", domain.ErrNotFound, id)
	}
	ds, err := fromRecord(id, rec)
	if err != nil {
		return nil, err
	}
	return &ds, nil
}

// ListDatasets returns all datasets ordered by id.
func (s *DatasetStore) ListDatasets(_ context.Context) ([]domain.Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.datasets))
	for id := range s.datasets {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]domain.Dataset, 0, len(ids))
	for _, id := range ids {
		ds, err := fromRecord(id, s.datasets[id])
		if err != nil {
			return nil, err
		}
		out = append(out, ds)
	}
	return out, nil
}

// DeleteDataset removes a dataset's registry entry. Data already loaded
// into its destination is left untouched.
func (s *DatasetStore) DeleteDataset(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.datasets[id]; !ok {
		return fmt.Errorf("%w: dataset %q", domain.ErrNotFound, id)
	}
	delete(s.datasets, id)
	return s.save()
}

// Load reads the registry from disk, replacing the in-memory state. A
// missing file is an empty registry. Called by the constructor and by
// the watch daemon when the file changes.
func (s *DatasetStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			s.datasets = make(map[string]datasetRecord)
			return nil
		}
		return err
	}

	var doc document
	if err := toml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parsing %s: %w", s.filePath, err)
	}
	if doc.Datasets == nil {
		doc.Datasets = make(map[string]datasetRecord)
	}
	s.datasets = doc.Datasets
	return nil
}

// Path returns the registry file path.
func (s *DatasetStore) Path() string {
	return s.filePath
}

// save writes the registry through a temp file and rename (caller must
// hold the lock).
func (s *DatasetStore) save() error {
	data, err := toml.Marshal(document{Datasets: s.datasets})
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.filePath)
	tmp, err := os.CreateTemp(dir, ".datasets-*.toml")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close() //nolint:errcheck
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), s.filePath); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}

func toRecord(ds *domain.Dataset) datasetRecord {
	cols := make([]columnRecord, len(ds.View.Columns))
	for i, c := range ds.View.Columns {
		cols[i] = columnRecord{
			Name:  c.Name,
			Field: c.Field,
			Type:  string(c.Type),
			Cast:  string(c.Cast),
		}
	}

	rec := datasetRecord{
		Name:     ds.Name,
		Schedule: ds.Schedule,
		Source: sourceRecord{
			Endpoint:   ds.Source.Endpoint,
			AccessKey:  ds.Source.AccessKey,
			Auth:       string(ds.Source.Auth),
			PageSize:   ds.Source.PageSize,
			Pagination: string(ds.Source.Pagination),
			RateLimit:  ds.Source.RateLimit,
		},
		Destination: destinationRecord{
			Dialect: string(ds.Destination.Dialect),
			DSN:     ds.Destination.DSN,
			Table:   ds.Destination.Table,
		},
		View: viewRecord{
			Name:       ds.View.Name,
			NaturalKey: ds.View.NaturalKey,
			Columns:    cols,
		},
		CreatedAt: ds.CreatedAt,
		UpdatedAt: ds.UpdatedAt,
	}

	if ds.Retry != (domain.RetryPolicy{}) {
		rec.Retry = retryRecord{MaxRetries: ds.Retry.MaxRetries}
		if ds.Retry.BaseDelay != 0 {
			rec.Retry.BaseDelay = ds.Retry.BaseDelay.String()
		}
		if ds.Retry.MaxDelay != 0 {
			rec.Retry.MaxDelay = ds.Retry.MaxDelay.String()
		}
	}
	return rec
}

func fromRecord(id string, rec datasetRecord) (domain.Dataset, error) {
	cols := make([]domain.ViewColumn, len(rec.View.Columns))
	for i, c := range rec.View.Columns {
		cols[i] = domain.ViewColumn{
			Name:  c.Name,
			Field: c.Field,
			Type:  domain.ColumnType(c.Type),
			Cast:  domain.CastRule(c.Cast),
		}
	}

	retry := domain.RetryPolicy{MaxRetries: rec.Retry.MaxRetries}
	var err error
	if retry.BaseDelay, err = parseDelay(rec.Retry.BaseDelay); err != nil {
		return domain.Dataset{}, fmt.Errorf("dataset %q: retry base_delay: %w", id, err)
	}
	if retry.MaxDelay, err = parseDelay(rec.Retry.MaxDelay); err != nil {
		return domain.Dataset{}, fmt.Errorf("dataset %q: retry max_delay: %w", id, err)
	}

	return domain.Dataset{
		ID:       id,
		Name:     rec.Name,
		Schedule: rec.Schedule,
		Source: domain.SourceConfig{
			Endpoint:   rec.Source.Endpoint,
			AccessKey:  rec.Source.AccessKey,
			Auth:       domain.AuthScheme(rec.Source.Auth),
			PageSize:   rec.Source.PageSize,
			Pagination: domain.PageMode(rec.Source.Pagination),
			RateLimit:  rec.Source.RateLimit,
		},
		Destination: domain.DestinationConfig{
			Dialect: domain.Dialect(rec.Destination.Dialect),
			DSN:     rec.Destination.DSN,
			Table:   rec.Destination.Table,
		},
		View: domain.ViewSpec{
			Name:       rec.View.Name,
			NaturalKey: rec.View.NaturalKey,
			Columns:    cols,
		},
		Retry:     retry,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}, nil
}

func parseDelay(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}
