package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidewater-labs/siphon-cli/internal/core/domain"
)

// setupTestStore creates a temporary SQLite store for testing.
func setupTestStore(t *testing.T) (*Store, func()) {
	t.Helper()

	tempDir, err := os.MkdirTemp("", "siphon-test-*")
	require.NoError(t, err)

	store, err := NewStore(tempDir)
	require.NoError(t, err)
	require.NotNil(t, store)

	cleanup := func() {
		assert.NoError(t, store.Close())
		assert.NoError(t, os.RemoveAll(tempDir))
	}

	return store, cleanup
}

// testRun returns a completed run for the given dataset.
func testRun(id, datasetID string, started time.Time) *domain.Run {
	return &domain.Run{
		ID:         id,
		DatasetID:  datasetID,
		BatchID:    1,
		State:      domain.RunStateSucceeded,
		Expected:   100,
		Staged:     100,
		StartedAt:  started,
		FinishedAt: started.Add(90 * time.Second),
	}
}

// ==================== Store Creation and Initialization Tests ====================

func TestNewStore_ErrorHandling(t *testing.T) {
	// Invalid path should fail to create the directory
	_, err := NewStore("/invalid\x00path")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "creating data directory")
}

func TestNewStore_Success(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "siphon-test-*")
	require.NoError(t, err)
	defer os.RemoveAll(tempDir)

	store, err := NewStore(tempDir)
	require.NoError(t, err)
	require.NotNil(t, store)

	dbPath := filepath.Join(tempDir, "state.db")
	assert.Equal(t, dbPath, store.Path())
	_, err = os.Stat(dbPath)
	assert.NoError(t, err)

	require.NoError(t, store.Close())

	// Reopening must not re-run applied migrations
	store, err = NewStore(tempDir)
	require.NoError(t, err)
	assert.NoError(t, store.Close())
}

// ==================== Run Store Tests ====================

func TestRunStore_SaveAndGet(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	runs := store.RunStore()

	started := time.Now().UTC().Truncate(time.Second)
	run := testRun("run-1", "nyc-inspections", started)
	run.Error = ""

	require.NoError(t, runs.SaveRun(ctx, run))

	got, err := runs.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "run-1", got.ID)
	assert.Equal(t, "nyc-inspections", got.DatasetID)
	assert.Equal(t, int64(1), got.BatchID)
	assert.Equal(t, domain.RunStateSucceeded, got.State)
	assert.Equal(t, int64(100), got.Expected)
	assert.Equal(t, int64(100), got.Staged)
	assert.Empty(t, got.Error)
	assert.True(t, got.StartedAt.Equal(started))
	assert.True(t, got.FinishedAt.Equal(started.Add(90*time.Second)))
}

func TestRunStore_GetRun_NotFound(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	_, err := store.RunStore().GetRun(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRunStore_SaveRun_UpdatesInPlace(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	runs := store.RunStore()

	started := time.Now().UTC().Truncate(time.Second)
	run := &domain.Run{
		ID:        "run-1",
		DatasetID: "nyc-inspections",
		State:     domain.RunStateRunning,
		StartedAt: started,
	}
	require.NoError(t, runs.SaveRun(ctx, run))

	run.State = domain.RunStateFailed
	run.Error = "count probe failed"
	run.FinishedAt = started.Add(5 * time.Second)
	require.NoError(t, runs.SaveRun(ctx, run))

	got, err := runs.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, domain.RunStateFailed, got.State)
	assert.Equal(t, "count probe failed", got.Error)
	assert.False(t, got.FinishedAt.IsZero())

	list, err := runs.ListRuns(ctx, "nyc-inspections", 10)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestRunStore_SaveRun_RejectsInvalid(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	assert.ErrorIs(t, store.RunStore().SaveRun(ctx, nil), domain.ErrInvalidInput)
	assert.ErrorIs(t, store.RunStore().SaveRun(ctx, &domain.Run{}), domain.ErrInvalidInput)
}

func TestRunStore_ListRuns_OrdersAndLimits(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	runs := store.RunStore()

	base := time.Now().UTC().Truncate(time.Second).Add(-time.Hour)
	require.NoError(t, runs.SaveRun(ctx, testRun("run-1", "nyc-inspections", base)))
	require.NoError(t, runs.SaveRun(ctx, testRun("run-2", "nyc-inspections", base.Add(10*time.Minute))))
	require.NoError(t, runs.SaveRun(ctx, testRun("run-3", "nyc-inspections", base.Add(20*time.Minute))))
	require.NoError(t, runs.SaveRun(ctx, testRun("run-other", "chi-permits", base.Add(30*time.Minute))))

	list, err := runs.ListRuns(ctx, "nyc-inspections", 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "run-3", list[0].ID)
	assert.Equal(t, "run-2", list[1].ID)
}

func TestRunStore_LastRun(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	runs := store.RunStore()

	_, err := runs.LastRun(ctx, "nyc-inspections")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	base := time.Now().UTC().Truncate(time.Second).Add(-time.Hour)
	require.NoError(t, runs.SaveRun(ctx, testRun("run-1", "nyc-inspections", base)))
	require.NoError(t, runs.SaveRun(ctx, testRun("run-2", "nyc-inspections", base.Add(time.Minute))))

	last, err := runs.LastRun(ctx, "nyc-inspections")
	require.NoError(t, err)
	assert.Equal(t, "run-2", last.ID)
}

func TestRunStore_PruneRuns(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	runs := store.RunStore()

	base := time.Now().UTC().Truncate(time.Second).Add(-time.Hour)
	for i := 0; i < 5; i++ {
		id := string(rune('a' + i))
		require.NoError(t, runs.SaveRun(ctx, testRun("run-"+id, "nyc-inspections", base.Add(time.Duration(i)*time.Minute))))
	}
	require.NoError(t, runs.SaveRun(ctx, testRun("run-other", "chi-permits", base)))

	require.NoError(t, runs.PruneRuns(ctx, "nyc-inspections", 2))

	list, err := runs.ListRuns(ctx, "nyc-inspections", 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "run-e", list[0].ID)
	assert.Equal(t, "run-d", list[1].ID)

	// Other datasets keep their history
	other, err := runs.ListRuns(ctx, "chi-permits", 10)
	require.NoError(t, err)
	assert.Len(t, other, 1)
}
