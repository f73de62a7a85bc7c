package cli

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tidewater-labs/siphon-cli/internal/core/domain"
)

func TestRunCmd_Use(t *testing.T) {
	assert.Equal(t, "run [dataset-id]", runCmd.Use)
}

func TestRunCmd_Short(t *testing.T) {
	assert.Equal(t, "Run the ingestion pipeline for a dataset", runCmd.Short)
}

func TestRunCmd_RequiresExactlyOneArg(t *testing.T) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"run"})
	defer func() {
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg(s)")
}

func TestRunCmd_ServiceNotConfigured(t *testing.T) {
	oldPipeline := pipelineService
	pipelineService = nil
	defer func() {
		pipelineService = oldPipeline
	}()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"run", "ds-1"})
	defer func() {
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline service not configured")
}

func TestRunCmd_Executes(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"run", "ds-1"})
	defer func() {
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()

	assert.NoError(t, err)
	assert.Contains(t, buf.String(), "Refreshing dataset: ds-1")
	assert.Contains(t, buf.String(), "Dataset ds-1 refreshed: 3 records promoted")
}

func TestRunCmd_ServiceError(t *testing.T) {
	oldPipeline := pipelineService
	pipelineService = &mockPipelineService{err: errors.New("source unreachable")}
	defer func() {
		pipelineService = oldPipeline
	}()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"run", "ds-1"})
	defer func() {
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "run failed")
	assert.Contains(t, err.Error(), "source unreachable")
}

func TestActiveStatus(t *testing.T) {
	pipeline := &mockPipelineService{
		active: []domain.RunStatus{
			{RunID: "run-a", DatasetID: "ds-a", RecordsStaged: 10},
			{RunID: "run-b", DatasetID: "ds-b", RecordsStaged: 20},
		},
	}

	st, ok := activeStatus(pipeline, "ds-b")
	assert.True(t, ok)
	assert.Equal(t, "run-b", st.RunID)
	assert.Equal(t, int64(20), st.RecordsStaged)

	_, ok = activeStatus(pipeline, "ds-c")
	assert.False(t, ok)
}
