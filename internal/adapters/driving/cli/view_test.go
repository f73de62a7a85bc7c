package cli

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRefreshViewCmd_Use(t *testing.T) {
	assert.Equal(t, "refresh-view [dataset-id]", refreshViewCmd.Use)
}

func TestRefreshViewCmd_RequiresExactlyOneArg(t *testing.T) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"refresh-view"})
	defer func() {
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg(s)")
}

func TestRefreshViewCmd_ServiceNotConfigured(t *testing.T) {
	oldPipeline := pipelineService
	pipelineService = nil
	defer func() {
		pipelineService = oldPipeline
	}()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"refresh-view", "ds-1"})
	defer func() {
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline service not configured")
}

func TestRefreshViewCmd_Executes(t *testing.T) {
	oldPipeline := pipelineService
	pipeline := &mockPipelineService{}
	pipelineService = pipeline
	defer func() {
		pipelineService = oldPipeline
	}()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"refresh-view", "ds-1"})
	defer func() {
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()

	assert.NoError(t, err)
	assert.Contains(t, buf.String(), "View refreshed for dataset ds-1.")
	assert.Equal(t, []string{"ds-1"}, pipeline.refreshed)
}

func TestRefreshViewCmd_ServiceError(t *testing.T) {
	oldPipeline := pipelineService
	pipelineService = &mockPipelineService{err: errors.New("view build rejected")}
	defer func() {
		pipelineService = oldPipeline
	}()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"refresh-view", "ds-1"})
	defer func() {
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to refresh view")
}
