package cli

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tidewater-labs/siphon-cli/internal/core/domain"
)

func TestPreviewCmd_Use(t *testing.T) {
	assert.Equal(t, "preview [dataset-id]", previewCmd.Use)
}

func TestPreviewCmd_RequiresExactlyOneArg(t *testing.T) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"preview"})
	defer func() {
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg(s)")
}

func TestPreviewCmd_ServiceNotConfigured(t *testing.T) {
	oldPipeline := pipelineService
	pipelineService = nil
	defer func() {
		pipelineService = oldPipeline
	}()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"preview", "ds-1"})
	defer func() {
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline service not configured")
}

func TestPreviewCmd_TypedColumns(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()
	pipelineService = &mockPipelineService{
		records: []domain.Record{
			{"permit_id": "P-100", "issued_date": "2020-01-02T00:00:00.000"},
			{"permit_id": "P-101"},
		},
	}

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"preview", "ds-1"})
	defer func() {
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()

	assert.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "permit_id")
	assert.Contains(t, out, "issued")
	// The lenient date cast keeps the date part of a timestamp.
	assert.Contains(t, out, "2020-01-02")
	// The record without issued_date projects NULL, as the view would.
	assert.Contains(t, out, "NULL")
}

func TestPreviewCmd_JSONOutput(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()
	pipelineService = &mockPipelineService{
		records: []domain.Record{
			{"permit_id": "P-100", "status": "issued"},
			{"permit_id": "P-101", "status": "pending"},
		},
	}

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"preview", "ds-1", "--json"})
	defer func() {
		rootCmd.SetArgs(nil)
		previewJSON = false
	}()

	err := rootCmd.Execute()

	assert.NoError(t, err)
	assert.Contains(t, buf.String(), `{"permit_id":"P-100","status":"issued"}`)
	assert.Contains(t, buf.String(), `{"permit_id":"P-101","status":"pending"}`)
}

func TestPreviewCmd_EmptySource(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"preview", "ds-1"})
	defer func() {
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()

	assert.NoError(t, err)
	assert.Contains(t, buf.String(), "Source returned no records.")
}

func TestPreviewCmd_UnknownDataset(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"preview", "no-such-dataset"})
	defer func() {
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()

	assert.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPreviewCmd_ServiceError(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()
	pipelineService = &mockPipelineService{err: errors.New("403 forbidden")}

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"preview", "ds-1"})
	defer func() {
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "preview failed")
}
