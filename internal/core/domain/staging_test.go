package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestStagingBatch_Complete tests the completeness gate
func TestStagingBatch_Complete(t *testing.T) {
	b := StagingBatch{Expected: 3, Observed: 3}
	assert.True(t, b.Complete())

	b.Observed = 2
	assert.False(t, b.Complete())

	// Over-observation is just as incomplete; something double-staged.
	b.Observed = 4
	assert.False(t, b.Complete())
}

// TestStagingBatch_EmptySource tests the zero-record batch
func TestStagingBatch_EmptySource(t *testing.T) {
	b := StagingBatch{Expected: 0, Observed: 0}
	assert.True(t, b.Complete())
}
