package hashing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchHashIsOrderIndependent(t *testing.T) {
	a, err := BatchHash([]any{"x", "y", "z"})
	require.NoError(t, err)
	b, err := BatchHash([]any{"z", "x", "y"})
	require.NoError(t, err)

	assert.Equal(t, a.BatchHash, b.BatchHash)
	assert.NotEqual(t, a.IndividualHashes, b.IndividualHashes)
	assert.True(t, VerifyBatch(a))
}

func TestBatchSpotCheck(t *testing.T) {
	items := []any{"x", "y", "z"}
	d, err := BatchHash(items)
	require.NoError(t, err)

	assert.True(t, SpotCheck("y", 1, d))
	assert.False(t, SpotCheck("y", 0, d))
	assert.False(t, SpotCheck("y", 7, d))

	d.IndividualHashes[2] = d.IndividualHashes[0]
	assert.False(t, VerifyBatch(d))
}
