package hardware

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSoftRng_GetRandomBytes(t *testing.T) {
	rng := NewSoftRng()

	first, err := rng.GetRandomBytes(64)
	require.NoError(t, err, "Generation should succeed")
	assert.Len(t, first, 64)

	second, err := rng.GetRandomBytes(64)
	require.NoError(t, err)
	assert.NotEqual(t, first, second, "Consecutive outputs should differ")

	empty, err := rng.GetRandomBytes(0)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestSoftRng_AddEntropy(t *testing.T) {
	rng := NewSoftRng()

	require.NoError(t, rng.AddEntropy([]byte("caller entropy")), "Entropy injection should succeed")

	out, err := rng.GetRandomBytes(32)
	require.NoError(t, err)
	assert.Len(t, out, 32)
}
