package gpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFreeMemory(t *testing.T) {
	t.Parallel()

	free, err := ParseFreeMemory("11019\n24576\n\n")
	require.NoError(t, err)
	assert.Equal(t, []float64{11019, 24576}, free)
}

func TestParseFreeMemory_RejectsGarbage(t *testing.T) {
	t.Parallel()

	_, err := ParseFreeMemory("NVIDIA-SMI has failed")
	require.Error(t, err)
}

func TestPick_MaxFreeWins(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 2, Pick([]float64{1000, 2000, 9000, 500}))
}

func TestPick_TieGoesToFirstIndex(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1, Pick([]float64{100, 9000, 9000}))
}

func TestPick_NoDevices(t *testing.T) {
	t.Parallel()

	assert.Equal(t, -1, Pick(nil))
}
