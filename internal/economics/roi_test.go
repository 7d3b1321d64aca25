package economics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNetROI(t *testing.T) {
	assert.InDelta(t, 400.0, NetROI(0.1, 0.5), 1e-9)
	assert.Equal(t, 0.0, NetROI(0, 10))
	assert.Equal(t, 0.0, NetROI(-1, 10))
}

func TestRankPaths_OrdersByROIAndMarksFirstChosen(t *testing.T) {
	paths := StandardPaths(1.0)

	ranked := RankPaths(paths)
	require.Len(t, ranked, 3)

	// lite: (0.7-0.005)/0.005 = 13900%, hybrid: (0.95-0.04)/0.04 = 2275%, standard: 733%
	assert.Equal(t, "path_lite", ranked[0].ID)
	assert.Equal(t, "path_optimized", ranked[1].ID)
	assert.Equal(t, "path_standard", ranked[2].ID)
	assert.True(t, ranked[0].Chosen)
	assert.False(t, ranked[1].Chosen)

	// input untouched
	assert.Equal(t, "path_standard", paths[0].ID)
	assert.Zero(t, paths[0].NetROI)
}

func TestRankPaths_Empty(t *testing.T) {
	assert.Empty(t, RankPaths(nil))
}
