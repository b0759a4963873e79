package ml

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// diagonalCloud spreads points along (1,1,0) with a sliver of variance on
// the third axis, chosen orthogonal to the diagonal so the first component
// is exactly the diagonal itself.
func diagonalCloud() [][]float64 {
	return [][]float64{
		{-2, -2, 0.1}, {-1, -1, -0.1}, {0, 0, 0},
		{1, 1, 0}, {2, 2, -0.1}, {3, 3, 0.1},
	}
}

func TestFitPCA2FindsDominantDirection(t *testing.T) {
	X := diagonalCloud()

	projection, err := FitPCA2(X)
	require.NoError(t, err)

	assert.Greater(t, projection.Explained[0], 0.9)

	invSqrt2 := 1 / math.Sqrt2
	assert.InDelta(t, invSqrt2, math.Abs(projection.Components.At(0, 0)), 1e-6)
	assert.InDelta(t, invSqrt2, math.Abs(projection.Components.At(1, 0)), 1e-6)
	assert.InDelta(t, 0, projection.Components.At(2, 0), 1e-6)
}

func TestProjectCentersOnColumnMeans(t *testing.T) {
	X := [][]float64{
		{1, 4, 2}, {3, 0, 5}, {2, 2, 2}, {4, 1, 3},
	}

	projection, err := FitPCA2(X)
	require.NoError(t, err)

	x, y := projection.Project(projection.ColMeans)
	assert.InDelta(t, 0, x, 1e-12)
	assert.InDelta(t, 0, y, 1e-12)
}

func TestFitPCA2SignConvention(t *testing.T) {
	projection, err := FitPCA2(diagonalCloud())
	require.NoError(t, err)

	// The largest-magnitude loading in each component is positive.
	for c := 0; c < 2; c++ {
		largest := 0.0
		for j := 0; j < 3; j++ {
			if v := projection.Components.At(j, c); math.Abs(v) > math.Abs(largest) {
				largest = v
			}
		}
		assert.Greater(t, largest, 0.0, "component %d sign should be fixed positive", c)
	}
}

func TestFitPCA2RejectsSmallInputs(t *testing.T) {
	_, err := FitPCA2([][]float64{{1, 2}})
	assert.Error(t, err)

	_, err = FitPCA2([][]float64{{1}, {2}, {3}})
	assert.Error(t, err)
}
