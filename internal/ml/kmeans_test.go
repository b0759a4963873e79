package ml

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// twoBlobs returns points in two well-separated 2D clusters: the first
// half around (0,0), the second around (10,10).
func twoBlobs() [][]float64 {
	return [][]float64{
		{0.0, 0.1}, {0.2, -0.1}, {-0.1, 0.0}, {0.1, 0.2},
		{10.0, 10.1}, {10.2, 9.9}, {9.8, 10.0}, {10.1, 10.2},
	}
}

func TestFitKMeansSeparatesBlobs(t *testing.T) {
	points := twoBlobs()
	result, err := FitKMeans(points, 2, 100, rand.New(rand.NewSource(42)))
	require.NoError(t, err)

	require.Len(t, result.Labels, len(points))
	for _, label := range result.Labels {
		assert.GreaterOrEqual(t, label, 0)
		assert.Less(t, label, 2)
	}

	// Every point in a blob shares a label, and the blobs differ.
	first := result.Labels[0]
	second := result.Labels[4]
	assert.NotEqual(t, first, second)
	for i := 0; i < 4; i++ {
		assert.Equal(t, first, result.Labels[i], "point %d should sit in the first blob", i)
	}
	for i := 4; i < 8; i++ {
		assert.Equal(t, second, result.Labels[i], "point %d should sit in the second blob", i)
	}

	// Centroids land near the blob centers, so WSS stays small.
	assert.Less(t, result.WSS, 1.0)
}

func TestFitKMeansDeterministicForSeed(t *testing.T) {
	points := twoBlobs()

	first, err := FitKMeans(points, 2, 100, rand.New(rand.NewSource(7)))
	require.NoError(t, err)
	second, err := FitKMeans(points, 2, 100, rand.New(rand.NewSource(7)))
	require.NoError(t, err)

	assert.Equal(t, first.Labels, second.Labels)
	assert.Equal(t, first.Centroids, second.Centroids)
	assert.Equal(t, first.WSS, second.WSS)
}

func TestFitKMeansRejectsDegenerateRequests(t *testing.T) {
	tests := []struct {
		name   string
		points [][]float64
		k      int
	}{
		{
			name:   "zero clusters",
			points: twoBlobs(),
			k:      0,
		},
		{
			name:   "more clusters than points",
			points: [][]float64{{1, 1}, {2, 2}},
			k:      3,
		},
		{
			name:   "more clusters than distinct points",
			points: [][]float64{{1, 1}, {1, 1}, {1, 1}, {2, 2}},
			k:      3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FitKMeans(tt.points, tt.k, 100, rand.New(rand.NewSource(1)))
			assert.Error(t, err)
		})
	}
}

func TestCountDistinct(t *testing.T) {
	points := [][]float64{
		{1, 2}, {1, 2}, {1, 2.0000001}, {3, 4},
	}
	assert.Equal(t, 3, CountDistinct(points))
	assert.Equal(t, 0, CountDistinct(nil))
}
