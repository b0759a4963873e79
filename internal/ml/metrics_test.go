package ml

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAccuracy(t *testing.T) {
	targets := []float64{1, 0, 1, 0}
	scores := []float64{0.9, 0.2, 0.4, 0.6}
	assert.InDelta(t, 0.5, Accuracy(targets, scores), 1e-12)
	assert.Equal(t, 0.0, Accuracy(nil, nil))
}

func TestPrecisionRecall(t *testing.T) {
	// 2 true positives, 1 false positive, 1 false negative.
	targets := []float64{1, 1, 0, 1, 0}
	scores := []float64{0.9, 0.8, 0.7, 0.1, 0.2}

	precision, recall := PrecisionRecall(targets, scores)
	assert.InDelta(t, 2.0/3.0, precision, 1e-12)
	assert.InDelta(t, 2.0/3.0, recall, 1e-12)
}

func TestPrecisionRecallEmptyDenominators(t *testing.T) {
	// No predicted positives and no actual positives.
	precision, recall := PrecisionRecall([]float64{0, 0}, []float64{0.1, 0.2})
	assert.Equal(t, 0.0, precision)
	assert.Equal(t, 0.0, recall)
}

func TestAUC(t *testing.T) {
	tests := []struct {
		name    string
		targets []float64
		scores  []float64
		want    float64
	}{
		{
			name:    "perfect ranking",
			targets: []float64{0, 0, 1, 1},
			scores:  []float64{0.1, 0.2, 0.8, 0.9},
			want:    1.0,
		},
		{
			name:    "inverted ranking",
			targets: []float64{0, 0, 1, 1},
			scores:  []float64{0.9, 0.8, 0.2, 0.1},
			want:    0.0,
		},
		{
			name:    "partial ranking",
			targets: []float64{1, 0, 1, 0},
			scores:  []float64{0.9, 0.8, 0.7, 0.1},
			want:    0.75,
		},
		{
			name:    "all scores tied",
			targets: []float64{1, 0, 1, 0},
			scores:  []float64{0.5, 0.5, 0.5, 0.5},
			want:    0.5,
		},
		{
			name:    "single class",
			targets: []float64{1, 1, 1},
			scores:  []float64{0.1, 0.5, 0.9},
			want:    0.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, AUC(tt.targets, tt.scores), 1e-12)
		})
	}
}

func TestRMSEAndMAE(t *testing.T) {
	targets := []float64{1, 2, 3}
	estimates := []float64{2, 2, 5}

	// Squared errors 1, 0, 4; absolute errors 1, 0, 2.
	assert.InDelta(t, 1.2909944487358056, RMSE(targets, estimates), 1e-12)
	assert.InDelta(t, 1.0, MAE(targets, estimates), 1e-12)

	assert.Equal(t, 0.0, RMSE(nil, nil))
	assert.Equal(t, 0.0, MAE(nil, nil))
}
