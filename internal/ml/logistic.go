package ml

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

// LogisticRegression is a binary classifier trained with full-batch gradient
// descent. Training is deterministic: zero weight initialization, a fixed
// iteration count, and no sampling.
type LogisticRegression struct {
	Weights []float64
	Bias    float64

	LearningRate float64
	Iterations   int
	L2Penalty    float64
}

// NewLogisticRegression returns a classifier with training defaults tuned
// for standardized features.
func NewLogisticRegression() *LogisticRegression {
	return &LogisticRegression{
		LearningRate: 0.1,
		Iterations:   1000,
		L2Penalty:    1e-4,
	}
}

// Fit trains on standardized features X with binary targets y (0 or 1).
func (m *LogisticRegression) Fit(X [][]float64, y []float64) error {
	if len(X) == 0 || len(X) != len(y) {
		return errors.Errorf("bad training shape: %d rows, %d targets", len(X), len(y))
	}

	n := len(X)
	dims := len(X[0])
	m.Weights = make([]float64, dims)
	m.Bias = 0

	grad := make([]float64, dims)
	for iter := 0; iter < m.Iterations; iter++ {
		for j := range grad {
			grad[j] = 0
		}
		gradBias := 0.0

		for i, row := range X {
			residual := sigmoid(floats.Dot(m.Weights, row)+m.Bias) - y[i]
			for j, v := range row {
				grad[j] += residual * v
			}
			gradBias += residual
		}

		for j := range m.Weights {
			m.Weights[j] -= m.LearningRate * (grad[j]/float64(n) + m.L2Penalty*m.Weights[j])
		}
		m.Bias -= m.LearningRate * gradBias / float64(n)
	}

	return nil
}

// PredictProba returns the calibrated probability for one standardized row.
func (m *LogisticRegression) PredictProba(row []float64) float64 {
	return sigmoid(floats.Dot(m.Weights, row) + m.Bias)
}

// Logit returns the pre-sigmoid score, the space in which per-feature
// attributions are additive.
func (m *LogisticRegression) Logit(row []float64) float64 {
	return floats.Dot(m.Weights, row) + m.Bias
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}
