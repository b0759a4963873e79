// Package ml holds the small numeric kernels behind the predictive and
// segmentation stages: feature standardization, seeded k-means, logistic and
// ridge regression, principal-component projection, and evaluation metrics.
// Everything is deterministic given identical inputs; components with a
// stochastic step take an explicit *rand.Rand.
package ml

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"
)

// StandardScaler centers and scales columns to zero mean, unit variance.
// Parameters are fit once over the full dataset and reused everywhere a
// standardized vector is needed.
type StandardScaler struct {
	Means []float64
	Stds  []float64
}

// FitScaler computes per-column mean and standard deviation. Constant
// columns get std 1 so transformed values stay finite.
func FitScaler(rows [][]float64) (*StandardScaler, error) {
	if len(rows) == 0 {
		return nil, errors.New("cannot fit scaler on zero rows")
	}

	dims := len(rows[0])
	scaler := &StandardScaler{
		Means: make([]float64, dims),
		Stds:  make([]float64, dims),
	}

	column := make([]float64, len(rows))
	for j := 0; j < dims; j++ {
		for i, row := range rows {
			column[i] = row[j]
		}
		mean, std := stat.MeanStdDev(column, nil)
		if std == 0 || math.IsNaN(std) {
			std = 1
		}
		scaler.Means[j] = mean
		scaler.Stds[j] = std
	}

	return scaler, nil
}

// Transform standardizes one row.
func (s *StandardScaler) Transform(row []float64) []float64 {
	out := make([]float64, len(row))
	for j, v := range row {
		out[j] = (v - s.Means[j]) / s.Stds[j]
	}
	return out
}

// TransformAll standardizes every row.
func (s *StandardScaler) TransformAll(rows [][]float64) [][]float64 {
	out := make([][]float64, len(rows))
	for i, row := range rows {
		out[i] = s.Transform(row)
	}
	return out
}
