package ml

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// RidgeRegression is a linear estimator solved in closed form from the
// regularized normal equations. The intercept column is not penalized.
type RidgeRegression struct {
	Weights []float64
	Bias    float64
	Lambda  float64
}

// NewRidgeRegression returns an estimator with a small default penalty,
// enough to keep the normal equations well conditioned on correlated
// features.
func NewRidgeRegression() *RidgeRegression {
	return &RidgeRegression{Lambda: 1e-2}
}

// Fit solves (XᵀX + λI)w = Xᵀy with an appended intercept column.
func (m *RidgeRegression) Fit(X [][]float64, y []float64) error {
	if len(X) == 0 || len(X) != len(y) {
		return errors.Errorf("bad training shape: %d rows, %d targets", len(X), len(y))
	}

	n := len(X)
	dims := len(X[0])

	design := mat.NewDense(n, dims+1, nil)
	for i, row := range X {
		for j, v := range row {
			design.Set(i, j, v)
		}
		design.Set(i, dims, 1)
	}
	target := mat.NewVecDense(n, append([]float64(nil), y...))

	var gram mat.Dense
	gram.Mul(design.T(), design)
	for j := 0; j < dims; j++ {
		gram.Set(j, j, gram.At(j, j)+m.Lambda)
	}

	var moment mat.VecDense
	moment.MulVec(design.T(), target)

	var solution mat.VecDense
	if err := solution.SolveVec(&gram, &moment); err != nil {
		return errors.Wrap(err, "normal equations are singular")
	}

	m.Weights = make([]float64, dims)
	for j := 0; j < dims; j++ {
		m.Weights[j] = solution.AtVec(j)
	}
	m.Bias = solution.AtVec(dims)

	return nil
}

// Predict returns the estimate for one row.
func (m *RidgeRegression) Predict(row []float64) float64 {
	return floats.Dot(m.Weights, row) + m.Bias
}
