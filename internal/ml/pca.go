package ml

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Projection2D is a fitted two-component principal-component projection.
type Projection2D struct {
	ColMeans   []float64
	Components *mat.Dense // dims x 2
	Explained  []float64  // variance share per component
}

// FitPCA2 fits the top-2 principal components of X. Component signs are
// fixed so the largest-magnitude loading in each component is positive,
// keeping coordinates stable across runs and library versions.
func FitPCA2(X [][]float64) (*Projection2D, error) {
	if len(X) < 2 {
		return nil, errors.Errorf("need at least 2 rows for a projection, have %d", len(X))
	}
	dims := len(X[0])
	if dims < 2 {
		return nil, errors.Errorf("need at least 2 feature dimensions, have %d", dims)
	}

	flat := make([]float64, 0, len(X)*dims)
	for _, row := range X {
		flat = append(flat, row...)
	}
	data := mat.NewDense(len(X), dims, flat)

	var pc stat.PC
	if ok := pc.PrincipalComponents(data, nil); !ok {
		return nil, errors.New("principal component decomposition failed")
	}

	var vectors mat.Dense
	pc.VectorsTo(&vectors)
	variances := pc.VarsTo(nil)

	components := mat.NewDense(dims, 2, nil)
	for c := 0; c < 2; c++ {
		sign := 1.0
		largest := 0.0
		for j := 0; j < dims; j++ {
			if v := vectors.At(j, c); math.Abs(v) > largest {
				largest = math.Abs(v)
				if v < 0 {
					sign = -1
				} else {
					sign = 1
				}
			}
		}
		for j := 0; j < dims; j++ {
			components.Set(j, c, sign*vectors.At(j, c))
		}
	}

	colMeans := make([]float64, dims)
	column := make([]float64, len(X))
	for j := 0; j < dims; j++ {
		for i, row := range X {
			column[i] = row[j]
		}
		colMeans[j] = stat.Mean(column, nil)
	}

	totalVar := 0.0
	for _, v := range variances {
		totalVar += v
	}
	explained := []float64{0, 0}
	if totalVar > 0 {
		explained[0] = variances[0] / totalVar
		explained[1] = variances[1] / totalVar
	}

	return &Projection2D{
		ColMeans:   colMeans,
		Components: components,
		Explained:  explained,
	}, nil
}

// Project maps one row to its 2D coordinates.
func (p *Projection2D) Project(row []float64) (x, y float64) {
	for j, v := range row {
		centered := v - p.ColMeans[j]
		x += centered * p.Components.At(j, 0)
		y += centered * p.Components.At(j, 1)
	}
	return x, y
}
