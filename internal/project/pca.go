package project

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

const (
	powerIterMax = 100
	powerIterTol = 1e-7
)

// reducePCA projects the rows of data down to targetDim dimensions by
// extracting dominant components one at a time with power iteration.
// Each new component is orthogonalized against all previously extracted
// ones (deflation), so the result matches classical PCA up to sign.
func reducePCA(data [][]float64, targetDim int, seed int64) [][]float64 {
	n := len(data)
	if n == 0 {
		return nil
	}
	dim := len(data[0])
	if targetDim > dim {
		targetDim = dim
	}
	if targetDim > n {
		targetDim = n
	}
	if targetDim <= 0 || targetDim == dim {
		return data
	}

	// Center columns.
	x := mat.NewDense(n, dim, nil)
	for j := 0; j < dim; j++ {
		col := make([]float64, n)
		for i := 0; i < n; i++ {
			col[i] = data[i][j]
		}
		m := stat.Mean(col, nil)
		for i := 0; i < n; i++ {
			x.Set(i, j, col[i]-m)
		}
	}

	rng := rand.New(rand.NewSource(seed))
	components := make([]*mat.VecDense, 0, targetDim)

	for c := 0; c < targetDim; c++ {
		v := randomUnit(dim, rng)
		orthogonalize(v, components)

		for iter := 0; iter < powerIterMax; iter++ {
			// w = Xᵀ (X v): one step of power iteration on the
			// covariance without forming it.
			xv := mat.NewVecDense(n, nil)
			xv.MulVec(x, v)
			w := mat.NewVecDense(dim, nil)
			w.MulVec(x.T(), xv)

			orthogonalize(w, components)
			norm := mat.Norm(w, 2)
			if norm == 0 {
				break // no variance left in this direction
			}
			w.ScaleVec(1/norm, w)

			delta := math.Abs(1 - math.Abs(mat.Dot(v, w)))
			v = w
			if delta < powerIterTol {
				break
			}
		}
		components = append(components, v)
	}

	// Scores: project centered rows onto the components.
	out := make([][]float64, n)
	for i := 0; i < n; i++ {
		row := x.RowView(i)
		out[i] = make([]float64, len(components))
		for c, comp := range components {
			out[i][c] = mat.Dot(row, comp)
		}
	}
	return out
}

// orthogonalize removes the projections of v onto each basis vector.
func orthogonalize(v *mat.VecDense, basis []*mat.VecDense) {
	for _, b := range basis {
		proj := mat.Dot(v, b)
		v.AddScaledVec(v, -proj, b)
	}
}

func randomUnit(dim int, rng *rand.Rand) *mat.VecDense {
	v := mat.NewVecDense(dim, nil)
	for i := 0; i < dim; i++ {
		v.SetVec(i, rng.NormFloat64())
	}
	norm := mat.Norm(v, 2)
	if norm == 0 {
		v.SetVec(0, 1)
		return v
	}
	v.ScaleVec(1/norm, v)
	return v
}
