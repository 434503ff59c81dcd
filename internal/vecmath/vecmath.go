// Package vecmath provides the vector primitives shared by resolution,
// linking, clustering, projection, and search: cosine similarity,
// normalization, mean vectors, and batched similarity matrices.
//
// All functions are pure. Embeddings are []float32 end to end (the wire
// and storage format); accumulation happens in float64 for precision.
package vecmath

import (
	"errors"
	"math"

	blasgonum "gonum.org/v1/gonum/blas/gonum"
)

// ErrEmptyDataset is returned by aggregate operations given no input.
var ErrEmptyDataset = errors.New("vecmath: empty dataset")

var blasEngine = blasgonum.Implementation{}

// Dot computes the dot product of two equal-length vectors.
func Dot(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	return float64(blasEngine.Sdot(len(a), a, 1, b, 1))
}

// Norm computes the Euclidean norm of a vector.
func Norm(v []float32) float64 {
	if len(v) == 0 {
		return 0
	}
	return math.Sqrt(float64(blasEngine.Sdot(len(v), v, 1, v, 1)))
}

// CosineSimilarity computes dot(a,b)/(|a|·|b|).
// Returns 0 for mismatched lengths or when either vector has zero norm.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	dot := Dot(a, b)
	na := Norm(a)
	nb := Norm(b)
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (na * nb)
}

// CosineDistance is 1 - CosineSimilarity.
func CosineDistance(a, b []float32) float64 {
	return 1 - CosineSimilarity(a, b)
}

// Normalize returns a unit-length copy of v.
// A zero vector is returned as an unchanged copy.
func Normalize(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	n := Norm(v)
	if n == 0 {
		return out
	}
	inv := float32(1 / n)
	for i := range out {
		out[i] *= inv
	}
	return out
}

// Mean computes the element-wise average of a non-empty set of
// equal-length vectors. Returns ErrEmptyDataset for no input.
func Mean(vectors [][]float32) ([]float32, error) {
	if len(vectors) == 0 {
		return nil, ErrEmptyDataset
	}
	dims := len(vectors[0])
	acc := make([]float64, dims)
	for _, v := range vectors {
		for i := 0; i < dims && i < len(v); i++ {
			acc[i] += float64(v[i])
		}
	}
	out := make([]float32, dims)
	inv := 1 / float64(len(vectors))
	for i := range acc {
		out[i] = float32(acc[i] * inv)
	}
	return out, nil
}

// SimilarityMatrix computes cosine similarity of every query against
// every candidate. Result is [len(queries)][len(candidates)].
func SimilarityMatrix(queries, candidates [][]float32) [][]float64 {
	out := make([][]float64, len(queries))
	for i, q := range queries {
		row := make([]float64, len(candidates))
		for j, c := range candidates {
			row[j] = CosineSimilarity(q, c)
		}
		out[i] = row
	}
	return out
}
