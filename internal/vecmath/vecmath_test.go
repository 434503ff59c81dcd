package vecmath

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func TestCosineSimilaritySymmetric(t *testing.T) {
	a := []float32{0.3, -1.2, 4.5, 0.01}
	b := []float32{2.2, 0.4, -0.9, 1.0}

	if !almostEqual(CosineSimilarity(a, b), CosineSimilarity(b, a)) {
		t.Errorf("cosine similarity not symmetric: %f vs %f",
			CosineSimilarity(a, b), CosineSimilarity(b, a))
	}
}

func TestCosineSimilaritySelf(t *testing.T) {
	a := []float32{1, 2, 3}
	if sim := CosineSimilarity(a, a); !almostEqual(sim, 1) {
		t.Errorf("expected self-similarity 1, got %f", sim)
	}
}

func TestCosineSimilarityZeroVector(t *testing.T) {
	zero := []float32{0, 0, 0}
	a := []float32{1, 2, 3}
	if sim := CosineSimilarity(zero, a); sim != 0 {
		t.Errorf("expected 0 for zero vector, got %f", sim)
	}
	if sim := CosineSimilarity(zero, zero); sim != 0 {
		t.Errorf("expected 0 for two zero vectors, got %f", sim)
	}
}

func TestCosineSimilarityMismatchedLengths(t *testing.T) {
	if sim := CosineSimilarity([]float32{1, 2}, []float32{1, 2, 3}); sim != 0 {
		t.Errorf("expected 0 for mismatched lengths, got %f", sim)
	}
}

func TestCosineSimilarityOrthogonal(t *testing.T) {
	if sim := CosineSimilarity([]float32{1, 0}, []float32{0, 1}); !almostEqual(sim, 0) {
		t.Errorf("expected 0 for orthogonal vectors, got %f", sim)
	}
}

func TestNormalize(t *testing.T) {
	v := []float32{3, 4}
	u := Normalize(v)
	if !almostEqual(Norm(u), 1) {
		t.Errorf("expected unit norm, got %f", Norm(u))
	}
	// Input untouched
	if v[0] != 3 || v[1] != 4 {
		t.Error("Normalize mutated its input")
	}
}

func TestNormalizeZeroVector(t *testing.T) {
	u := Normalize([]float32{0, 0})
	if u[0] != 0 || u[1] != 0 {
		t.Errorf("expected zero vector unchanged, got %v", u)
	}
}

func TestMean(t *testing.T) {
	m, err := Mean([][]float32{{1, 2}, {3, 4}})
	if err != nil {
		t.Fatalf("Mean failed: %v", err)
	}
	if !almostEqual(float64(m[0]), 2) || !almostEqual(float64(m[1]), 3) {
		t.Errorf("expected [2 3], got %v", m)
	}
}

func TestMeanEmpty(t *testing.T) {
	if _, err := Mean(nil); err != ErrEmptyDataset {
		t.Errorf("expected ErrEmptyDataset, got %v", err)
	}
}

func TestSimilarityMatrix(t *testing.T) {
	queries := [][]float32{{1, 0}, {0, 1}}
	candidates := [][]float32{{1, 0}, {0, 1}, {1, 1}}

	m := SimilarityMatrix(queries, candidates)
	if len(m) != 2 || len(m[0]) != 3 {
		t.Fatalf("unexpected shape: %dx%d", len(m), len(m[0]))
	}
	if !almostEqual(m[0][0], 1) || !almostEqual(m[0][1], 0) {
		t.Errorf("row 0 wrong: %v", m[0])
	}
	diag := 1 / math.Sqrt2
	if !almostEqual(m[1][2], diag) {
		t.Errorf("expected %f, got %f", diag, m[1][2])
	}
}
