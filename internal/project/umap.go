package project

import (
	"math"
	"math/rand"
	"sort"
)

// umapConfig holds hyperparameters for the manifold projection stage.
type umapConfig struct {
	nNeighbors   int
	minDist      float64
	spread       float64
	nEpochs      int
	learningRate float64
	negativeRate int
	seed         int64
}

// fuzzyEdge is one weighted edge of the symmetrized neighbor graph.
type fuzzyEdge struct {
	from, to int
	weight   float64
}

// projectUMAP reduces the input vectors to outDims coordinates with a
// UMAP-style manifold projection: build a k-NN graph, convert distances
// to fuzzy membership strengths, then optimize a low-dimensional layout
// by stochastic gradient descent. Seeded RNGs keep runs reproducible.
func projectUMAP(data [][]float64, outDims int, cfg umapConfig) [][]float64 {
	n := len(data)
	if n < 2 {
		return nil
	}
	k := cfg.nNeighbors
	if k >= n {
		k = n - 1
	}
	if k < 2 {
		return nil
	}

	indices, dists := computeKNN(data, k)
	sigmas, rhos := smoothKNNDist(dists, float64(k))
	edges := fuzzyGraph(indices, dists, sigmas, rhos)
	a, b := findABParams(cfg.spread, cfg.minDist)

	rng := rand.New(rand.NewSource(cfg.seed))
	embedding := make([][]float64, n)
	for i := range embedding {
		embedding[i] = make([]float64, outDims)
		for d := range embedding[i] {
			embedding[i][d] = (rng.Float64() - 0.5) * 10
		}
	}

	optimizeLayout(embedding, edges, a, b, cfg, rand.New(rand.NewSource(cfg.seed+1)))
	return embedding
}

// computeKNN finds each point's k nearest neighbors by brute force.
// Exhaustive scan keeps the result exact and deterministic; graphs here
// are thousands of topics at most.
func computeKNN(data [][]float64, k int) (indices [][]int, dists [][]float64) {
	n := len(data)
	indices = make([][]int, n)
	dists = make([][]float64, n)

	type distIdx struct {
		dist float64
		idx  int
	}
	for i := 0; i < n; i++ {
		neighbors := make([]distIdx, 0, n-1)
		for j := 0; j < n; j++ {
			if j == i {
				continue
			}
			neighbors = append(neighbors, distIdx{euclidean(data[i], data[j]), j})
		}
		sort.Slice(neighbors, func(a, b int) bool {
			if neighbors[a].dist != neighbors[b].dist {
				return neighbors[a].dist < neighbors[b].dist
			}
			return neighbors[a].idx < neighbors[b].idx
		})
		indices[i] = make([]int, k)
		dists[i] = make([]float64, k)
		for j := 0; j < k; j++ {
			indices[i][j] = neighbors[j].idx
			dists[i][j] = neighbors[j].dist
		}
	}
	return indices, dists
}

func euclidean(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// smoothKNNDist finds, per point, the bandwidth sigma and the local
// connectivity distance rho such that the fuzzy memberships of its
// neighbors sum to log2(k). Sigma is located by binary search.
func smoothKNNDist(distances [][]float64, k float64) (sigmas, rhos []float64) {
	const (
		nIter     = 64
		tolerance = 1e-5
		minScale  = 1e-3
	)

	n := len(distances)
	sigmas = make([]float64, n)
	rhos = make([]float64, n)
	target := math.Log2(k)

	for i := 0; i < n; i++ {
		ds := distances[i]

		// rho: distance to the nearest non-identical neighbor.
		for _, d := range ds {
			if d > 0 {
				rhos[i] = d
				break
			}
		}

		lo, hi, mid := 0.0, math.Inf(1), 1.0
		for iter := 0; iter < nIter; iter++ {
			psum := 0.0
			for _, d := range ds {
				adj := d - rhos[i]
				if adj > 0 {
					psum += math.Exp(-adj / mid)
				} else {
					psum += 1.0
				}
			}
			if math.Abs(psum-target) < tolerance {
				break
			}
			if psum > target {
				hi = mid
			} else {
				lo = mid
			}
			if math.IsInf(hi, 1) {
				mid *= 2
			} else {
				mid = (lo + hi) / 2
			}
		}
		sigmas[i] = mid

		var sum float64
		for _, d := range ds {
			sum += d
		}
		if len(ds) > 0 {
			if min := minScale * sum / float64(len(ds)); sigmas[i] < min {
				sigmas[i] = min
			}
		}
	}
	return sigmas, rhos
}

// fuzzyGraph converts neighbor distances to membership strengths and
// symmetrizes them with a fuzzy set union: u = a + b - a*b.
func fuzzyGraph(indices [][]int, dists [][]float64, sigmas, rhos []float64) []fuzzyEdge {
	type key struct{ r, c int }
	directed := make(map[key]float64)

	for i := range indices {
		for j, neighbor := range indices[i] {
			d := dists[i][j] - rhos[i]
			val := 1.0
			if d > 0 && sigmas[i] != 0 {
				val = math.Exp(-d / sigmas[i])
			}
			directed[key{i, neighbor}] = val
		}
	}

	union := make(map[key]float64, len(directed))
	for k1, v := range directed {
		vt := directed[key{k1.c, k1.r}]
		u := v + vt - v*vt
		if u > 0 {
			union[k1] = u
		}
	}

	keys := make([]key, 0, len(union))
	for k1 := range union {
		keys = append(keys, k1)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].r != keys[j].r {
			return keys[i].r < keys[j].r
		}
		return keys[i].c < keys[j].c
	})

	edges := make([]fuzzyEdge, len(keys))
	for i, k1 := range keys {
		edges[i] = fuzzyEdge{from: k1.r, to: k1.c, weight: union[k1]}
	}
	return edges
}

// findABParams fits a and b of the low-dimensional membership curve
// f(x) = 1/(1 + a*x^(2b)) to the target exponential falloff defined by
// spread and minDist. A coarse grid search is plenty here.
func findABParams(spread, minDist float64) (a, b float64) {
	const nPoints = 300
	xv := make([]float64, nPoints)
	yv := make([]float64, nPoints)
	for i := 0; i < nPoints; i++ {
		xv[i] = float64(i) / float64(nPoints-1) * spread * 3
		if xv[i] < minDist {
			yv[i] = 1.0
		} else {
			yv[i] = math.Exp(-(xv[i] - minDist) / spread)
		}
	}

	bestA, bestB := 1.0, 1.0
	bestErr := math.Inf(1)
	for aTest := 0.1; aTest <= 10.0; aTest += 0.1 {
		for bTest := 0.1; bTest <= 2.0; bTest += 0.05 {
			var sse float64
			for i := 0; i < nPoints; i++ {
				pred := 1.0 / (1.0 + aTest*math.Pow(xv[i], 2*bTest))
				diff := pred - yv[i]
				sse += diff * diff
			}
			if sse < bestErr {
				bestErr = sse
				bestA, bestB = aTest, bTest
			}
		}
	}
	return bestA, bestB
}

// optimizeLayout refines the embedding in place with SGD: attraction
// along fuzzy edges, repulsion against random negative samples.
func optimizeLayout(embedding [][]float64, edges []fuzzyEdge, a, b float64, cfg umapConfig, rng *rand.Rand) {
	n := len(embedding)
	if len(edges) == 0 || n < 2 {
		return
	}

	maxWeight := 0.0
	for _, e := range edges {
		if e.weight > maxWeight {
			maxWeight = e.weight
		}
	}
	if maxWeight == 0 {
		maxWeight = 1.0
	}

	// Stronger edges are sampled more often.
	epochsPerSample := make([]float64, len(edges))
	nextSample := make([]float64, len(edges))
	for i, e := range edges {
		if e.weight > 0 {
			epochsPerSample[i] = maxWeight / e.weight
			if epochsPerSample[i] < 1 {
				epochsPerSample[i] = 1
			}
		} else {
			epochsPerSample[i] = float64(cfg.nEpochs) + 1
		}
		nextSample[i] = epochsPerSample[i]
	}

	negPerPos := cfg.negativeRate
	if negPerPos < 1 {
		negPerPos = 1
	}

	for epoch := 0; epoch < cfg.nEpochs; epoch++ {
		alpha := cfg.learningRate * (1.0 - float64(epoch)/float64(cfg.nEpochs))
		if alpha < 0.0001 {
			alpha = 0.0001
		}

		for i, e := range edges {
			if nextSample[i] > float64(epoch) {
				continue
			}
			cur := embedding[e.from]
			other := embedding[e.to]

			if distSq := squaredEuclidean(cur, other); distSq > 0 {
				coeff := -2.0 * a * b * math.Pow(distSq, b-1.0)
				coeff /= a*math.Pow(distSq, b) + 1.0
				for d := range cur {
					cur[d] += clip(coeff*(cur[d]-other[d])) * alpha
				}
			}

			for p := 0; p < negPerPos; p++ {
				neg := rng.Intn(n)
				if neg == e.from {
					continue
				}
				distSq := squaredEuclidean(cur, embedding[neg])
				var coeff float64
				if distSq > 0.001 {
					coeff = 2.0 * b / ((0.001 + distSq) * (a*math.Pow(distSq, b) + 1))
				}
				if coeff > 0 {
					for d := range cur {
						cur[d] += clip(coeff*(cur[d]-embedding[neg][d])) * alpha
					}
				}
			}

			nextSample[i] += epochsPerSample[i]
		}
	}
}

func squaredEuclidean(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// clip bounds a gradient term so a single step cannot explode.
func clip(v float64) float64 {
	if v > 4.0 {
		return 4.0
	}
	if v < -4.0 {
		return -4.0
	}
	return v
}
