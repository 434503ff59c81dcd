package cluster

import "sort"

// weightedGraph is an undirected graph over dense node indices.
type weightedGraph struct {
	n       int
	adj     [][]graphEdge // per-node neighbor list
	degree  []float64     // weighted degree per node (self-loops count twice)
	totalW  float64       // sum of all edge weights (each undirected edge once)
	selfTot []float64     // self-loop weight per node
}

type graphEdge struct {
	to     int
	weight float64
}

func newWeightedGraph(n int) *weightedGraph {
	return &weightedGraph{
		n:       n,
		adj:     make([][]graphEdge, n),
		degree:  make([]float64, n),
		selfTot: make([]float64, n),
	}
}

func (g *weightedGraph) addEdge(a, b int, w float64) {
	if a == b {
		g.selfTot[a] += w
		g.degree[a] += 2 * w
		g.totalW += w
		return
	}
	g.adj[a] = append(g.adj[a], graphEdge{to: b, weight: w})
	g.adj[b] = append(g.adj[b], graphEdge{to: a, weight: w})
	g.degree[a] += w
	g.degree[b] += w
	g.totalW += w
}

// louvain partitions the graph into communities by greedy modularity
// optimization. Nodes are visited in index order and ties pick the
// lowest community id, so a fixed input graph always yields the same
// partition.
func louvain(g *weightedGraph, resolution float64) []int {
	if resolution <= 0 {
		resolution = 1.0
	}

	// community[i] is the final community of original node i.
	community := make([]int, g.n)
	for i := range community {
		community[i] = i
	}

	current := g
	// nodeMap[i] maps current-graph node i to the set of original nodes.
	nodeMap := make([][]int, g.n)
	for i := range nodeMap {
		nodeMap[i] = []int{i}
	}

	for {
		local, moved := localMoving(current, resolution)
		if !moved {
			break
		}

		// Renumber communities densely in order of first appearance.
		renum := make(map[int]int)
		for _, node := range sortedNodes(current.n) {
			if _, ok := renum[local[node]]; !ok {
				renum[local[node]] = len(renum)
			}
		}

		merged := make([][]int, len(renum))
		for node, comm := range local {
			c := renum[comm]
			merged[c] = append(merged[c], nodeMap[node]...)
		}
		for c := range merged {
			sort.Ints(merged[c])
			for _, orig := range merged[c] {
				community[orig] = c
			}
		}

		if len(renum) == current.n {
			break // no aggregation happened
		}
		current = aggregate(current, local, renum)
		nodeMap = merged
	}

	return community
}

// localMoving runs the first Louvain phase: repeatedly move each node
// to the neighboring community with the best modularity gain until no
// move improves anything.
func localMoving(g *weightedGraph, resolution float64) ([]int, bool) {
	comm := make([]int, g.n)
	commTot := make([]float64, g.n) // sum of degrees per community
	for i := 0; i < g.n; i++ {
		comm[i] = i
		commTot[i] = g.degree[i]
	}

	m2 := 2 * g.totalW
	if m2 == 0 {
		return comm, false
	}

	anyMoved := false
	for {
		movedThisPass := false
		for node := 0; node < g.n; node++ {
			// Weight from node to each neighboring community.
			links := make(map[int]float64)
			for _, e := range g.adj[node] {
				links[comm[e.to]] += e.weight
			}

			cur := comm[node]
			commTot[cur] -= g.degree[node]

			bestComm := cur
			bestGain := links[cur] - resolution*commTot[cur]*g.degree[node]/m2

			// Deterministic order over candidate communities.
			cands := make([]int, 0, len(links))
			for c := range links {
				cands = append(cands, c)
			}
			sort.Ints(cands)
			for _, c := range cands {
				if c == cur {
					continue
				}
				gain := links[c] - resolution*commTot[c]*g.degree[node]/m2
				if gain > bestGain {
					bestGain = gain
					bestComm = c
				}
			}

			comm[node] = bestComm
			commTot[bestComm] += g.degree[node]
			if bestComm != cur {
				movedThisPass = true
				anyMoved = true
			}
		}
		if !movedThisPass {
			break
		}
	}
	return comm, anyMoved
}

// aggregate collapses each community into a single super-node.
func aggregate(g *weightedGraph, comm []int, renum map[int]int) *weightedGraph {
	next := newWeightedGraph(len(renum))
	type pair struct{ a, b int }
	weights := make(map[pair]float64)

	for node := 0; node < g.n; node++ {
		a := renum[comm[node]]
		if g.selfTot[node] > 0 {
			weights[pair{a, a}] += g.selfTot[node]
		}
		for _, e := range g.adj[node] {
			if e.to < node {
				continue // count each undirected edge once
			}
			b := renum[comm[e.to]]
			lo, hi := a, b
			if lo > hi {
				lo, hi = hi, lo
			}
			weights[pair{lo, hi}] += e.weight
		}
	}

	pairs := make([]pair, 0, len(weights))
	for p := range weights {
		pairs = append(pairs, p)
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].a != pairs[j].a {
			return pairs[i].a < pairs[j].a
		}
		return pairs[i].b < pairs[j].b
	})
	for _, p := range pairs {
		next.addEdge(p.a, p.b, weights[p])
	}
	return next
}

func sortedNodes(n int) []int {
	nodes := make([]int, n)
	for i := range nodes {
		nodes[i] = i
	}
	return nodes
}
