package cluster

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/skeinlabs/skein/internal/store"
)

// memReader serves a fixed topic/edge/vector set.
type memReader struct {
	topics  []*store.Topic
	edges   []*store.TopicEdge
	vectors map[string][]float32
}

func (m *memReader) ListTopics(context.Context, string) ([]*store.Topic, error) {
	return m.topics, nil
}
func (m *memReader) ListEdges(context.Context, string) ([]*store.TopicEdge, error) {
	return m.edges, nil
}
func (m *memReader) ListVectors(context.Context, string, store.OwnerType) (map[string][]float32, error) {
	return m.vectors, nil
}

// twoCommunities builds two dense triangles joined by one weak edge.
func twoCommunities() *memReader {
	topics := make([]*store.Topic, 0, 6)
	for _, id := range []string{"a1", "a2", "a3", "b1", "b2", "b3"} {
		topics = append(topics, &store.Topic{ID: id, Label: id, HasPosition: true, X: 1, Y: 2, Z: 3})
	}
	mk := func(id, src, dst string, sim float64) *store.TopicEdge {
		return &store.TopicEdge{ID: id, Src: src, Dst: dst, Type: store.EdgeRelatedTo, Similarity: sim}
	}
	edges := []*store.TopicEdge{
		mk("e1", "a1", "a2", 0.9),
		mk("e2", "a2", "a3", 0.9),
		mk("e3", "a1", "a3", 0.9),
		mk("e4", "b1", "b2", 0.9),
		mk("e5", "b2", "b3", 0.9),
		mk("e6", "b1", "b3", 0.9),
		mk("e7", "a3", "b1", 0.1),
	}
	vectors := map[string][]float32{
		"a1": {1, 0, 0}, "a2": {0.9, 0.1, 0}, "a3": {0.95, 0.05, 0},
		"b1": {0, 1, 0}, "b2": {0.1, 0.9, 0}, "b3": {0.05, 0.95, 0},
	}
	return &memReader{topics: topics, edges: edges, vectors: vectors}
}

func TestClustersSplitsCommunities(t *testing.T) {
	e := New(Config{}, nil)
	got, err := e.Clusters(context.Background(), twoCommunities(), "g")
	if err != nil {
		t.Fatalf("Clusters: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 clusters, got %d", len(got))
	}

	var aCluster, bCluster *WithEdges
	for _, c := range got {
		if strings.HasPrefix(c.MemberIDs[0], "a") {
			aCluster = c
		} else {
			bCluster = c
		}
	}
	if aCluster == nil || bCluster == nil {
		t.Fatalf("communities not split along the weak edge: %+v", got)
	}
	if len(aCluster.MemberIDs) != 3 || len(bCluster.MemberIDs) != 3 {
		t.Errorf("unexpected membership: %v / %v", aCluster.MemberIDs, bCluster.MemberIDs)
	}
}

func TestClustersDeterministic(t *testing.T) {
	e := New(Config{}, nil)
	first, err := e.Clusters(context.Background(), twoCommunities(), "g")
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		again, err := e.Clusters(context.Background(), twoCommunities(), "g")
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d differs from first run", i)
		}
	}
}

func TestMedoidPicksCentralMember(t *testing.T) {
	vectors := map[string][]float32{
		"x": {1, 0},
		"y": {0.7, 0.7}, // closest to the mean direction
		"z": {0, 1},
	}
	got, err := medoid([]string{"x", "y", "z"}, vectors)
	if err != nil {
		t.Fatalf("medoid: %v", err)
	}
	if got != "y" {
		t.Errorf("expected medoid y, got %s", got)
	}
}

func TestMedoidNoVectors(t *testing.T) {
	if _, err := medoid([]string{"x"}, map[string][]float32{}); err == nil {
		t.Fatal("expected error with no member vectors")
	}
}

func TestMinClusterSizeDropsSingletons(t *testing.T) {
	r := &memReader{
		topics: []*store.Topic{
			{ID: "a", Label: "a"},
			{ID: "b", Label: "b"},
			{ID: "lone", Label: "lone"},
		},
		edges: []*store.TopicEdge{
			{ID: "e1", Src: "a", Dst: "b", Type: store.EdgeRelatedTo, Similarity: 0.9},
		},
		vectors: map[string][]float32{
			"a": {1, 0}, "b": {0.9, 0.1}, "lone": {0, 1},
		},
	}

	e := New(Config{MinClusterSize: 2}, nil)
	got, err := e.Clusters(context.Background(), r, "g")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 cluster, got %d", len(got))
	}
	for _, id := range got[0].MemberIDs {
		if id == "lone" {
			t.Error("singleton topic should have been dropped")
		}
	}
}

func TestSpanningTreeDepthsAndDirections(t *testing.T) {
	// Star with one extension: c is centroid, c-x, c-y, y-z.
	edges := []*store.TopicEdge{
		{ID: "e1", Src: "c", Dst: "x", Similarity: 0.9},
		{ID: "e2", Src: "c", Dst: "y", Similarity: 0.8},
		{ID: "e3", Src: "y", Dst: "z", Similarity: 0.7},
	}
	tree := spanningTree("c", []string{"c", "x", "y", "z"}, edges)
	if len(tree) != 3 {
		t.Fatalf("expected 3 tree edges, got %d", len(tree))
	}

	depths := map[string]int{}
	froms := map[string]string{}
	for _, te := range tree {
		depths[te.To] = te.Depth
		froms[te.To] = te.From
	}
	if depths["x"] != 1 || depths["y"] != 1 {
		t.Errorf("direct neighbors should be depth 1: %v", depths)
	}
	if depths["z"] != 2 || froms["z"] != "y" {
		t.Errorf("z should hang off y at depth 2: depth=%d from=%s", depths["z"], froms["z"])
	}

	// Highest-similarity neighbor is visited first.
	if tree[0].To != "x" {
		t.Errorf("expected x first (similarity 0.9), got %s", tree[0].To)
	}
}

func TestSpanningTreeIgnoresOutsideEdges(t *testing.T) {
	edges := []*store.TopicEdge{
		{ID: "e1", Src: "c", Dst: "in", Similarity: 0.9},
		{ID: "e2", Src: "c", Dst: "out", Similarity: 0.95},
	}
	tree := spanningTree("c", []string{"c", "in"}, edges)
	if len(tree) != 1 || tree[0].To != "in" {
		t.Errorf("edge to non-member leaked into tree: %+v", tree)
	}
}

func TestColorForIndex(t *testing.T) {
	if colorForIndex(0) != palette[0] {
		t.Errorf("first cluster should use first palette entry")
	}
	// Wrapping rotates the hue instead of repeating.
	wrapped := colorForIndex(len(palette))
	if wrapped == palette[0] {
		t.Error("wrapped index should produce a rotated color")
	}
	if len(wrapped) != 7 || wrapped[0] != '#' {
		t.Errorf("not a hex color: %q", wrapped)
	}
	// Stable across calls.
	if colorForIndex(13) != colorForIndex(13) {
		t.Error("colors must be deterministic")
	}
}

func TestRotateHuePreservesFormat(t *testing.T) {
	got := rotateHue("#8b5cf6", 47)
	if len(got) != 7 || got[0] != '#' {
		t.Fatalf("bad color format: %q", got)
	}
	if got == "#8b5cf6" {
		t.Error("rotation should change the color")
	}
	// Full circle returns near the original.
	back := rotateHue("#ff0000", 360)
	if back != "#ff0000" {
		t.Errorf("360 degree rotation drifted: %q", back)
	}
}

func TestLouvainEmptyGraph(t *testing.T) {
	g := newWeightedGraph(3)
	comm := louvain(g, 1.0)
	if len(comm) != 3 {
		t.Fatalf("expected 3 assignments, got %d", len(comm))
	}
	// No edges: every node stays in its own community.
	seen := map[int]bool{}
	for _, c := range comm {
		if seen[c] {
			t.Error("disconnected nodes merged")
		}
		seen[c] = true
	}
}
