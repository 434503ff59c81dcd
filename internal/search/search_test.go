package search

import (
	"context"
	"testing"

	"github.com/skeinlabs/skein/internal/store"
)

type memReader struct {
	topics  []*store.Topic
	items   []*store.Item
	topicV  map[string][]float32
	itemV   map[string][]float32
	edges   []*store.TopicEdge
}

func (m *memReader) ListTopics(context.Context, string) ([]*store.Topic, error) {
	return m.topics, nil
}
func (m *memReader) ListItems(context.Context, string, int) ([]*store.Item, error) {
	return m.items, nil
}
func (m *memReader) ListVectors(_ context.Context, _ string, owner store.OwnerType) (map[string][]float32, error) {
	if owner == store.OwnerTopic {
		return m.topicV, nil
	}
	return m.itemV, nil
}
func (m *memReader) EdgesForTopic(_ context.Context, _ string, topicID string) ([]*store.TopicEdge, error) {
	var out []*store.TopicEdge
	for _, e := range m.edges {
		if e.Touches(topicID) {
			out = append(out, e)
		}
	}
	return out, nil
}

func searchFixture() *memReader {
	return &memReader{
		topics: []*store.Topic{
			{ID: "t1", Label: "exact", HasPosition: true},
			{ID: "t2", Label: "close", HasPosition: true},
			{ID: "t3", Label: "far", HasPosition: true},
			{ID: "t4", Label: "unprojected", HasPosition: false},
			{ID: "t5", Label: "neighbor", HasPosition: true},
		},
		topicV: map[string][]float32{
			"t1": {1, 0, 0},
			"t2": {0.9, 0.1, 0},
			"t3": {0, 1, 0},
			"t4": {1, 0, 0},
			"t5": {0, 0, 1},
		},
		items: []*store.Item{
			{ID: "i1", Title: "hit"},
			{ID: "i2", Title: "miss"},
		},
		itemV: map[string][]float32{
			"i1": {1, 0, 0},
			"i2": {0, 1, 0},
		},
		edges: []*store.TopicEdge{
			{ID: "e1", Src: "t1", Dst: "t5", Type: store.EdgeRelatedTo, Similarity: 0.5},
			{ID: "e2", Src: "t2", Dst: "t3", Type: store.EdgeRelatedTo, Similarity: 0.4},
		},
	}
}

func TestFindSimilarTopics(t *testing.T) {
	e := New(Config{}, nil)
	query := []float32{1, 0, 0}

	got, err := e.FindSimilarTopics(context.Background(), searchFixture(), "g", query, 5, 0.4)
	if err != nil {
		t.Fatalf("FindSimilarTopics: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 results, got %d", len(got))
	}
	if got[0].Topic.ID != "t1" || got[1].Topic.ID != "t2" {
		t.Errorf("wrong order: %s, %s", got[0].Topic.ID, got[1].Topic.ID)
	}
	if got[0].Similarity < got[1].Similarity {
		t.Error("results not sorted by similarity")
	}
	for _, res := range got {
		if res.Topic.ID == "t4" {
			t.Error("unprojected topic returned")
		}
	}
}

func TestFindSimilarTopicsTruncates(t *testing.T) {
	e := New(Config{}, nil)
	got, err := e.FindSimilarTopics(context.Background(), searchFixture(), "g", []float32{1, 0, 0}, 1, 0.4)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Topic.ID != "t1" {
		t.Errorf("expected only the best match, got %v", got)
	}
}

func TestFindSimilarItems(t *testing.T) {
	e := New(Config{}, nil)
	got, err := e.FindSimilarItems(context.Background(), searchFixture(), "g", []float32{1, 0, 0}, 10, 0.4)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Item.ID != "i1" {
		t.Errorf("expected only i1, got %v", got)
	}
}

func TestExpandWithNeighbors(t *testing.T) {
	e := New(Config{}, nil)
	r := searchFixture()

	results, err := e.FindSimilarTopics(context.Background(), r, "g", []float32{1, 0, 0}, 5, 0.4)
	if err != nil {
		t.Fatal(err)
	}
	expanded, err := e.ExpandWithNeighbors(context.Background(), r, "g", results)
	if err != nil {
		t.Fatalf("ExpandWithNeighbors: %v", err)
	}
	if len(expanded) != len(results)+1 {
		t.Fatalf("expected one neighbor added, got %d -> %d", len(results), len(expanded))
	}

	added := expanded[len(expanded)-1]
	if added.Topic.ID != "t5" {
		t.Errorf("expected neighbor t5, got %s", added.Topic.ID)
	}
	if added.Similarity != 0 {
		t.Errorf("neighbor similarity must be 0, got %f", added.Similarity)
	}
}

func TestExpandWithNeighborsEmptyResults(t *testing.T) {
	e := New(Config{}, nil)
	got, err := e.ExpandWithNeighbors(context.Background(), searchFixture(), "g", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("expected no expansion of empty results, got %d", len(got))
	}
}

func TestExpandWithNeighborsSkipsPresent(t *testing.T) {
	e := New(Config{}, nil)
	r := searchFixture()

	results := []TopicResult{
		{Topic: r.topics[0], Similarity: 0.9}, // t1
		{Topic: r.topics[4], Similarity: 0.8}, // t5, already present
	}
	expanded, err := e.ExpandWithNeighbors(context.Background(), r, "g", results)
	if err != nil {
		t.Fatal(err)
	}
	if len(expanded) != 2 {
		t.Errorf("present neighbor duplicated: %d results", len(expanded))
	}
}

func TestFilterRelevantEdges(t *testing.T) {
	e := New(Config{}, nil)
	edges := []*store.TopicEdge{
		{ID: "e1", Src: "a", Dst: "b", Similarity: 0.5},
		{ID: "e2", Src: "a", Dst: "c", Similarity: 0.9},
		{ID: "e3", Src: "b", Dst: "c", Similarity: 0.7},
		{ID: "e4", Src: "a", Dst: "x", Similarity: 0.99}, // endpoint outside set
	}
	highlighted := map[string]bool{"a": true, "b": true, "c": true}

	got := e.FilterRelevantEdges(edges, highlighted, 2)
	if len(got) != 2 {
		t.Fatalf("expected 2 edges, got %d", len(got))
	}
	if got[0].ID != "e2" || got[1].ID != "e3" {
		t.Errorf("wrong edges or order: %s, %s", got[0].ID, got[1].ID)
	}
}

func TestFilterRelevantEdgesDefaultCap(t *testing.T) {
	e := New(Config{MaxEdgesInResults: 1}, nil)
	edges := []*store.TopicEdge{
		{ID: "e1", Src: "a", Dst: "b", Similarity: 0.5},
		{ID: "e2", Src: "a", Dst: "b", Similarity: 0.9},
	}
	got := e.FilterRelevantEdges(edges, map[string]bool{"a": true, "b": true}, 0)
	if len(got) != 1 || got[0].ID != "e2" {
		t.Errorf("default cap not applied: %v", got)
	}
}
