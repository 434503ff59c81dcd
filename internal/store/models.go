package store

import "time"

// Graph is a partition boundary: topics, items, edges, and vectors are
// all scoped by graph id. No cross-graph edges or merges exist.
type Graph struct {
	ID        string
	Name      string
	IsDefault bool
	CreatedAt time.Time
}

// Topic is a deduplicated concept node within one graph.
// The (x,y,z) position is absent until the first projection run.
type Topic struct {
	ID          string
	GraphID     string
	Label       string
	Uses        int
	X, Y, Z     float64
	HasPosition bool
	CreatedAt   time.Time
}

// Item is one ingested content unit (a summarized page). The link is
// unique within a graph and is the natural dedup key for ingestion.
type Item struct {
	ID        string
	GraphID   string
	Title     string
	Summary   string
	Link      string
	CreatedAt time.Time
}

// EdgeType defines the type of relationship between topics.
type EdgeType string

const (
	// EdgeBroaderThan is directed: src is the broader (parent) topic,
	// dst the narrower (child). The broader_than subgraph stays acyclic.
	EdgeBroaderThan EdgeType = "broader_than"
	// EdgeRelatedTo is undirected and stored with src < dst so the pair
	// can never be duplicated in the opposite order.
	EdgeRelatedTo EdgeType = "related_to"
)

// TopicEdge is a typed relationship between two topics in one graph.
// Similarity records the embedding cosine score that justified the edge.
type TopicEdge struct {
	ID         string
	GraphID    string
	Src        string
	Dst        string
	Type       EdgeType
	Similarity float64
	CreatedAt  time.Time
}

// Touches reports whether the edge is incident to the given topic.
func (e *TopicEdge) Touches(topicID string) bool {
	return e.Src == topicID || e.Dst == topicID
}

// Other returns the endpoint opposite to topicID, or "" if not incident.
func (e *TopicEdge) Other(topicID string) string {
	switch topicID {
	case e.Src:
		return e.Dst
	case e.Dst:
		return e.Src
	}
	return ""
}

// OwnerType identifies what a stored vector belongs to.
type OwnerType string

const (
	OwnerItem  OwnerType = "item"
	OwnerTopic OwnerType = "topic"
)

// VectorRow stores one embedding per owner.
type VectorRow struct {
	GraphID   string
	Owner     OwnerType
	OwnerID   string
	Embedding []float32
	CreatedAt time.Time
}

// DegreeCaps bounds the number of edges touching a topic. Excess edges
// are pruned lowest-similarity first.
type DegreeCaps struct {
	MaxParents  int // incoming broader_than
	MaxChildren int // outgoing broader_than
	MaxRelated  int // related_to touching the node
}

// DefaultDegreeCaps returns the standard per-node limits.
func DefaultDegreeCaps() DegreeCaps {
	return DegreeCaps{MaxParents: 2, MaxChildren: 30, MaxRelated: 40}
}
