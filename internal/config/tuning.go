package config

import "fmt"

// Tuning holds the per-graph engine parameters. Zero values are never
// meaningful here; use DefaultTuning and overlay file settings on top.
type Tuning struct {
	// Topic resolution.
	TopicMergeThreshold float64 `json:"topic_merge_threshold"`

	// Edge building.
	EdgeCandidateCount  int     `json:"edge_candidate_count"`
	EdgeClassifyCount   int     `json:"edge_classify_count"`
	ClassificationFloor float64 `json:"classification_floor"`
	HierarchyFloor      float64 `json:"hierarchy_floor"`
	MaxParentsPerRound  int     `json:"max_parents_per_round"`
	MaxChildrenPerRound int     `json:"max_children_per_round"`
	MaxSiblingsPerRound int     `json:"max_siblings_per_round"`
	MaxParentDegree     int     `json:"max_parent_degree"`
	MaxChildDegree      int     `json:"max_child_degree"`
	MaxRelatedDegree    int     `json:"max_related_degree"`

	// Clustering.
	ClusterResolution float64 `json:"cluster_resolution"`
	MinClusterSize    int     `json:"min_cluster_size"`

	// Projection.
	IntermediateDim int     `json:"intermediate_dim"`
	UMAPNeighbors   int     `json:"umap_neighbors"`
	UMAPMinDist     float64 `json:"umap_min_dist"`
	UMAPSpread      float64 `json:"umap_spread"`
	UMAPEpochs      int     `json:"umap_epochs"`

	// Search.
	TopicResultCount    int     `json:"topic_result_count"`
	ItemResultCount     int     `json:"item_result_count"`
	SimilarityThreshold float64 `json:"similarity_threshold"`
	MaxEdgesInResults   int     `json:"max_edges_in_results"`
}

func DefaultTuning() Tuning {
	return Tuning{
		TopicMergeThreshold: 0.85,

		EdgeCandidateCount:  20,
		EdgeClassifyCount:   6,
		ClassificationFloor: 0.6,
		HierarchyFloor:      0.75,
		MaxParentsPerRound:  2,
		MaxChildrenPerRound: 2,
		MaxSiblingsPerRound: 3,
		MaxParentDegree:     2,
		MaxChildDegree:      30,
		MaxRelatedDegree:    40,

		ClusterResolution: 1.0,
		MinClusterSize:    2,

		IntermediateDim: 100,
		UMAPNeighbors:   15,
		UMAPMinDist:     0.4,
		UMAPSpread:      2.0,
		UMAPEpochs:      200,

		TopicResultCount:    5,
		ItemResultCount:     10,
		SimilarityThreshold: 0.4,
		MaxEdgesInResults:   20,
	}
}

// Validate rejects values that would break an engine downstream.
func (t Tuning) Validate() error {
	if t.TopicMergeThreshold <= 0 || t.TopicMergeThreshold > 1 {
		return fmt.Errorf("topic_merge_threshold must be in (0, 1], got %v", t.TopicMergeThreshold)
	}
	if t.ClassificationFloor < 0 || t.ClassificationFloor > 1 {
		return fmt.Errorf("classification_floor must be in [0, 1], got %v", t.ClassificationFloor)
	}
	if t.HierarchyFloor < t.ClassificationFloor || t.HierarchyFloor > 1 {
		return fmt.Errorf("hierarchy_floor must be in [classification_floor, 1], got %v", t.HierarchyFloor)
	}
	if t.EdgeCandidateCount <= 0 || t.EdgeClassifyCount <= 0 {
		return fmt.Errorf("edge candidate counts must be positive")
	}
	if t.EdgeClassifyCount > t.EdgeCandidateCount {
		return fmt.Errorf("edge_classify_count %d exceeds edge_candidate_count %d", t.EdgeClassifyCount, t.EdgeCandidateCount)
	}
	if t.MaxParentsPerRound < 0 || t.MaxChildrenPerRound < 0 || t.MaxSiblingsPerRound < 0 {
		return fmt.Errorf("per-round edge caps cannot be negative")
	}
	if t.MaxParentDegree <= 0 || t.MaxChildDegree <= 0 || t.MaxRelatedDegree <= 0 {
		return fmt.Errorf("degree caps must be positive")
	}
	if t.ClusterResolution <= 0 {
		return fmt.Errorf("cluster_resolution must be positive, got %v", t.ClusterResolution)
	}
	if t.MinClusterSize < 1 {
		return fmt.Errorf("min_cluster_size must be at least 1, got %d", t.MinClusterSize)
	}
	if t.IntermediateDim <= 0 {
		return fmt.Errorf("intermediate_dim must be positive, got %d", t.IntermediateDim)
	}
	if t.UMAPNeighbors < 2 {
		return fmt.Errorf("umap_neighbors must be at least 2, got %d", t.UMAPNeighbors)
	}
	if t.UMAPMinDist <= 0 || t.UMAPSpread <= 0 {
		return fmt.Errorf("umap_min_dist and umap_spread must be positive")
	}
	if t.UMAPEpochs <= 0 {
		return fmt.Errorf("umap_epochs must be positive, got %d", t.UMAPEpochs)
	}
	if t.TopicResultCount <= 0 || t.ItemResultCount <= 0 {
		return fmt.Errorf("result counts must be positive")
	}
	if t.SimilarityThreshold < 0 || t.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity_threshold must be in [0, 1], got %v", t.SimilarityThreshold)
	}
	if t.MaxEdgesInResults <= 0 {
		return fmt.Errorf("max_edges_in_results must be positive, got %d", t.MaxEdgesInResults)
	}
	return nil
}

// tuningFile mirrors Tuning with pointer fields so an absent YAML key keeps
// the default instead of overwriting it with zero.
type tuningFile struct {
	TopicMergeThreshold *float64 `yaml:"topic_merge_threshold"`

	EdgeCandidateCount  *int     `yaml:"edge_candidate_count"`
	EdgeClassifyCount   *int     `yaml:"edge_classify_count"`
	ClassificationFloor *float64 `yaml:"classification_floor"`
	HierarchyFloor      *float64 `yaml:"hierarchy_floor"`
	MaxParentsPerRound  *int     `yaml:"max_parents_per_round"`
	MaxChildrenPerRound *int     `yaml:"max_children_per_round"`
	MaxSiblingsPerRound *int     `yaml:"max_siblings_per_round"`
	MaxParentDegree     *int     `yaml:"max_parent_degree"`
	MaxChildDegree      *int     `yaml:"max_child_degree"`
	MaxRelatedDegree    *int     `yaml:"max_related_degree"`

	ClusterResolution *float64 `yaml:"cluster_resolution"`
	MinClusterSize    *int     `yaml:"min_cluster_size"`

	IntermediateDim *int     `yaml:"intermediate_dim"`
	UMAPNeighbors   *int     `yaml:"umap_neighbors"`
	UMAPMinDist     *float64 `yaml:"umap_min_dist"`
	UMAPSpread      *float64 `yaml:"umap_spread"`
	UMAPEpochs      *int     `yaml:"umap_epochs"`

	TopicResultCount    *int     `yaml:"topic_result_count"`
	ItemResultCount     *int     `yaml:"item_result_count"`
	SimilarityThreshold *float64 `yaml:"similarity_threshold"`
	MaxEdgesInResults   *int     `yaml:"max_edges_in_results"`
}

func (f tuningFile) overlay(t *Tuning) {
	setF := func(dst *float64, src *float64) {
		if src != nil {
			*dst = *src
		}
	}
	setI := func(dst *int, src *int) {
		if src != nil {
			*dst = *src
		}
	}

	setF(&t.TopicMergeThreshold, f.TopicMergeThreshold)

	setI(&t.EdgeCandidateCount, f.EdgeCandidateCount)
	setI(&t.EdgeClassifyCount, f.EdgeClassifyCount)
	setF(&t.ClassificationFloor, f.ClassificationFloor)
	setF(&t.HierarchyFloor, f.HierarchyFloor)
	setI(&t.MaxParentsPerRound, f.MaxParentsPerRound)
	setI(&t.MaxChildrenPerRound, f.MaxChildrenPerRound)
	setI(&t.MaxSiblingsPerRound, f.MaxSiblingsPerRound)
	setI(&t.MaxParentDegree, f.MaxParentDegree)
	setI(&t.MaxChildDegree, f.MaxChildDegree)
	setI(&t.MaxRelatedDegree, f.MaxRelatedDegree)

	setF(&t.ClusterResolution, f.ClusterResolution)
	setI(&t.MinClusterSize, f.MinClusterSize)

	setI(&t.IntermediateDim, f.IntermediateDim)
	setI(&t.UMAPNeighbors, f.UMAPNeighbors)
	setF(&t.UMAPMinDist, f.UMAPMinDist)
	setF(&t.UMAPSpread, f.UMAPSpread)
	setI(&t.UMAPEpochs, f.UMAPEpochs)

	setI(&t.TopicResultCount, f.TopicResultCount)
	setI(&t.ItemResultCount, f.ItemResultCount)
	setF(&t.SimilarityThreshold, f.SimilarityThreshold)
	setI(&t.MaxEdgesInResults, f.MaxEdgesInResults)
}
