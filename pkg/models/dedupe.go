package models

// DuplicateCluster is a group of client records believed to refer to the same
// real-world entity. Clusters are produced fresh per run and consumed as a
// report plus a merge mapping; they are not persisted as entities.
type DuplicateCluster struct {
	ClusterID   string      `json:"cluster_id"`
	MemberIDs   []string    `json:"member_ids"`
	CanonicalID string      `json:"canonical_id"`
	Pairs       []MatchPair `json:"pairs"`
}

// MatchPair records the similarity evidence linking two cluster members.
type MatchPair struct {
	ClientA    string  `json:"client_a"`
	ClientB    string  `json:"client_b"`
	Score      float64 `json:"score"`
	Confidence string  `json:"confidence"`
}

// ResolutionReport is the Entity Resolver's output artifact for a run.
type ResolutionReport struct {
	Clusters     []DuplicateCluster `json:"clusters"`
	MergeMapping map[string]string  `json:"merge_mapping"` // duplicate_id -> canonical_id
	InputCount   int                `json:"input_count"`
	MergedCount  int                `json:"merged_count"`
	Warnings     []string           `json:"warnings"`
}

// Merge strategies for canonical record selection
const (
	MergeStrategyMostComplete = "most_complete"
	MergeStrategyFirst        = "first"
	MergeStrategyManual       = "manual"
)
