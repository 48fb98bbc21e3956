// Package dedupe groups raw client records into duplicate clusters and picks
// a canonical record per cluster.
package dedupe

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mavasquez401/crm-territory-engine/pkg/matching"
	"github.com/mavasquez401/crm-territory-engine/pkg/models"
	"github.com/mavasquez401/crm-territory-engine/pkg/normalizers"
)

// Config controls one resolution run.
type Config struct {
	// Threshold is the minimum 0-100 similarity for two records to be
	// considered duplicates.
	Threshold float64
	// Strategy selects the canonical record per cluster: most_complete,
	// first, or manual (report only, no merge).
	Strategy string
}

// DefaultConfig returns the standard resolution settings.
func DefaultConfig() Config {
	return Config{
		Threshold: 85,
		Strategy:  models.MergeStrategyMostComplete,
	}
}

// Resolver clusters duplicate client records.
//
// Pairwise comparison is bounded by blocking: records are grouped by the
// Soundex code of the first token of the normalized name, and only pairs
// within a block are scored. Records whose full normalized names are
// identical always share a first token, so they always land in the same
// block and are always compared.
type Resolver struct {
	scorer *matching.Scorer
	config Config
}

// NewResolver creates a Resolver. Invalid config values fall back to
// defaults.
func NewResolver(config Config) *Resolver {
	if config.Threshold <= 0 || config.Threshold > 100 {
		config.Threshold = DefaultConfig().Threshold
	}
	switch config.Strategy {
	case models.MergeStrategyMostComplete, models.MergeStrategyFirst, models.MergeStrategyManual:
	default:
		config.Strategy = DefaultConfig().Strategy
	}
	return &Resolver{scorer: matching.NewScorer(), config: config}
}

// Resolve clusters the given records and returns the merge mapping plus a
// report. It never mutates the input; the caller decides whether to apply
// the merge. Records with an empty client_id are skipped with a warning,
// never fatally.
func (r *Resolver) Resolve(clients []*models.Client) *models.ResolutionReport {
	report := &models.ResolutionReport{
		MergeMapping: make(map[string]string),
		InputCount:   len(clients),
	}

	valid := make([]*models.Client, 0, len(clients))
	for _, c := range clients {
		if c.ClientID == "" {
			report.Warnings = append(report.Warnings, fmt.Sprintf("skipped record with empty client_id (name=%q)", c.Name))
			continue
		}
		valid = append(valid, c)
	}

	// Deterministic processing order
	sort.Slice(valid, func(a, b int) bool { return valid[a].ClientID < valid[b].ClientID })

	uf := newUnionFind(len(valid))
	pairs := make(map[int][]models.MatchPair)

	for _, block := range r.blocks(valid) {
		for i := 0; i < len(block); i++ {
			for j := i + 1; j < len(block); j++ {
				a, b := block[i], block[j]
				score := r.scorer.NameSimilarity(valid[a].Name, valid[b].Name)
				if score < r.config.Threshold {
					continue
				}
				uf.union(a, b)
				root := uf.find(a)
				pairs[root] = append(pairs[root], models.MatchPair{
					ClientA:    valid[a].ClientID,
					ClientB:    valid[b].ClientID,
					Score:      score,
					Confidence: models.ConfidenceBand(score),
				})
			}
		}
	}

	// Collect clusters of size >= 2
	members := make(map[int][]int)
	for i := range valid {
		root := uf.find(i)
		members[root] = append(members[root], i)
	}

	roots := make([]int, 0, len(members))
	for root, m := range members {
		if len(m) > 1 {
			roots = append(roots, root)
		}
	}
	sort.Slice(roots, func(a, b int) bool {
		return valid[members[roots[a]][0]].ClientID < valid[members[roots[b]][0]].ClientID
	})

	for _, root := range roots {
		cluster := r.buildCluster(valid, members[root])
		// pairs may have accumulated under pre-union roots
		cluster.Pairs = collectPairs(pairs, members[root], uf)

		report.Clusters = append(report.Clusters, cluster)

		if r.config.Strategy == models.MergeStrategyManual {
			continue
		}
		for _, id := range cluster.MemberIDs {
			if id != cluster.CanonicalID {
				report.MergeMapping[id] = cluster.CanonicalID
				report.MergedCount++
			}
		}
	}

	return report
}

// blocks partitions record indexes into candidate blocks keyed by the
// Soundex code of the normalized name's first token.
func (r *Resolver) blocks(clients []*models.Client) map[string][]int {
	blocks := make(map[string][]int)
	for i, c := range clients {
		name := normalizers.NormalizeOrgName(c.Name)
		if name == "" {
			continue
		}
		first, _, _ := strings.Cut(name, " ")
		key := r.scorer.Soundex(first)
		blocks[key] = append(blocks[key], i)
	}
	return blocks
}

func (r *Resolver) buildCluster(clients []*models.Client, member []int) models.DuplicateCluster {
	ids := make([]string, 0, len(member))
	for _, idx := range member {
		ids = append(ids, clients[idx].ClientID)
	}
	sort.Strings(ids)

	cluster := models.DuplicateCluster{
		ClusterID: "cluster-" + ids[0],
		MemberIDs: ids,
	}

	switch r.config.Strategy {
	case models.MergeStrategyFirst:
		cluster.CanonicalID = ids[0]
	case models.MergeStrategyMostComplete:
		cluster.CanonicalID = mostComplete(clients, member)
	case models.MergeStrategyManual:
		// cluster is emitted for external resolution, no canonical chosen
	}

	return cluster
}

// mostComplete picks the record with the most populated fields, ties broken
// by lowest client_id.
func mostComplete(clients []*models.Client, member []int) string {
	best := ""
	bestScore := -1
	for _, idx := range member {
		c := clients[idx]
		score := c.Completeness()
		if score > bestScore || (score == bestScore && c.ClientID < best) {
			best = c.ClientID
			bestScore = score
		}
	}
	return best
}

func collectPairs(pairs map[int][]models.MatchPair, member []int, uf *unionFind) []models.MatchPair {
	seen := make(map[int]bool)
	var out []models.MatchPair
	for root, ps := range pairs {
		if seen[root] {
			continue
		}
		if uf.find(root) == uf.find(member[0]) {
			out = append(out, ps...)
			seen[root] = true
		}
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].ClientA != out[b].ClientA {
			return out[a].ClientA < out[b].ClientA
		}
		return out[a].ClientB < out[b].ClientB
	})
	return out
}

// ApplyMerges returns the post-merge client set: duplicates are dropped and
// each canonical record is annotated with the ids merged into it. Input
// records are not mutated.
func ApplyMerges(clients []*models.Client, mapping map[string]string) []*models.Client {
	out := make([]*models.Client, 0, len(clients))
	for _, c := range clients {
		if _, merged := mapping[c.ClientID]; merged {
			continue
		}
		out = append(out, c)
	}
	return out
}

// MarkMerged flags duplicate records as merged into their canonical record.
// Returns the modified duplicates for persistence.
func MarkMerged(clients []*models.Client, mapping map[string]string) []*models.Client {
	var merged []*models.Client
	for _, c := range clients {
		canonical, ok := mapping[c.ClientID]
		if !ok {
			continue
		}
		c.IsActive = false
		c.MergedInto = &canonical
		merged = append(merged, c)
	}
	return merged
}

// unionFind is a disjoint-set over record indexes, used for the transitive
// closure of pairwise matches.
type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	return &unionFind{parent: parent}
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	// Lower index wins as root for deterministic cluster identity
	if ra < rb {
		u.parent[rb] = ra
	} else {
		u.parent[ra] = rb
	}
}
