package dedupe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mavasquez401/crm-territory-engine/pkg/models"
)

func client(id, name string, extra ...string) *models.Client {
	c := &models.Client{ClientID: id, Name: name, IsActive: true}
	if len(extra) > 0 {
		c.Region = extra[0]
	}
	if len(extra) > 1 {
		c.Segment = extra[1]
	}
	return c
}

func TestResolve_EditDistanceOne(t *testing.T) {
	resolver := NewResolver(DefaultConfig())

	report := resolver.Resolve([]*models.Client{
		client("C1", "Atlas Capital Partners"),
		client("C2", "Atlas Capital Partner"),
		client("C3", "Meridian Wealth Group"),
	})

	require.Len(t, report.Clusters, 1)
	cluster := report.Clusters[0]
	assert.Equal(t, []string{"C1", "C2"}, cluster.MemberIDs)
	require.Len(t, cluster.Pairs, 1)
	assert.Equal(t, models.ConfidenceHigh, cluster.Pairs[0].Confidence)
}

func TestResolve_IdenticalNormalizedNamesAlwaysCluster(t *testing.T) {
	resolver := NewResolver(DefaultConfig())

	report := resolver.Resolve([]*models.Client{
		client("C1", "ATLAS capital partners", "Northeast", "Institutional"),
		client("C2", "Atlas Capital Partners", "West", "Retail"),
	})

	require.Len(t, report.Clusters, 1)
	assert.Equal(t, []string{"C1", "C2"}, report.Clusters[0].MemberIDs)
}

func TestResolve_TransitiveClosure(t *testing.T) {
	// A-B and B-C score above threshold; A-C on its own may not, but all
	// three must land in one cluster.
	resolver := NewResolver(Config{Threshold: 90, Strategy: models.MergeStrategyFirst})

	report := resolver.Resolve([]*models.Client{
		client("C1", "Atlas Capital Partners Group"),
		client("C2", "Atlas Capital Partners Grp"),
		client("C3", "Atlas Capital Prtnrs Grp"),
	})

	require.Len(t, report.Clusters, 1)
	assert.Equal(t, []string{"C1", "C2", "C3"}, report.Clusters[0].MemberIDs)
	assert.Equal(t, "C1", report.Clusters[0].CanonicalID)
}

func TestResolve_MostCompleteCanonical(t *testing.T) {
	resolver := NewResolver(DefaultConfig())

	sparse := client("C1", "Atlas Capital Partners")
	full := client("C2", "Atlas Capital Partner", "Northeast", "Institutional")
	full.AdvisorEmail = "advisor@example.com"

	report := resolver.Resolve([]*models.Client{sparse, full})

	require.Len(t, report.Clusters, 1)
	assert.Equal(t, "C2", report.Clusters[0].CanonicalID)
	assert.Equal(t, "C2", report.MergeMapping["C1"])
}

func TestResolve_MostCompleteTieBreaksByLowestID(t *testing.T) {
	resolver := NewResolver(DefaultConfig())

	report := resolver.Resolve([]*models.Client{
		client("C9", "Atlas Capital Partners", "Northeast", "Institutional"),
		client("C2", "Atlas Capital Partner", "West", "Retail"),
	})

	require.Len(t, report.Clusters, 1)
	assert.Equal(t, "C2", report.Clusters[0].CanonicalID)
}

func TestResolve_ManualStrategyReportsWithoutMerging(t *testing.T) {
	resolver := NewResolver(Config{Threshold: 85, Strategy: models.MergeStrategyManual})

	report := resolver.Resolve([]*models.Client{
		client("C1", "Atlas Capital Partners"),
		client("C2", "Atlas Capital Partner"),
	})

	require.Len(t, report.Clusters, 1)
	assert.Empty(t, report.Clusters[0].CanonicalID)
	assert.Empty(t, report.MergeMapping)
	assert.Zero(t, report.MergedCount)
}

func TestResolve_EmptyClientIDSkippedWithWarning(t *testing.T) {
	resolver := NewResolver(DefaultConfig())

	report := resolver.Resolve([]*models.Client{
		client("", "Ghost Record"),
		client("C1", "Atlas Capital Partners"),
	})

	assert.Empty(t, report.Clusters)
	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0], "empty client_id")
}

func TestResolve_Idempotent(t *testing.T) {
	resolver := NewResolver(DefaultConfig())

	input := []*models.Client{
		client("C1", "Atlas Capital Partners", "Northeast", "Institutional"),
		client("C2", "Atlas Capital Partner"),
		client("C3", "Meridian Wealth Group", "West", "Retail"),
	}

	first := resolver.Resolve(input)
	survivors := ApplyMerges(input, first.MergeMapping)

	second := resolver.Resolve(survivors)
	assert.Empty(t, second.MergeMapping)
	assert.Zero(t, second.MergedCount)
}

func TestApplyMergesAndMarkMerged(t *testing.T) {
	input := []*models.Client{
		client("C1", "Atlas Capital Partners", "Northeast", "Institutional"),
		client("C2", "Atlas Capital Partner"),
	}
	mapping := map[string]string{"C2": "C1"}

	survivors := ApplyMerges(input, mapping)
	require.Len(t, survivors, 1)
	assert.Equal(t, "C1", survivors[0].ClientID)

	merged := MarkMerged(input, mapping)
	require.Len(t, merged, 1)
	assert.Equal(t, "C2", merged[0].ClientID)
	assert.False(t, merged[0].IsActive)
	require.NotNil(t, merged[0].MergedInto)
	assert.Equal(t, "C1", *merged[0].MergedInto)
}
