package rules

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mavasquez401/crm-territory-engine/pkg/models"
)

func emptyConfig() *models.RuleConfig {
	return &models.RuleConfig{
		Whitelist: map[string]string{},
		Blacklist: map[string][]string{},
	}
}

func TestWhitelistRule(t *testing.T) {
	cfg := emptyConfig()
	cfg.Whitelist["C1"] = "WEST_VIP"
	rule := NewWhitelistRule(cfg)

	t.Run("whitelisted client gets pinned territory", func(t *testing.T) {
		decision := rule.Evaluate(&models.Client{ClientID: "C1", Region: "Northeast"}, &RunContext{Config: cfg})
		require.NotNil(t, decision)
		assert.Equal(t, "WEST_VIP", decision.TerritoryID)
		assert.Equal(t, 100.0, decision.Confidence)
	})

	t.Run("other clients abstain", func(t *testing.T) {
		assert.Nil(t, rule.Evaluate(&models.Client{ClientID: "C2"}, &RunContext{Config: cfg}))
	})
}

func TestBlacklistRule(t *testing.T) {
	cfg := emptyConfig()
	cfg.Blacklist["C1"] = []string{"NOR_INS", "NOR_RET"}
	rule := NewBlacklistRule(cfg)

	t.Run("never assigns", func(t *testing.T) {
		assert.Nil(t, rule.Evaluate(&models.Client{ClientID: "C1"}, &RunContext{Config: cfg}))
	})

	t.Run("vetoes listed territories only", func(t *testing.T) {
		assert.True(t, rule.Vetoes("C1", "NOR_INS"))
		assert.True(t, rule.Vetoes("C1", "NOR_RET"))
		assert.False(t, rule.Vetoes("C1", "GEN_INS"))
		assert.False(t, rule.Vetoes("C2", "NOR_INS"))
	})
}

func TestRegionRule(t *testing.T) {
	rule := NewRegionRule()

	t.Run("derives territory from region and segment prefixes", func(t *testing.T) {
		decision := rule.Evaluate(&models.Client{ClientID: "1", Region: "Northeast", Segment: "Institutional"}, nil)
		require.NotNil(t, decision)
		assert.Equal(t, "NOR_INS", decision.TerritoryID)
		assert.Equal(t, 90.0, decision.Confidence)
	})

	t.Run("abstains without region", func(t *testing.T) {
		assert.Nil(t, rule.Evaluate(&models.Client{Segment: "Institutional"}, nil))
	})

	t.Run("abstains without segment", func(t *testing.T) {
		assert.Nil(t, rule.Evaluate(&models.Client{Region: "Northeast"}, nil))
	})
}

func TestSegmentRule(t *testing.T) {
	rule := NewSegmentRule()

	t.Run("assigns general territory from segment", func(t *testing.T) {
		decision := rule.Evaluate(&models.Client{ClientID: "1", Segment: "Institutional"}, nil)
		require.NotNil(t, decision)
		assert.Equal(t, "GEN_INS", decision.TerritoryID)
		assert.Equal(t, 70.0, decision.Confidence)
	})

	t.Run("abstains without segment", func(t *testing.T) {
		assert.Nil(t, rule.Evaluate(&models.Client{Region: "Northeast"}, nil))
	})
}

func TestSegmentationTierRule(t *testing.T) {
	cfg := emptyConfig()
	cfg.Tiers = []models.TierDefinition{
		{
			Name:            "platinum",
			Criteria:        json.RawMessage(`{"segment": "Institutional", "min_aum": 1000000}`),
			TerritorySuffix: "PLT",
			Priority:        1,
		},
		{
			Name:            "gold",
			Criteria:        json.RawMessage(`{"min_aum": 250000}`),
			TerritorySuffix: "GLD",
			Priority:        2,
		},
	}

	rule, err := NewSegmentationTierRule(cfg)
	require.NoError(t, err)

	client := func(aum float64) *models.Client {
		return &models.Client{
			ClientID:   "C1",
			Region:     "Northeast",
			Segment:    "Institutional",
			Attributes: json.RawMessage(`{"aum": ` + jsonFloat(aum) + `}`),
		}
	}

	t.Run("first matching tier by priority wins", func(t *testing.T) {
		decision := rule.Evaluate(client(2000000), nil)
		require.NotNil(t, decision)
		assert.Equal(t, "NOR_PLT", decision.TerritoryID)
	})

	t.Run("falls through to lower-priority tier", func(t *testing.T) {
		decision := rule.Evaluate(client(300000), nil)
		require.NotNil(t, decision)
		assert.Equal(t, "NOR_GLD", decision.TerritoryID)
	})

	t.Run("abstains when no tier matches", func(t *testing.T) {
		assert.Nil(t, rule.Evaluate(client(1000), nil))
	})

	t.Run("abstains without region", func(t *testing.T) {
		c := client(2000000)
		c.Region = ""
		assert.Nil(t, rule.Evaluate(c, nil))
	})

	t.Run("exact criteria outrank range criteria in confidence", func(t *testing.T) {
		platinum := rule.Evaluate(client(2000000), nil)
		gold := rule.Evaluate(client(300000), nil)
		require.NotNil(t, platinum)
		require.NotNil(t, gold)
		assert.Greater(t, platinum.Confidence, gold.Confidence)
	})

	t.Run("equal priority ties break by declaration order", func(t *testing.T) {
		tied := emptyConfig()
		tied.Tiers = []models.TierDefinition{
			{Name: "a", Criteria: json.RawMessage(`{"segment": "Institutional"}`), TerritorySuffix: "AAA", Priority: 5},
			{Name: "b", Criteria: json.RawMessage(`{"segment": "Institutional"}`), TerritorySuffix: "BBB", Priority: 5},
		}
		tiedRule, err := NewSegmentationTierRule(tied)
		require.NoError(t, err)

		decision := tiedRule.Evaluate(&models.Client{ClientID: "C1", Region: "Northeast", Segment: "Institutional"}, nil)
		require.NotNil(t, decision)
		assert.Equal(t, "NOR_AAA", decision.TerritoryID)
	})
}

func TestNewRuleSet(t *testing.T) {
	t.Run("orders rules by ascending priority", func(t *testing.T) {
		set, err := NewRuleSet(emptyConfig())
		require.NoError(t, err)

		names := make([]string, 0, len(set.Rules))
		for _, r := range set.Rules {
			names = append(names, r.Name())
		}
		assert.Equal(t, []string{"whitelist", "blacklist", "segmentation_tier", "region", "segment"}, names)
	})

	t.Run("malformed tier criteria fails construction", func(t *testing.T) {
		cfg := emptyConfig()
		cfg.Tiers = []models.TierDefinition{
			{Name: "broken", Criteria: json.RawMessage(`{"min_aum": "lots"}`), TerritorySuffix: "BRK"},
		}
		_, err := NewRuleSet(cfg)
		assert.Error(t, err)
	})

	t.Run("incomplete whitelist entry fails construction", func(t *testing.T) {
		cfg := emptyConfig()
		cfg.Whitelist[""] = "NOR_INS"
		_, err := NewRuleSet(cfg)
		assert.Error(t, err)
	})
}

func jsonFloat(f float64) string {
	b, _ := json.Marshal(f)
	return string(b)
}
