package rules

import (
	"net/http"
	"sort"

	"github.com/Gobusters/ectoerror/httperror"

	"github.com/mavasquez401/crm-territory-engine/pkg/criteria"
	"github.com/mavasquez401/crm-territory-engine/pkg/models"
)

// WhitelistRule pins a client to an exact territory. A whitelisted client
// always wins over every other rule.
type WhitelistRule struct {
	whitelist map[string]string
}

func NewWhitelistRule(cfg *models.RuleConfig) *WhitelistRule {
	return &WhitelistRule{whitelist: cfg.Whitelist}
}

func (r *WhitelistRule) Name() string  { return "whitelist" }
func (r *WhitelistRule) Priority() int { return PriorityWhitelist }

func (r *WhitelistRule) Evaluate(client *models.Client, rc *RunContext) *Decision {
	territoryID, ok := r.whitelist[client.ClientID]
	if !ok {
		return nil
	}
	return &Decision{TerritoryID: territoryID, Confidence: 100, Rule: r.Name()}
}

// BlacklistRule never assigns. It vetoes candidate territories so the
// assigner falls through to the next-priority candidate.
type BlacklistRule struct {
	blacklist map[string][]string
}

func NewBlacklistRule(cfg *models.RuleConfig) *BlacklistRule {
	return &BlacklistRule{blacklist: cfg.Blacklist}
}

func (r *BlacklistRule) Name() string  { return "blacklist" }
func (r *BlacklistRule) Priority() int { return PriorityBlacklist }

// Evaluate always abstains; vetoes are applied via Vetoes.
func (r *BlacklistRule) Evaluate(client *models.Client, rc *RunContext) *Decision {
	return nil
}

// Vetoes reports whether the territory is blocked for the client.
func (r *BlacklistRule) Vetoes(clientID, territoryID string) bool {
	for _, t := range r.blacklist[clientID] {
		if t == territoryID {
			return true
		}
	}
	return false
}

// tier is a parsed TierDefinition ready for evaluation.
type tier struct {
	def        models.TierDefinition
	conditions []criteria.Condition
	confidence float64
	order      int // declaration order, the tie-break for equal tier priority
}

// SegmentationTierRule evaluates clients against configured tiers. Tiers are
// checked in ascending tier priority, declaration order breaking ties; the
// first matching tier decides.
type SegmentationTierRule struct {
	tiers []tier
}

// NewSegmentationTierRule parses all tier criteria up front. A malformed
// tier definition fails rule construction, and with it the run, before any
// assignment is attempted.
func NewSegmentationTierRule(cfg *models.RuleConfig) (*SegmentationTierRule, error) {
	tiers := make([]tier, 0, len(cfg.Tiers))
	for i, def := range cfg.Tiers {
		conditions, err := criteria.ParseCriteria(def.Criteria)
		if err != nil {
			return nil, httperror.NewHTTPErrorf(http.StatusBadRequest, "tier %q: %s", def.Name, err.Error())
		}
		if def.TerritorySuffix == "" {
			return nil, httperror.NewHTTPErrorf(http.StatusBadRequest, "tier %q: missing territory_suffix", def.Name)
		}
		tiers = append(tiers, tier{
			def:        def,
			conditions: conditions,
			confidence: tierConfidence(conditions),
			order:      i,
		})
	}

	sort.SliceStable(tiers, func(a, b int) bool {
		if tiers[a].def.Priority != tiers[b].def.Priority {
			return tiers[a].def.Priority < tiers[b].def.Priority
		}
		return tiers[a].order < tiers[b].order
	})

	return &SegmentationTierRule{tiers: tiers}, nil
}

func (r *SegmentationTierRule) Name() string  { return "segmentation_tier" }
func (r *SegmentationTierRule) Priority() int { return PriorityTier }

func (r *SegmentationTierRule) Evaluate(client *models.Client, rc *RunContext) *Decision {
	if client.Region == "" {
		return nil
	}

	data := client.Data()
	for _, t := range r.tiers {
		if criteria.Matches(data, t.conditions) {
			return &Decision{
				TerritoryID: models.TierTerritoryKey(client.Region, t.def.TerritorySuffix),
				Region:      client.Region,
				Segment:     t.def.TerritorySuffix,
				Confidence:  t.confidence,
				Rule:        r.Name(),
			}
		}
	}
	return nil
}

// tierConfidence derives a decision confidence from criteria specificity.
// Each exact condition counts double a range bound; the score is clamped to
// the 75-95 band so a tier decision never outranks a whitelist pin.
func tierConfidence(conditions []criteria.Condition) float64 {
	confidence := 75 + 5*float64(criteria.Specificity(conditions))
	if confidence > 95 {
		confidence = 95
	}
	return confidence
}

// RegionRule derives a territory from the region and segment prefixes when
// both fields are present.
type RegionRule struct{}

func NewRegionRule() *RegionRule { return &RegionRule{} }

func (r *RegionRule) Name() string  { return "region" }
func (r *RegionRule) Priority() int { return PriorityRegion }

func (r *RegionRule) Evaluate(client *models.Client, rc *RunContext) *Decision {
	if client.Region == "" || client.Segment == "" {
		return nil
	}
	return &Decision{
		TerritoryID: models.TerritoryKey(client.Region, client.Segment),
		Region:      client.Region,
		Segment:     client.Segment,
		Confidence:  90,
		Rule:        r.Name(),
	}
}

// SegmentRule is the last-resort fallback: a segment-only general territory.
// It runs after RegionRule, so it only decides when the region is missing or
// the region candidate was vetoed.
type SegmentRule struct{}

func NewSegmentRule() *SegmentRule { return &SegmentRule{} }

func (r *SegmentRule) Name() string  { return "segment" }
func (r *SegmentRule) Priority() int { return PrioritySegment }

func (r *SegmentRule) Evaluate(client *models.Client, rc *RunContext) *Decision {
	if client.Segment == "" {
		return nil
	}
	return &Decision{
		TerritoryID: models.SegmentTerritoryKey(client.Segment),
		Segment:     client.Segment,
		Confidence:  70,
		Rule:        r.Name(),
	}
}

// RuleSet is the full ordered rule chain for a run plus its blacklist filter.
type RuleSet struct {
	Rules     []Rule
	Blacklist *BlacklistRule
}

// NewRuleSet builds the standard rule chain from a run's configuration.
// Construction validates the configuration; any defect is returned as an
// error so the run fails before assignments are attempted.
func NewRuleSet(cfg *models.RuleConfig) (*RuleSet, error) {
	if err := validateWhitelist(cfg.Whitelist); err != nil {
		return nil, err
	}

	tierRule, err := NewSegmentationTierRule(cfg)
	if err != nil {
		return nil, err
	}

	blacklist := NewBlacklistRule(cfg)
	ordered := []Rule{
		NewWhitelistRule(cfg),
		blacklist,
		tierRule,
		NewRegionRule(),
		NewSegmentRule(),
	}

	sort.SliceStable(ordered, func(a, b int) bool {
		return ordered[a].Priority() < ordered[b].Priority()
	})

	return &RuleSet{Rules: ordered, Blacklist: blacklist}, nil
}

func validateWhitelist(whitelist map[string]string) error {
	for clientID, territoryID := range whitelist {
		if clientID == "" || territoryID == "" {
			return httperror.NewHTTPErrorf(http.StatusBadRequest, "whitelist entry %q -> %q is incomplete", clientID, territoryID)
		}
	}
	return nil
}
