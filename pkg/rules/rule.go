// Package rules implements the priority-ordered territory assignment rules.
// Each rule is stateless: it reads the client and the shared run context and
// either returns a decision or abstains (nil). Lower priority runs first.
package rules

import (
	"github.com/mavasquez401/crm-territory-engine/pkg/models"
)

// Rule priorities. Lower evaluates first.
const (
	PriorityWhitelist = 10
	PriorityBlacklist = 20
	PriorityTier      = 50
	PriorityRegion    = 100
	PrioritySegment   = 100 // same tier as Region, evaluated after it
)

// Decision is a rule's proposed territory for a client. Region and Segment
// carry the attributes the territory should hold if it does not exist yet;
// rules that pin an externally managed territory (whitelist) leave them empty.
type Decision struct {
	TerritoryID string  `json:"territory_id"`
	Region      string  `json:"region,omitempty"`
	Segment     string  `json:"segment,omitempty"`
	Confidence  float64 `json:"confidence"`
	Rule        string  `json:"rule"`
}

// RunContext is the shared, read-only state rules may consult during one run.
type RunContext struct {
	Config      *models.RuleConfig
	Territories map[string]*models.Territory  // territory_id -> territory
	Prior       map[string]*models.Assignment // client_id -> prior current PRIMARY
}

// Rule is one unit of assignment logic. Evaluate returns nil to abstain;
// abstaining is an explicit "no opinion", not an error. Implementations must
// be side-effect-free and must not mutate the run context.
type Rule interface {
	Name() string
	Priority() int
	Evaluate(client *models.Client, rc *RunContext) *Decision
}
