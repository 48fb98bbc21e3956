package models

import (
	"encoding/json"
	"time"
)

// RuleConfig is the full rule configuration for a run. It is loaded once at
// the start of a run and treated as immutable input.
type RuleConfig struct {
	Whitelist map[string]string   `json:"whitelist"` // client_id -> territory_id
	Blacklist map[string][]string `json:"blacklist"` // client_id -> blocked territory_ids
	Tiers     []TierDefinition    `json:"tiers"`
}

// TierDefinition is a segmentation tier with its matching criteria. Criteria
// support equality plus numeric bounds via min_/max_ key prefixes. Tiers are
// evaluated in ascending Priority, ties broken by declaration order.
type TierDefinition struct {
	Name            string          `json:"name" db:"name"`
	Criteria        json.RawMessage `json:"criteria" db:"criteria"`
	TerritorySuffix string          `json:"territory_suffix" db:"territory_suffix"`
	Priority        int             `json:"priority" db:"priority"`
	AdvisorCapacity int             `json:"advisor_capacity" db:"advisor_capacity"`
}

// RuleConfigRecord is a persisted rule configuration document. Kind selects
// which of the three config maps the payload belongs to.
type RuleConfigRecord struct {
	ID        string          `json:"id" db:"id"`
	Kind      string          `json:"kind" db:"kind"`
	Payload   json.RawMessage `json:"payload" db:"payload"`
	IsActive  bool            `json:"is_active" db:"is_active"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
	DeletedAt *time.Time      `json:"deleted_at,omitempty" db:"deleted_at"`
}

// RuleConfigRecord kinds
const (
	RuleConfigKindWhitelist = "whitelist"
	RuleConfigKindBlacklist = "blacklist"
	RuleConfigKindTier      = "tier"
)
