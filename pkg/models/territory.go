package models

import (
	"strings"
	"time"
)

// DefaultOwnerRole is assigned to territories created lazily during a run.
const DefaultOwnerRole = "advisor"

// Territory is the unit of sales ownership, keyed by region + segment.
type Territory struct {
	ID          string     `json:"id" db:"id"`
	TerritoryID string     `json:"territory_id" db:"territory_id"`
	Region      string     `json:"region" db:"region"`
	Segment     string     `json:"segment" db:"segment"`
	OwnerRole   string     `json:"owner_role" db:"owner_role"`
	Description string     `json:"description" db:"description"`
	IsActive    bool       `json:"is_active" db:"is_active"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}

// TerritoryKey derives the deterministic territory id for a region/segment
// pair: the first three letters of each, uppercased, joined by an underscore.
// Either part may be empty, producing a prefix-only key.
func TerritoryKey(region, segment string) string {
	return strings.TrimSuffix(prefix3(region)+"_"+prefix3(segment), "_")
}

// SegmentTerritoryKey derives the fallback key used when a client has no
// resolvable region.
func SegmentTerritoryKey(segment string) string {
	return "GEN_" + prefix3(segment)
}

// TierTerritoryKey combines a client's region prefix with a tier's
// territory suffix.
func TierTerritoryKey(region, suffix string) string {
	return prefix3(region) + "_" + strings.ToUpper(suffix)
}

// prefix3 takes the first three characters, not bytes, so regions like
// "Östlich" keep their leading rune intact.
func prefix3(s string) string {
	runes := []rune(strings.ToUpper(strings.TrimSpace(s)))
	if len(runes) > 3 {
		runes = runes[:3]
	}
	return string(runes)
}
