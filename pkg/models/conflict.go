package models

// ConflictKind classifies an assignment-set inconsistency
type ConflictKind string

const (
	ConflictTerritoryOverlap   ConflictKind = "TERRITORY_OVERLAP"
	ConflictAdvisorConflict    ConflictKind = "ADVISOR_CONFLICT"
	ConflictOrphanedAssignment ConflictKind = "ORPHANED_ASSIGNMENT"
)

// ConflictSeverity grades how actionable a conflict is
type ConflictSeverity string

const (
	SeverityError   ConflictSeverity = "ERROR"
	SeverityWarning ConflictSeverity = "WARNING"
	SeverityInfo    ConflictSeverity = "INFO"
)

// Conflict is one inconsistency found in the current assignment set. Conflicts
// are reported, never auto-resolved.
type Conflict struct {
	Kind         ConflictKind     `json:"kind"`
	Severity     ConflictSeverity `json:"severity"`
	ClientID     string           `json:"client_id,omitempty"`
	TerritoryIDs []string         `json:"territory_ids,omitempty"`
	AdvisorEmail string           `json:"advisor_email,omitempty"`
	Detail       string           `json:"detail"`
}
