package models

import "time"

// AssignmentType distinguishes the authoritative territory from advisory ones
type AssignmentType string

const (
	AssignmentTypePrimary   AssignmentType = "PRIMARY"
	AssignmentTypeSecondary AssignmentType = "SECONDARY"
)

// Confidence bands for match and assignment scores
const (
	ConfidenceHigh   = "HIGH"   // >= 95
	ConfidenceMedium = "MEDIUM" // 85-94
	ConfidenceLow    = "LOW"    // 75-84
)

// ConfidenceBand maps a 0-100 score to its band. Scores below the low bound
// return an empty string.
func ConfidenceBand(score float64) string {
	switch {
	case score >= 95:
		return ConfidenceHigh
	case score >= 85:
		return ConfidenceMedium
	case score >= 75:
		return ConfidenceLow
	default:
		return ""
	}
}

// Assignment binds a client to a territory. The assignment history is
// append-only: superseded rows are closed out with is_current=false and an
// end date, never deleted.
type Assignment struct {
	ID              string         `json:"id" db:"id"`
	ClientID        string         `json:"client_id" db:"client_id"`
	TerritoryID     string         `json:"territory_id" db:"territory_id"`
	AssignmentType  AssignmentType `json:"assignment_type" db:"assignment_type"`
	AdvisorEmail    string         `json:"advisor_email" db:"advisor_email"`
	IsCurrent       bool           `json:"is_current" db:"is_current"`
	EffectiveDate   time.Time      `json:"effective_date" db:"effective_date"`
	EndDate         *time.Time     `json:"end_date,omitempty" db:"end_date"`
	AssignedByRule  string         `json:"assigned_by_rule" db:"assigned_by_rule"`
	ConfidenceScore float64        `json:"confidence_score" db:"confidence_score"`
	RunID           string         `json:"run_id" db:"run_id"`
	CreatedAt       time.Time      `json:"created_at" db:"created_at"`
}

// Key identifies the logical assignment independent of history rows.
func (a *Assignment) Key() string {
	return a.ClientID + "|" + a.TerritoryID + "|" + string(a.AssignmentType)
}
