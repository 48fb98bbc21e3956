package models

import "time"

// ChangeType classifies one entry in the assignment audit diff
type ChangeType string

const (
	ChangeTypeNew     ChangeType = "NEW"
	ChangeTypeChanged ChangeType = "CHANGED"
	ChangeTypeRemoved ChangeType = "REMOVED"
)

// AssignmentChange is one audit-log entry produced by diffing the previous
// assignment snapshot against a fresh evaluation.
type AssignmentChange struct {
	ID              string     `json:"id" db:"id"`
	ClientID        string     `json:"client_id" db:"client_id"`
	ChangeType      ChangeType `json:"change_type" db:"change_type"`
	OldTerritoryID  *string    `json:"old_territory_id,omitempty" db:"old_territory_id"`
	NewTerritoryID  *string    `json:"new_territory_id,omitempty" db:"new_territory_id"`
	OldAdvisorEmail *string    `json:"old_advisor_email,omitempty" db:"old_advisor_email"`
	NewAdvisorEmail *string    `json:"new_advisor_email,omitempty" db:"new_advisor_email"`
	Rule            string     `json:"rule" db:"rule"`
	RunID           string     `json:"run_id" db:"run_id"`
	ChangedAt       time.Time  `json:"changed_at" db:"changed_at"`
}
