package models

import "time"

// RunStatus tracks a pipeline run's lifecycle
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// RuleStats counts decisions per rule for one run.
type RuleStats struct {
	Rule        string  `json:"rule"`
	Assignments int     `json:"assignments"`
	Vetoes      int     `json:"vetoes"`
	AvgScore    float64 `json:"avg_score"`
}

// RunReport summarizes one full pipeline run: dedup, assignment, conflicts,
// and the audit diff against the prior snapshot.
type RunReport struct {
	RunID           string             `json:"run_id"`
	Status          RunStatus          `json:"status"`
	StartedAt       time.Time          `json:"started_at"`
	FinishedAt      *time.Time         `json:"finished_at,omitempty"`
	ClientCount     int                `json:"client_count"`
	ResolvedCount   int                `json:"resolved_count"`
	AssignedCount   int                `json:"assigned_count"`
	UnassignedIDs   []string           `json:"unassigned_ids,omitempty"`
	Resolution      *ResolutionReport  `json:"resolution,omitempty"`
	Conflicts       []Conflict         `json:"conflicts,omitempty"`
	Changes         []AssignmentChange `json:"changes,omitempty"`
	RuleStats       []RuleStats        `json:"rule_stats,omitempty"`
	QualityWarnings []string           `json:"quality_warnings,omitempty"`
	Error           string             `json:"error,omitempty"`
}
