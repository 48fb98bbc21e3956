package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType defines the type of event
type EventType string

const (
	// Run lifecycle events
	EventTypeRunStarted   EventType = "run.started"
	EventTypeRunCompleted EventType = "run.completed"
	EventTypeRunFailed    EventType = "run.failed"

	// Assignment events
	EventTypeAssignmentChanged EventType = "assignment.changed"

	// Resolution events
	EventTypeClientMerged EventType = "client.merged"

	// Territory events
	EventTypeTerritoryCreated EventType = "territory.created"

	// Conflict events
	EventTypeConflictDetected EventType = "conflict.detected"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventType     EventType `json:"event_type"`
	SchemaVersion string    `json:"schema_version"`
	RunID         string    `json:"run_id"`
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// RunStartedEvent is emitted when an assignment run begins
type RunStartedEvent struct {
	BaseEvent
	ClientCount int `json:"client_count"`
}

// RunCompletedEvent is emitted when an assignment run finishes successfully
type RunCompletedEvent struct {
	BaseEvent
	ClientCount   int      `json:"client_count"`
	ResolvedCount int      `json:"resolved_count"`
	AssignedCount int      `json:"assigned_count"`
	UnassignedIDs []string `json:"unassigned_ids,omitempty"`
	ConflictCount int      `json:"conflict_count"`
	ChangeCount   int      `json:"change_count"`
	DurationMs    int64    `json:"duration_ms"`
}

// RunFailedEvent is emitted when an assignment run aborts
type RunFailedEvent struct {
	BaseEvent
	Error string `json:"error"`
}

// AssignmentChangedEvent is emitted for each entry in a run's audit diff
type AssignmentChangedEvent struct {
	BaseEvent
	ClientID        string  `json:"client_id"`
	ChangeType      string  `json:"change_type"`
	OldTerritoryID  *string `json:"old_territory_id,omitempty"`
	NewTerritoryID  *string `json:"new_territory_id,omitempty"`
	OldAdvisorEmail *string `json:"old_advisor_email,omitempty"`
	NewAdvisorEmail *string `json:"new_advisor_email,omitempty"`
	Rule            string  `json:"rule,omitempty"`
}

// ClientMergedEvent is emitted when duplicate client records are collapsed
type ClientMergedEvent struct {
	BaseEvent
	CanonicalID string   `json:"canonical_id"`
	MergedIDs   []string `json:"merged_ids"`
	ClusterID   string   `json:"cluster_id"`
}

// TerritoryCreatedEvent is emitted when a run lazily creates a territory
type TerritoryCreatedEvent struct {
	BaseEvent
	TerritoryID string `json:"territory_id"`
	Region      string `json:"region"`
	Segment     string `json:"segment"`
}

// ConflictDetectedEvent is emitted for each conflict found after a run
type ConflictDetectedEvent struct {
	BaseEvent
	Kind         string   `json:"kind"`
	Severity     string   `json:"severity"`
	ClientID     string   `json:"client_id,omitempty"`
	TerritoryIDs []string `json:"territory_ids,omitempty"`
	AdvisorEmail string   `json:"advisor_email,omitempty"`
	Detail       string   `json:"detail"`
}

// NewBaseEvent creates a base event with common fields
func NewBaseEvent(eventType EventType, runID string) BaseEvent {
	return BaseEvent{
		EventType:     eventType,
		SchemaVersion: SchemaVersion,
		RunID:         runID,
		Timestamp:     time.Now().UTC(),
		CorrelationID: uuid.New().String(),
	}
}
