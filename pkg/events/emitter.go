// Package events handles event emission for assignment run lifecycle changes
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/mavasquez401/crm-territory-engine/pkg/kafka"
	"github.com/mavasquez401/crm-territory-engine/pkg/models"
	"github.com/mavasquez401/crm-territory-engine/pkg/tracing"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

// Emitter handles event emission for the territory engine
type Emitter struct {
	producer *kafka.Producer
	logger   ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(producer *kafka.Producer, logger ectologger.Logger) *Emitter {
	return &Emitter{
		producer: producer,
		logger:   logger,
	}
}

func (e *Emitter) publish(ctx context.Context, eventType EventType, runID, clientID string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	event := &kafka.TerritoryEvent{
		EventType: string(eventType),
		RunID:     runID,
		ClientID:  clientID,
		Data:      data,
	}

	if err := e.producer.PublishEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).WithField("event_type", string(eventType)).Error("Failed to emit event")
		return err
	}

	return nil
}

// EmitRunStarted emits a run.started event
func (e *Emitter) EmitRunStarted(ctx context.Context, runID string, clientCount int) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitRunStarted")
	defer span.End()

	return e.publish(ctx, EventTypeRunStarted, runID, "", RunStartedEvent{
		BaseEvent:   NewBaseEvent(EventTypeRunStarted, runID),
		ClientCount: clientCount,
	})
}

// EmitRunCompleted emits a run.completed event summarizing the run
func (e *Emitter) EmitRunCompleted(ctx context.Context, report *models.RunReport) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitRunCompleted")
	defer span.End()

	var durationMs int64
	if report.FinishedAt != nil {
		durationMs = report.FinishedAt.Sub(report.StartedAt).Milliseconds()
	}

	return e.publish(ctx, EventTypeRunCompleted, report.RunID, "", RunCompletedEvent{
		BaseEvent:     NewBaseEvent(EventTypeRunCompleted, report.RunID),
		ClientCount:   report.ClientCount,
		ResolvedCount: report.ResolvedCount,
		AssignedCount: report.AssignedCount,
		UnassignedIDs: report.UnassignedIDs,
		ConflictCount: len(report.Conflicts),
		ChangeCount:   len(report.Changes),
		DurationMs:    durationMs,
	})
}

// EmitRunFailed emits a run.failed event
func (e *Emitter) EmitRunFailed(ctx context.Context, runID string, runErr error) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitRunFailed")
	defer span.End()

	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}

	return e.publish(ctx, EventTypeRunFailed, runID, "", RunFailedEvent{
		BaseEvent: NewBaseEvent(EventTypeRunFailed, runID),
		Error:     msg,
	})
}

// EmitAssignmentChanges emits an assignment.changed event per audit diff entry
func (e *Emitter) EmitAssignmentChanges(ctx context.Context, runID string, changes []models.AssignmentChange) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitAssignmentChanges")
	defer span.End()

	if len(changes) == 0 {
		return nil
	}

	batch := make([]*kafka.TerritoryEvent, 0, len(changes))
	for _, change := range changes {
		payload := AssignmentChangedEvent{
			BaseEvent:       NewBaseEvent(EventTypeAssignmentChanged, runID),
			ClientID:        change.ClientID,
			ChangeType:      string(change.ChangeType),
			OldTerritoryID:  change.OldTerritoryID,
			NewTerritoryID:  change.NewTerritoryID,
			OldAdvisorEmail: change.OldAdvisorEmail,
			NewAdvisorEmail: change.NewAdvisorEmail,
			Rule:            change.Rule,
		}

		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}

		batch = append(batch, &kafka.TerritoryEvent{
			EventType: string(EventTypeAssignmentChanged),
			RunID:     runID,
			ClientID:  change.ClientID,
			Data:      data,
			Timestamp: time.Now().UTC(),
		})
	}

	return e.producer.PublishEvents(ctx, batch)
}

// EmitClientMerged emits a client.merged event for a resolved cluster
func (e *Emitter) EmitClientMerged(ctx context.Context, runID string, cluster *models.DuplicateCluster) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitClientMerged")
	defer span.End()

	mergedIDs := make([]string, 0, len(cluster.MemberIDs))
	for _, id := range cluster.MemberIDs {
		if id != cluster.CanonicalID {
			mergedIDs = append(mergedIDs, id)
		}
	}

	return e.publish(ctx, EventTypeClientMerged, runID, cluster.CanonicalID, ClientMergedEvent{
		BaseEvent:   NewBaseEvent(EventTypeClientMerged, runID),
		CanonicalID: cluster.CanonicalID,
		MergedIDs:   mergedIDs,
		ClusterID:   cluster.ClusterID,
	})
}

// EmitTerritoryCreated emits a territory.created event
func (e *Emitter) EmitTerritoryCreated(ctx context.Context, runID string, territory *models.Territory) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitTerritoryCreated")
	defer span.End()

	return e.publish(ctx, EventTypeTerritoryCreated, runID, "", TerritoryCreatedEvent{
		BaseEvent:   NewBaseEvent(EventTypeTerritoryCreated, runID),
		TerritoryID: territory.TerritoryID,
		Region:      territory.Region,
		Segment:     territory.Segment,
	})
}

// EmitConflicts emits a conflict.detected event per conflict
func (e *Emitter) EmitConflicts(ctx context.Context, runID string, conflicts []models.Conflict) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitConflicts")
	defer span.End()

	if len(conflicts) == 0 {
		return nil
	}

	batch := make([]*kafka.TerritoryEvent, 0, len(conflicts))
	for _, conflict := range conflicts {
		payload := ConflictDetectedEvent{
			BaseEvent:    NewBaseEvent(EventTypeConflictDetected, runID),
			Kind:         string(conflict.Kind),
			Severity:     string(conflict.Severity),
			ClientID:     conflict.ClientID,
			TerritoryIDs: conflict.TerritoryIDs,
			AdvisorEmail: conflict.AdvisorEmail,
			Detail:       conflict.Detail,
		}

		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}

		batch = append(batch, &kafka.TerritoryEvent{
			EventType: string(EventTypeConflictDetected),
			RunID:     runID,
			ClientID:  conflict.ClientID,
			Data:      data,
			Timestamp: time.Now().UTC(),
		})
	}

	return e.producer.PublishEvents(ctx, batch)
}
