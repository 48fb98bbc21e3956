// Package updater diffs a fresh assignment evaluation against the previous
// snapshot and produces the append-only audit changes.
package updater

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/mavasquez401/crm-territory-engine/pkg/models"
)

// Result is the outcome of one diff pass.
//
// The assignment history is strictly append-only: Superseded rows are copies
// of prior rows closed out with is_current=false and an end date, Inserted
// rows are brand new, and nothing is ever deleted. Current is the resulting
// current snapshot (untouched prior rows plus Inserted), ordered by
// client_id.
type Result struct {
	Changes    []models.AssignmentChange
	Superseded []*models.Assignment
	Inserted   []*models.Assignment
	Current    []*models.Assignment
}

// Diff compares the prior current PRIMARY snapshot against a fresh
// evaluation. Per client: NEW (no prior), CHANGED (territory or advisor
// differs), REMOVED (no longer produced); unchanged clients emit nothing and
// keep their prior row. Inputs are not mutated. A client holding more than
// one current PRIMARY row on either side violates the history invariant and
// fails the diff rather than silently picking one.
func Diff(prior, fresh []*models.Assignment, runID string, asOf time.Time) (*Result, error) {
	priorByClient, err := currentPrimaryByClient(prior)
	if err != nil {
		return nil, err
	}
	freshByClient, err := currentPrimaryByClient(fresh)
	if err != nil {
		return nil, err
	}

	result := &Result{}

	for clientID, next := range freshByClient {
		old, exists := priorByClient[clientID]
		if !exists {
			result.Changes = append(result.Changes, models.AssignmentChange{
				ID:              uuid.New().String(),
				ClientID:        clientID,
				ChangeType:      models.ChangeTypeNew,
				NewTerritoryID:  &next.TerritoryID,
				NewAdvisorEmail: &next.AdvisorEmail,
				Rule:            next.AssignedByRule,
				RunID:           runID,
				ChangedAt:       asOf,
			})
			result.Inserted = append(result.Inserted, next)
			result.Current = append(result.Current, next)
			continue
		}

		if old.TerritoryID == next.TerritoryID && old.AdvisorEmail == next.AdvisorEmail {
			result.Current = append(result.Current, old)
			continue
		}

		result.Changes = append(result.Changes, models.AssignmentChange{
			ID:              uuid.New().String(),
			ClientID:        clientID,
			ChangeType:      models.ChangeTypeChanged,
			OldTerritoryID:  &old.TerritoryID,
			NewTerritoryID:  &next.TerritoryID,
			OldAdvisorEmail: &old.AdvisorEmail,
			NewAdvisorEmail: &next.AdvisorEmail,
			Rule:            next.AssignedByRule,
			RunID:           runID,
			ChangedAt:       asOf,
		})
		result.Superseded = append(result.Superseded, supersede(old, asOf))
		result.Inserted = append(result.Inserted, next)
		result.Current = append(result.Current, next)
	}

	for clientID, old := range priorByClient {
		if _, still := freshByClient[clientID]; still {
			continue
		}
		result.Changes = append(result.Changes, models.AssignmentChange{
			ID:              uuid.New().String(),
			ClientID:        clientID,
			ChangeType:      models.ChangeTypeRemoved,
			OldTerritoryID:  &old.TerritoryID,
			OldAdvisorEmail: &old.AdvisorEmail,
			Rule:            old.AssignedByRule,
			RunID:           runID,
			ChangedAt:       asOf,
		})
		result.Superseded = append(result.Superseded, supersede(old, asOf))
	}

	sortChanges(result.Changes)
	sortAssignments(result.Superseded)
	sortAssignments(result.Inserted)
	sortAssignments(result.Current)
	return result, nil
}

// Apply replays a diff over the prior snapshot: superseded rows drop out of
// the current view and inserted rows join it. The returned set matches
// Result.Current exactly; this is the round-trip check for the audit trail.
func Apply(prior []*models.Assignment, result *Result) []*models.Assignment {
	superseded := make(map[string]bool, len(result.Superseded))
	for _, a := range result.Superseded {
		superseded[a.ID] = true
	}

	var current []*models.Assignment
	for _, a := range prior {
		if !a.IsCurrent || a.AssignmentType != models.AssignmentTypePrimary {
			continue
		}
		if superseded[a.ID] {
			continue
		}
		current = append(current, a)
	}
	current = append(current, result.Inserted...)
	sortAssignments(current)
	return current
}

func currentPrimaryByClient(assignments []*models.Assignment) (map[string]*models.Assignment, error) {
	out := make(map[string]*models.Assignment)
	for _, a := range assignments {
		if !a.IsCurrent || a.AssignmentType != models.AssignmentTypePrimary {
			continue
		}
		if _, dup := out[a.ClientID]; dup {
			return nil, fmt.Errorf("client %q holds more than one current PRIMARY assignment", a.ClientID)
		}
		out[a.ClientID] = a
	}
	return out, nil
}

// supersede returns a closed-out copy of the row. The original is untouched;
// persistence applies the copy.
func supersede(a *models.Assignment, asOf time.Time) *models.Assignment {
	closed := *a
	closed.IsCurrent = false
	endDate := asOf
	closed.EndDate = &endDate
	return &closed
}

func sortChanges(changes []models.AssignmentChange) {
	sort.Slice(changes, func(a, b int) bool {
		if changes[a].ClientID != changes[b].ClientID {
			return changes[a].ClientID < changes[b].ClientID
		}
		return changes[a].ChangeType < changes[b].ChangeType
	})
}

func sortAssignments(assignments []*models.Assignment) {
	sort.Slice(assignments, func(a, b int) bool {
		return assignments[a].ClientID < assignments[b].ClientID
	})
}
