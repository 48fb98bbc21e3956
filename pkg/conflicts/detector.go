// Package conflicts scans the current assignment set for inconsistencies.
// Detection is read-only: conflicts are reported, never auto-resolved.
package conflicts

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mavasquez401/crm-territory-engine/pkg/models"
)

// Config controls advisor-contention detection.
type Config struct {
	// ExpectedAdvisorRegions is the number of distinct regions one advisor's
	// current territories are expected to span before it is flagged.
	ExpectedAdvisorRegions int
}

// DefaultConfig returns the standard detection settings.
func DefaultConfig() Config {
	return Config{ExpectedAdvisorRegions: 1}
}

// Detector finds conflicts in an assignment set, independent of how the set
// was produced.
type Detector struct {
	config Config
}

// NewDetector creates a Detector.
func NewDetector(config Config) *Detector {
	if config.ExpectedAdvisorRegions < 1 {
		config.ExpectedAdvisorRegions = 1
	}
	return &Detector{config: config}
}

// Detect scans current assignments against the client and territory
// dimensions and returns a flat conflict list, ordered by kind then client.
func (d *Detector) Detect(
	assignments []*models.Assignment,
	clients map[string]*models.Client,
	territories map[string]*models.Territory,
) []models.Conflict {
	var conflicts []models.Conflict

	conflicts = append(conflicts, d.detectOverlaps(assignments)...)
	conflicts = append(conflicts, d.detectAdvisorConflicts(assignments, territories)...)
	conflicts = append(conflicts, d.detectOrphans(assignments, clients, territories)...)

	sort.SliceStable(conflicts, func(a, b int) bool {
		if conflicts[a].Kind != conflicts[b].Kind {
			return conflicts[a].Kind < conflicts[b].Kind
		}
		return conflicts[a].ClientID < conflicts[b].ClientID
	})
	return conflicts
}

// detectOverlaps flags clients holding more than one current PRIMARY
// assignment.
func (d *Detector) detectOverlaps(assignments []*models.Assignment) []models.Conflict {
	primaries := make(map[string][]string)
	for _, a := range assignments {
		if a.IsCurrent && a.AssignmentType == models.AssignmentTypePrimary {
			primaries[a.ClientID] = append(primaries[a.ClientID], a.TerritoryID)
		}
	}

	var conflicts []models.Conflict
	for clientID, territoryIDs := range primaries {
		if len(territoryIDs) <= 1 {
			continue
		}
		sort.Strings(territoryIDs)
		conflicts = append(conflicts, models.Conflict{
			Kind:         models.ConflictTerritoryOverlap,
			Severity:     models.SeverityError,
			ClientID:     clientID,
			TerritoryIDs: territoryIDs,
			Detail:       fmt.Sprintf("client %s holds %d current PRIMARY assignments", clientID, len(territoryIDs)),
		})
	}
	return conflicts
}

// detectAdvisorConflicts flags advisors whose current territories span more
// distinct regions than expected.
func (d *Detector) detectAdvisorConflicts(assignments []*models.Assignment, territories map[string]*models.Territory) []models.Conflict {
	advisorRegions := make(map[string]map[string]bool)
	advisorTerritories := make(map[string]map[string]bool)

	for _, a := range assignments {
		if !a.IsCurrent || a.AdvisorEmail == "" {
			continue
		}
		territory, ok := territories[a.TerritoryID]
		if !ok || territory.Region == "" {
			continue
		}
		if advisorRegions[a.AdvisorEmail] == nil {
			advisorRegions[a.AdvisorEmail] = make(map[string]bool)
			advisorTerritories[a.AdvisorEmail] = make(map[string]bool)
		}
		advisorRegions[a.AdvisorEmail][territory.Region] = true
		advisorTerritories[a.AdvisorEmail][a.TerritoryID] = true
	}

	var conflicts []models.Conflict
	for advisor, regions := range advisorRegions {
		if len(regions) <= d.config.ExpectedAdvisorRegions {
			continue
		}
		territoryIDs := sortedKeys(advisorTerritories[advisor])
		regionNames := sortedKeys(regions)
		conflicts = append(conflicts, models.Conflict{
			Kind:         models.ConflictAdvisorConflict,
			Severity:     models.SeverityWarning,
			AdvisorEmail: advisor,
			TerritoryIDs: territoryIDs,
			Detail: fmt.Sprintf("advisor %s covers %d regions (%s), expected at most %d",
				advisor, len(regions), strings.Join(regionNames, ", "), d.config.ExpectedAdvisorRegions),
		})
	}
	return conflicts
}

// detectOrphans flags current assignments referencing missing or inactive
// clients and territories.
func (d *Detector) detectOrphans(
	assignments []*models.Assignment,
	clients map[string]*models.Client,
	territories map[string]*models.Territory,
) []models.Conflict {
	var conflicts []models.Conflict
	for _, a := range assignments {
		if !a.IsCurrent {
			continue
		}

		var reasons []string
		client, ok := clients[a.ClientID]
		if !ok {
			reasons = append(reasons, fmt.Sprintf("client %s has no dimension record", a.ClientID))
		} else if !client.IsActive {
			reasons = append(reasons, fmt.Sprintf("client %s is inactive", a.ClientID))
		}

		territory, ok := territories[a.TerritoryID]
		if !ok {
			reasons = append(reasons, fmt.Sprintf("territory %s has no dimension record", a.TerritoryID))
		} else if !territory.IsActive {
			reasons = append(reasons, fmt.Sprintf("territory %s is inactive", a.TerritoryID))
		}

		if len(reasons) == 0 {
			continue
		}
		conflicts = append(conflicts, models.Conflict{
			Kind:         models.ConflictOrphanedAssignment,
			Severity:     models.SeverityError,
			ClientID:     a.ClientID,
			TerritoryIDs: []string{a.TerritoryID},
			Detail:       strings.Join(reasons, "; "),
		})
	}
	return conflicts
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
