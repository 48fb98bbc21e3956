// Package quality runs post-run sanity checks over the output record sets.
// Findings are warnings for the run report, not errors: the run has already
// committed by the time these are evaluated.
package quality

import (
	"fmt"
	"sort"

	"github.com/mavasquez401/crm-territory-engine/pkg/models"
)

// Check inspects the run outputs and returns human-readable warnings.
func Check(
	clients []*models.Client,
	territories []*models.Territory,
	assignments []*models.Assignment,
	unassigned []string,
	defaultAdvisor string,
) []string {
	var warnings []string

	if len(clients) == 0 {
		warnings = append(warnings, "client dimension is empty")
	}
	if len(assignments) == 0 && len(clients) > 0 {
		warnings = append(warnings, "no current assignments were produced")
	}

	for _, id := range unassigned {
		warnings = append(warnings, fmt.Sprintf("client %s matched no rule and is unassigned", id))
	}

	missingRegion := 0
	for _, c := range clients {
		if c.IsActive && c.Region == "" {
			missingRegion++
		}
	}
	if missingRegion > 0 {
		warnings = append(warnings, fmt.Sprintf("%d active clients have no region", missingRegion))
	}

	for _, t := range territories {
		if t.Region == "" && t.Segment == "" {
			warnings = append(warnings, fmt.Sprintf("territory %s has neither region nor segment", t.TerritoryID))
		}
	}

	advisorLoad := make(map[string]int)
	for _, a := range assignments {
		if a.IsCurrent {
			advisorLoad[a.AdvisorEmail]++
		}
	}
	if n := advisorLoad[defaultAdvisor]; n > 0 {
		warnings = append(warnings, fmt.Sprintf("%d current assignments have no advisor", n))
	}

	sort.Strings(warnings)
	return warnings
}
