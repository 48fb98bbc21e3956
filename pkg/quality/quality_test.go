package quality

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mavasquez401/crm-territory-engine/pkg/models"
)

func TestCheck(t *testing.T) {
	clients := []*models.Client{
		{ClientID: "C1", Region: "Northeast", IsActive: true},
		{ClientID: "C2", IsActive: true},
	}
	territories := []*models.Territory{
		{TerritoryID: "NOR_INS", Region: "Northeast", Segment: "Institutional"},
	}
	assignments := []*models.Assignment{
		{ClientID: "C1", TerritoryID: "NOR_INS", AdvisorEmail: "UNASSIGNED", IsCurrent: true},
	}

	t.Run("flags unassigned clients and data gaps", func(t *testing.T) {
		warnings := Check(clients, territories, assignments, []string{"C2"}, "UNASSIGNED")

		assert.Contains(t, warnings, "client C2 matched no rule and is unassigned")
		assert.Contains(t, warnings, "1 active clients have no region")
		assert.Contains(t, warnings, "1 current assignments have no advisor")
	})

	t.Run("empty client set", func(t *testing.T) {
		warnings := Check(nil, nil, nil, nil, "UNASSIGNED")
		assert.Equal(t, []string{"client dimension is empty"}, warnings)
	})

	t.Run("clean run yields no warnings", func(t *testing.T) {
		warnings := Check(
			[]*models.Client{{ClientID: "C1", Region: "Northeast", IsActive: true}},
			territories,
			[]*models.Assignment{{ClientID: "C1", TerritoryID: "NOR_INS", AdvisorEmail: "a@example.com", IsCurrent: true}},
			nil,
			"UNASSIGNED",
		)
		assert.Empty(t, warnings)
	})
}
