package conflicts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mavasquez401/crm-territory-engine/pkg/models"
)

func current(clientID, territoryID, advisor string) *models.Assignment {
	return &models.Assignment{
		ClientID:       clientID,
		TerritoryID:    territoryID,
		AssignmentType: models.AssignmentTypePrimary,
		AdvisorEmail:   advisor,
		IsCurrent:      true,
	}
}

func dims(territories ...*models.Territory) (map[string]*models.Client, map[string]*models.Territory) {
	clients := map[string]*models.Client{
		"C1": {ClientID: "C1", IsActive: true},
		"C2": {ClientID: "C2", IsActive: true},
	}
	ts := map[string]*models.Territory{}
	for _, t := range territories {
		ts[t.TerritoryID] = t
	}
	return clients, ts
}

func TestDetect_TerritoryOverlap(t *testing.T) {
	clients, territories := dims(
		&models.Territory{TerritoryID: "NOR_INS", Region: "Northeast", IsActive: true},
		&models.Territory{TerritoryID: "NOR_RET", Region: "Northeast", IsActive: true},
	)

	conflicts := NewDetector(DefaultConfig()).Detect([]*models.Assignment{
		current("C1", "NOR_INS", "a@example.com"),
		current("C1", "NOR_RET", "a@example.com"),
	}, clients, territories)

	require.Len(t, conflicts, 1)
	assert.Equal(t, models.ConflictTerritoryOverlap, conflicts[0].Kind)
	assert.Equal(t, models.SeverityError, conflicts[0].Severity)
	assert.Equal(t, "C1", conflicts[0].ClientID)
	assert.Equal(t, []string{"NOR_INS", "NOR_RET"}, conflicts[0].TerritoryIDs)
}

func TestDetect_NonCurrentRowsIgnored(t *testing.T) {
	clients, territories := dims(
		&models.Territory{TerritoryID: "NOR_INS", Region: "Northeast", IsActive: true},
		&models.Territory{TerritoryID: "NOR_RET", Region: "Northeast", IsActive: true},
	)

	old := current("C1", "NOR_RET", "a@example.com")
	old.IsCurrent = false

	conflicts := NewDetector(DefaultConfig()).Detect([]*models.Assignment{
		current("C1", "NOR_INS", "a@example.com"),
		old,
	}, clients, territories)

	assert.Empty(t, conflicts)
}

func TestDetect_AdvisorConflict(t *testing.T) {
	clients, territories := dims(
		&models.Territory{TerritoryID: "NOR_INS", Region: "Northeast", IsActive: true},
		&models.Territory{TerritoryID: "WES_RET", Region: "West", IsActive: true},
	)

	conflicts := NewDetector(DefaultConfig()).Detect([]*models.Assignment{
		current("C1", "NOR_INS", "a@example.com"),
		current("C2", "WES_RET", "a@example.com"),
	}, clients, territories)

	require.Len(t, conflicts, 1)
	assert.Equal(t, models.ConflictAdvisorConflict, conflicts[0].Kind)
	assert.Equal(t, models.SeverityWarning, conflicts[0].Severity)
	assert.Equal(t, "a@example.com", conflicts[0].AdvisorEmail)
}

func TestDetect_AdvisorWithinExpectedRegions(t *testing.T) {
	clients, territories := dims(
		&models.Territory{TerritoryID: "NOR_INS", Region: "Northeast", IsActive: true},
		&models.Territory{TerritoryID: "NOR_RET", Region: "Northeast", IsActive: true},
	)

	conflicts := NewDetector(DefaultConfig()).Detect([]*models.Assignment{
		current("C1", "NOR_INS", "a@example.com"),
		current("C2", "NOR_RET", "a@example.com"),
	}, clients, territories)

	assert.Empty(t, conflicts)
}

func TestDetect_OrphanedAssignment(t *testing.T) {
	detector := NewDetector(DefaultConfig())

	t.Run("missing territory dimension", func(t *testing.T) {
		clients, territories := dims()
		conflicts := detector.Detect([]*models.Assignment{
			current("C1", "NOR_INS", "a@example.com"),
		}, clients, territories)

		require.Len(t, conflicts, 1)
		assert.Equal(t, models.ConflictOrphanedAssignment, conflicts[0].Kind)
		assert.Equal(t, models.SeverityError, conflicts[0].Severity)
	})

	t.Run("territory deactivated after assignment", func(t *testing.T) {
		clients, territories := dims(
			&models.Territory{TerritoryID: "NOR_INS", Region: "Northeast", IsActive: false},
		)
		conflicts := detector.Detect([]*models.Assignment{
			current("C1", "NOR_INS", "a@example.com"),
		}, clients, territories)

		require.Len(t, conflicts, 1)
		assert.Equal(t, models.ConflictOrphanedAssignment, conflicts[0].Kind)
		assert.Contains(t, conflicts[0].Detail, "inactive")
	})

	t.Run("missing client dimension", func(t *testing.T) {
		clients, territories := dims(
			&models.Territory{TerritoryID: "NOR_INS", Region: "Northeast", IsActive: true},
		)
		conflicts := detector.Detect([]*models.Assignment{
			current("C9", "NOR_INS", "a@example.com"),
		}, clients, territories)

		require.Len(t, conflicts, 1)
		assert.Contains(t, conflicts[0].Detail, "no dimension record")
	})
}

func TestDetect_CleanSetHasNoConflicts(t *testing.T) {
	clients, territories := dims(
		&models.Territory{TerritoryID: "NOR_INS", Region: "Northeast", IsActive: true},
		&models.Territory{TerritoryID: "WES_RET", Region: "West", IsActive: true},
	)

	conflicts := NewDetector(DefaultConfig()).Detect([]*models.Assignment{
		current("C1", "NOR_INS", "a@example.com"),
		current("C2", "WES_RET", "b@example.com"),
	}, clients, territories)

	assert.Empty(t, conflicts)
}
