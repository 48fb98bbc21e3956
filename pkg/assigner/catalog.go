package assigner

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mavasquez401/crm-territory-engine/pkg/models"
)

// Catalog is the in-run territory registry. Ensure is an idempotent
// compare-and-set keyed on territory_id, safe for concurrent assignment
// workers.
type Catalog struct {
	mu          sync.Mutex
	territories map[string]*models.Territory
	created     []*models.Territory
}

// NewCatalog seeds the catalog with existing territories. Two territories
// sharing a territory_id with different region/segment is a logic error and
// fails loudly.
func NewCatalog(existing []*models.Territory) (*Catalog, error) {
	territories := make(map[string]*models.Territory, len(existing))
	for _, t := range existing {
		if prev, ok := territories[t.TerritoryID]; ok {
			if prev.Region != t.Region || prev.Segment != t.Segment {
				return nil, fmt.Errorf("territory %q maps to both (%s,%s) and (%s,%s)",
					t.TerritoryID, prev.Region, prev.Segment, t.Region, t.Segment)
			}
			continue
		}
		territories[t.TerritoryID] = t
	}
	return &Catalog{territories: territories}, nil
}

// Ensure returns the territory for the id, lazily creating it with the
// decision's region/segment when absent. Creation is idempotent: concurrent
// callers for the same id observe the same record. A caller asking for
// attributes that contradict the existing record means two distinct
// region/segment pairs collapsed onto one territory_id; that is an error, not
// a race to resolve by arrival order. Empty region+segment skips the check
// (whitelist pins an externally managed territory without deriving
// attributes).
func (c *Catalog) Ensure(territoryID, region, segment string) (*models.Territory, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if t, ok := c.territories[territoryID]; ok {
		if (region != "" || segment != "") && (t.Region != region || t.Segment != segment) {
			return nil, fmt.Errorf("territory %q maps to both (%s,%s) and (%s,%s)",
				territoryID, t.Region, t.Segment, region, segment)
		}
		return t, nil
	}

	now := time.Now().UTC()
	t := &models.Territory{
		ID:          uuid.New().String(),
		TerritoryID: territoryID,
		Region:      region,
		Segment:     segment,
		OwnerRole:   models.DefaultOwnerRole,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	c.territories[territoryID] = t
	c.created = append(c.created, t)
	return t, nil
}

// Get looks up a territory without creating it.
func (c *Catalog) Get(territoryID string) (*models.Territory, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.territories[territoryID]
	return t, ok
}

// Created returns the territories lazily created during this run, ordered by
// territory_id.
func (c *Catalog) Created() []*models.Territory {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*models.Territory, len(c.created))
	copy(out, c.created)
	sort.Slice(out, func(a, b int) bool { return out[a].TerritoryID < out[b].TerritoryID })
	return out
}

// Snapshot returns a read-only view of the catalog for rule evaluation.
func (c *Catalog) Snapshot() map[string]*models.Territory {
	c.mu.Lock()
	defer c.mu.Unlock()
	snapshot := make(map[string]*models.Territory, len(c.territories))
	for k, v := range c.territories {
		snapshot[k] = v
	}
	return snapshot
}
