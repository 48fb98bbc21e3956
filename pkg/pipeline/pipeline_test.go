package pipeline

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mavasquez401/crm-territory-engine/pkg/database"
	"github.com/mavasquez401/crm-territory-engine/pkg/models"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(msg ectologger.EctoLogMessage) {})
}

type fakeStores struct {
	clients     []models.Client
	territories []models.Territory
	prior       []models.Assignment
	config      *models.RuleConfig

	changeErr error

	mergeMapping       map[string]string
	createdTerritories []models.Territory
	superseded         []models.Assignment
	inserted           []models.Assignment
	changes            []models.AssignmentChange
	createdRuns        []string
	finished           *models.RunReport
}

func (f *fakeStores) ListActive(ctx context.Context) ([]models.Client, error) {
	var active []models.Client
	for _, c := range f.clients {
		if c.IsActive && c.MergedInto == nil {
			active = append(active, c)
		}
	}
	return active, nil
}

func (f *fakeStores) ListAll(ctx context.Context) ([]models.Client, error) {
	return f.clients, nil
}

func (f *fakeStores) MarkMerged(ctx context.Context, mergeMapping map[string]string) error {
	f.mergeMapping = mergeMapping
	return nil
}

func (f *fakeStores) List(ctx context.Context) ([]models.Territory, error) {
	return f.territories, nil
}

func (f *fakeStores) CreateBatch(ctx context.Context, territories []models.Territory) error {
	f.createdTerritories = append(f.createdTerritories, territories...)
	return nil
}

func (f *fakeStores) ListCurrent(ctx context.Context) ([]models.Assignment, error) {
	return f.prior, nil
}

func (f *fakeStores) PersistRun(ctx context.Context, superseded, inserted []models.Assignment) error {
	f.superseded = append(f.superseded, superseded...)
	f.inserted = append(f.inserted, inserted...)
	return nil
}

func (f *fakeStores) InsertBatch(ctx context.Context, changes []models.AssignmentChange) error {
	if f.changeErr != nil {
		return f.changeErr
	}
	f.changes = append(f.changes, changes...)
	return nil
}

func (f *fakeStores) Load(ctx context.Context) (*models.RuleConfig, error) {
	if f.config != nil {
		return f.config, nil
	}
	return &models.RuleConfig{
		Whitelist: map[string]string{},
		Blacklist: map[string][]string{},
	}, nil
}

func (f *fakeStores) Create(ctx context.Context, runID string, startedAt time.Time) error {
	f.createdRuns = append(f.createdRuns, runID)
	return nil
}

func (f *fakeStores) Finish(ctx context.Context, report *models.RunReport) error {
	f.finished = report
	return nil
}

// fakeTx records whether the run-scoped transaction was closed, and how.
type fakeTx struct {
	database.Tx
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Commit(ctx context.Context) error {
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	if !t.committed {
		t.rolledBack = true
	}
	return nil
}

type fakeDB struct {
	tx *fakeTx
}

func (d *fakeDB) GetTx(ctx context.Context, opts *sql.TxOptions) (context.Context, database.Tx, error) {
	return ctx, d.tx, nil
}

func newTestPipeline(stores *fakeStores, db TxBeginner) *Pipeline {
	return New(
		testLogger(),
		Config{
			SimilarityThreshold:    85,
			MergeStrategy:          models.MergeStrategyMostComplete,
			AssignWorkerCount:      2,
			DefaultAdvisor:         "UNASSIGNED",
			ExpectedAdvisorRegions: 1,
		},
		db,
		stores, stores, stores, stores, stores, stores,
		nil, nil,
	)
}

func TestRun_FullPass(t *testing.T) {
	stores := &fakeStores{
		clients: []models.Client{
			{ClientID: "A-001", Name: "Atlas Capital Partners", Region: "Northeast", Segment: "Institutional", ParentOrg: "Atlas Group", IsActive: true},
			{ClientID: "A-002", Name: "Atlas Capital Partners Inc.", Region: "Northeast", Segment: "Institutional", IsActive: true},
			{ClientID: "B-001", Name: "Beacon Wealth", Region: "Southwest", Segment: "Retail", AdvisorEmail: "casey@example.com", IsActive: true},
		},
	}

	report, err := newTestPipeline(stores, nil).Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, report)

	assert.Equal(t, models.RunStatusCompleted, report.Status)
	assert.Equal(t, 3, report.ClientCount)

	t.Run("duplicates are merged to the most complete record", func(t *testing.T) {
		require.NotNil(t, stores.mergeMapping)
		assert.Equal(t, map[string]string{"A-002": "A-001"}, stores.mergeMapping)
		assert.Equal(t, 2, report.ResolvedCount)
	})

	t.Run("territories are created lazily", func(t *testing.T) {
		ids := make([]string, 0, len(stores.createdTerritories))
		for _, territory := range stores.createdTerritories {
			ids = append(ids, territory.TerritoryID)
		}
		assert.ElementsMatch(t, []string{"NOR_INS", "SOU_RET"}, ids)
	})

	t.Run("every survivor gets one current PRIMARY assignment", func(t *testing.T) {
		require.Len(t, stores.inserted, 2)
		byClient := map[string]models.Assignment{}
		for _, a := range stores.inserted {
			byClient[a.ClientID] = a
			assert.True(t, a.IsCurrent)
			assert.Equal(t, models.AssignmentTypePrimary, a.AssignmentType)
		}

		assert.Equal(t, "NOR_INS", byClient["A-001"].TerritoryID)
		assert.Equal(t, "UNASSIGNED", byClient["A-001"].AdvisorEmail)
		assert.Equal(t, "SOU_RET", byClient["B-001"].TerritoryID)
		assert.Equal(t, "casey@example.com", byClient["B-001"].AdvisorEmail)
	})

	t.Run("the first run records only NEW changes", func(t *testing.T) {
		require.Len(t, stores.changes, 2)
		for _, change := range stores.changes {
			assert.Equal(t, models.ChangeTypeNew, change.ChangeType)
			assert.Nil(t, change.OldTerritoryID)
		}
		assert.Empty(t, stores.superseded)
	})

	t.Run("the run row is finished with the full report", func(t *testing.T) {
		require.Len(t, stores.createdRuns, 1)
		require.NotNil(t, stores.finished)
		assert.Equal(t, report.RunID, stores.finished.RunID)
		assert.Equal(t, stores.createdRuns[0], report.RunID)
		require.NotNil(t, report.FinishedAt)
	})
}

func TestRun_SecondRunIsIdempotent(t *testing.T) {
	stores := &fakeStores{
		clients: []models.Client{
			{ClientID: "B-001", Name: "Beacon Wealth", Region: "Southwest", Segment: "Retail", IsActive: true},
		},
	}

	first, err := newTestPipeline(stores, nil).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, stores.inserted, 1)

	// Feed the first run's output back in as the prior snapshot.
	second := &fakeStores{
		clients:     stores.clients,
		territories: stores.createdTerritories,
		prior:       stores.inserted,
	}

	report, err := newTestPipeline(second, nil).Run(context.Background())
	require.NoError(t, err)

	assert.NotEqual(t, first.RunID, report.RunID)
	assert.Empty(t, second.changes, "an unchanged snapshot emits no audit entries")
	assert.Empty(t, second.inserted)
	assert.Empty(t, second.superseded)
	assert.Empty(t, second.createdTerritories)
}

func TestRun_WhitelistChangeSupersedesPrior(t *testing.T) {
	now := time.Now().UTC()
	stores := &fakeStores{
		clients: []models.Client{
			{ClientID: "B-001", Name: "Beacon Wealth", Region: "Southwest", Segment: "Retail", IsActive: true},
		},
		territories: []models.Territory{
			{ID: "t-1", TerritoryID: "SOU_RET", Region: "Southwest", Segment: "Retail", IsActive: true},
			{ID: "t-2", TerritoryID: "KEY_ACC", Region: "Key", Segment: "Accounts", IsActive: true},
		},
		prior: []models.Assignment{
			{
				ID: "a-1", ClientID: "B-001", TerritoryID: "SOU_RET",
				AssignmentType: models.AssignmentTypePrimary, AdvisorEmail: "UNASSIGNED",
				IsCurrent: true, EffectiveDate: now.Add(-24 * time.Hour),
				AssignedByRule: "region", ConfidenceScore: 90, RunID: "run-0",
			},
		},
		config: &models.RuleConfig{
			Whitelist: map[string]string{"B-001": "KEY_ACC"},
			Blacklist: map[string][]string{},
		},
	}

	report, err := newTestPipeline(stores, nil).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, models.RunStatusCompleted, report.Status)

	require.Len(t, stores.superseded, 1)
	assert.Equal(t, "a-1", stores.superseded[0].ID)
	assert.False(t, stores.superseded[0].IsCurrent)
	require.NotNil(t, stores.superseded[0].EndDate)

	require.Len(t, stores.inserted, 1)
	assert.Equal(t, "KEY_ACC", stores.inserted[0].TerritoryID)
	assert.Equal(t, "whitelist", stores.inserted[0].AssignedByRule)
	assert.Equal(t, 100.0, stores.inserted[0].ConfidenceScore)

	require.Len(t, stores.changes, 1)
	assert.Equal(t, models.ChangeTypeChanged, stores.changes[0].ChangeType)
	require.NotNil(t, stores.changes[0].OldTerritoryID)
	assert.Equal(t, "SOU_RET", *stores.changes[0].OldTerritoryID)
	require.NotNil(t, stores.changes[0].NewTerritoryID)
	assert.Equal(t, "KEY_ACC", *stores.changes[0].NewTerritoryID)
}

func TestRun_MalformedTierConfigFailsRun(t *testing.T) {
	stores := &fakeStores{
		clients: []models.Client{
			{ClientID: "B-001", Name: "Beacon Wealth", Region: "Southwest", Segment: "Retail", IsActive: true},
		},
		config: &models.RuleConfig{
			Whitelist: map[string]string{},
			Blacklist: map[string][]string{},
			Tiers: []models.TierDefinition{
				{Name: "broken", Criteria: json.RawMessage(`{"min_aum":"not-a-number"}`), TerritorySuffix: "PLT"},
			},
		},
	}

	report, err := newTestPipeline(stores, nil).Run(context.Background())
	require.Error(t, err)
	require.NotNil(t, report)

	assert.Equal(t, models.RunStatusFailed, report.Status)
	assert.NotEmpty(t, report.Error)
	assert.Empty(t, stores.inserted, "a failed run persists no assignments")
	require.NotNil(t, stores.finished)
	assert.Equal(t, models.RunStatusFailed, stores.finished.Status)
}

func TestRun_WritesCommitInOneTransaction(t *testing.T) {
	stores := &fakeStores{
		clients: []models.Client{
			{ClientID: "B-001", Name: "Beacon Wealth", Region: "Southwest", Segment: "Retail", IsActive: true},
		},
	}
	db := &fakeDB{tx: &fakeTx{}}

	report, err := newTestPipeline(stores, db).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusCompleted, report.Status)
	assert.True(t, db.tx.committed)
	assert.False(t, db.tx.rolledBack)
}

func TestRun_ChangeInsertFailureRollsBackWrites(t *testing.T) {
	stores := &fakeStores{
		clients: []models.Client{
			{ClientID: "B-001", Name: "Beacon Wealth", Region: "Southwest", Segment: "Retail", IsActive: true},
		},
		changeErr: errors.New("change insert failed"),
	}
	db := &fakeDB{tx: &fakeTx{}}

	report, err := newTestPipeline(stores, db).Run(context.Background())
	require.Error(t, err)
	require.NotNil(t, report)

	// The assignments written earlier in the run must not survive the
	// change-log failure.
	assert.Equal(t, models.RunStatusFailed, report.Status)
	assert.False(t, db.tx.committed)
	assert.True(t, db.tx.rolledBack)
}
