// Package pipeline orchestrates one full assignment run: load, resolve,
// assign, diff, persist, report.
package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/mavasquez401/crm-territory-engine/pkg/assigner"
	"github.com/mavasquez401/crm-territory-engine/pkg/conflicts"
	"github.com/mavasquez401/crm-territory-engine/pkg/database"
	"github.com/mavasquez401/crm-territory-engine/pkg/dedupe"
	"github.com/mavasquez401/crm-territory-engine/pkg/events"
	"github.com/mavasquez401/crm-territory-engine/pkg/metrics"
	"github.com/mavasquez401/crm-territory-engine/pkg/models"
	"github.com/mavasquez401/crm-territory-engine/pkg/quality"
	"github.com/mavasquez401/crm-territory-engine/pkg/redis"
	"github.com/mavasquez401/crm-territory-engine/pkg/rules"
	"github.com/mavasquez401/crm-territory-engine/pkg/tracing"
	"github.com/mavasquez401/crm-territory-engine/pkg/updater"
)

// ErrRunInProgress is returned when another instance holds the run lock.
var ErrRunInProgress = errors.New("an assignment run is already in progress")

const runLockKey = "assignment-run"

// ClientStore is the client dimension surface the pipeline needs.
type ClientStore interface {
	ListActive(ctx context.Context) ([]models.Client, error)
	ListAll(ctx context.Context) ([]models.Client, error)
	MarkMerged(ctx context.Context, mergeMapping map[string]string) error
}

// TerritoryStore is the territory dimension surface the pipeline needs.
type TerritoryStore interface {
	List(ctx context.Context) ([]models.Territory, error)
	CreateBatch(ctx context.Context, territories []models.Territory) error
}

// AssignmentStore is the assignment fact surface the pipeline needs.
type AssignmentStore interface {
	ListCurrent(ctx context.Context) ([]models.Assignment, error)
	PersistRun(ctx context.Context, superseded, inserted []models.Assignment) error
}

// ChangeStore records the audit diff.
type ChangeStore interface {
	InsertBatch(ctx context.Context, changes []models.AssignmentChange) error
}

// RuleConfigStore loads the rule configuration.
type RuleConfigStore interface {
	Load(ctx context.Context) (*models.RuleConfig, error)
}

// RunStore records run lifecycle rows.
type RunStore interface {
	Create(ctx context.Context, runID string, startedAt time.Time) error
	Finish(ctx context.Context, report *models.RunReport) error
}

// TxBeginner opens the transaction that scopes a run's writes. The stores
// reuse a transaction carried on the context, so every write issued with the
// returned context lands in the same transaction.
type TxBeginner interface {
	GetTx(ctx context.Context, opts *sql.TxOptions) (context.Context, database.Tx, error)
}

// Config holds the pipeline settings.
type Config struct {
	SimilarityThreshold    float64
	MergeStrategy          string
	AssignWorkerCount      int
	DefaultAdvisor         string
	ExpectedAdvisorRegions int
	RunLockTTL             time.Duration
}

// Pipeline wires the resolution, assignment, and audit stages together.
type Pipeline struct {
	logger ectologger.Logger
	config Config

	db          TxBeginner
	clients     ClientStore
	territories TerritoryStore
	assignments AssignmentStore
	changes     ChangeStore
	ruleConfigs RuleConfigStore
	runs        RunStore

	resolver *dedupe.Resolver
	assigner *assigner.Assigner
	detector *conflicts.Detector

	locker  *redis.Locker
	emitter *events.Emitter
}

// New creates a Pipeline. The locker and emitter are optional; without a
// locker runs are not serialized across instances, without an emitter no
// events are published. A nil db leaves each store to manage its own
// transaction.
func New(
	logger ectologger.Logger,
	config Config,
	db TxBeginner,
	clients ClientStore,
	territories TerritoryStore,
	assignments AssignmentStore,
	changes ChangeStore,
	ruleConfigs RuleConfigStore,
	runs RunStore,
	locker *redis.Locker,
	emitter *events.Emitter,
) *Pipeline {
	if config.RunLockTTL <= 0 {
		config.RunLockTTL = 30 * time.Minute
	}

	return &Pipeline{
		logger:      logger,
		config:      config,
		db:          db,
		clients:     clients,
		territories: territories,
		assignments: assignments,
		changes:     changes,
		ruleConfigs: ruleConfigs,
		runs:        runs,
		resolver: dedupe.NewResolver(dedupe.Config{
			Threshold: config.SimilarityThreshold,
			Strategy:  config.MergeStrategy,
		}),
		assigner: assigner.NewAssigner(logger, assigner.Config{
			WorkerCount:    config.AssignWorkerCount,
			DefaultAdvisor: config.DefaultAdvisor,
		}),
		detector: conflicts.NewDetector(conflicts.Config{
			ExpectedAdvisorRegions: config.ExpectedAdvisorRegions,
		}),
		locker:  locker,
		emitter: emitter,
	}
}

// Run executes one full assignment run under the distributed run lock.
// The returned report is also persisted; the error is non-nil only when the
// run could not complete.
func (p *Pipeline) Run(ctx context.Context) (*models.RunReport, error) {
	if p.locker == nil {
		return p.run(ctx)
	}

	var report *models.RunReport
	err := p.locker.WithLock(ctx, runLockKey, p.config.RunLockTTL, func() error {
		var runErr error
		report, runErr = p.run(ctx)
		return runErr
	})
	if errors.Is(err, redis.ErrLockNotAcquired) {
		p.logger.WithContext(ctx).Warn("Skipping run, lock held by another instance")
		return nil, ErrRunInProgress
	}
	return report, err
}

func (p *Pipeline) run(ctx context.Context) (*models.RunReport, error) {
	ctx, span := tracing.StartSpan(ctx, "pipeline.Pipeline.Run")
	defer span.End()

	runID := uuid.New().String()
	startedAt := time.Now().UTC()

	log := p.logger.WithContext(ctx).WithField("run_id", runID)
	log.Info("Starting assignment run")

	report := &models.RunReport{
		RunID:     runID,
		Status:    models.RunStatusRunning,
		StartedAt: startedAt,
	}

	if err := p.runs.Create(ctx, runID, startedAt); err != nil {
		return nil, err
	}

	if err := p.execute(ctx, report); err != nil {
		report.Status = models.RunStatusFailed
		report.Error = err.Error()
		p.finish(ctx, report, startedAt)

		if p.emitter != nil {
			if emitErr := p.emitter.EmitRunFailed(ctx, runID, err); emitErr != nil {
				log.WithError(emitErr).Warn("Failed to emit run.failed event")
			}
		}

		log.WithError(err).Error("Assignment run failed")
		return report, err
	}

	report.Status = models.RunStatusCompleted
	p.finish(ctx, report, startedAt)

	if p.emitter != nil {
		if err := p.emitter.EmitRunCompleted(ctx, report); err != nil {
			log.WithError(err).Warn("Failed to emit run.completed event")
		}
	}

	log.WithFields(map[string]any{
		"client_count":   report.ClientCount,
		"resolved_count": report.ResolvedCount,
		"assigned_count": report.AssignedCount,
		"change_count":   len(report.Changes),
		"conflict_count": len(report.Conflicts),
	}).Info("Assignment run completed")

	return report, nil
}

func (p *Pipeline) execute(ctx context.Context, report *models.RunReport) error {
	runID := report.RunID
	log := p.logger.WithContext(ctx).WithField("run_id", runID)

	// Load the run inputs.
	clientRows, err := p.clients.ListActive(ctx)
	if err != nil {
		return err
	}
	territoryRows, err := p.territories.List(ctx)
	if err != nil {
		return err
	}
	ruleConfig, err := p.ruleConfigs.Load(ctx)
	if err != nil {
		return err
	}
	priorRows, err := p.assignments.ListCurrent(ctx)
	if err != nil {
		return err
	}

	report.ClientCount = len(clientRows)
	metrics.ClientsResolved.Observe(float64(len(clientRows)))

	if p.emitter != nil {
		if err := p.emitter.EmitRunStarted(ctx, runID, len(clientRows)); err != nil {
			log.WithError(err).Warn("Failed to emit run.started event")
		}
	}

	// A malformed rule config fails the run before any client is touched.
	ruleSet, err := rules.NewRuleSet(ruleConfig)
	if err != nil {
		return err
	}

	clients := make([]*models.Client, len(clientRows))
	for i := range clientRows {
		clients[i] = &clientRows[i]
	}

	// Resolve duplicates down to canonical records.
	resolution := p.resolver.Resolve(clients)
	report.Resolution = resolution

	// Every write the run produces lands in one transaction; a failure
	// anywhere below rolls back the merges, territories, assignments, and
	// changes together.
	txCtx := ctx
	var tx database.Tx
	if p.db != nil {
		txCtx, tx, err = p.db.GetTx(ctx, &sql.TxOptions{})
		if err != nil {
			return err
		}
		defer tx.Rollback(ctx)
	}

	if len(resolution.MergeMapping) > 0 {
		if err := p.clients.MarkMerged(txCtx, resolution.MergeMapping); err != nil {
			return err
		}
		metrics.DuplicatesMerged.Add(float64(len(resolution.MergeMapping)))

		if p.emitter != nil {
			for i := range resolution.Clusters {
				cluster := &resolution.Clusters[i]
				if cluster.CanonicalID == "" {
					continue
				}
				if err := p.emitter.EmitClientMerged(ctx, runID, cluster); err != nil {
					log.WithError(err).Warn("Failed to emit client.merged event")
				}
			}
		}
	}

	survivors := dedupe.ApplyMerges(clients, resolution.MergeMapping)
	report.ResolvedCount = len(survivors)

	// Assign territories via the rule chain.
	existing := make([]*models.Territory, len(territoryRows))
	for i := range territoryRows {
		existing[i] = &territoryRows[i]
	}
	catalog, err := assigner.NewCatalog(existing)
	if err != nil {
		return err
	}

	prior := make([]*models.Assignment, len(priorRows))
	priorByClient := make(map[string]*models.Assignment, len(priorRows))
	for i := range priorRows {
		prior[i] = &priorRows[i]
		if priorRows[i].IsCurrent && priorRows[i].AssignmentType == models.AssignmentTypePrimary {
			priorByClient[priorRows[i].ClientID] = &priorRows[i]
		}
	}

	runCtx := &rules.RunContext{
		Config:      ruleConfig,
		Territories: catalog.Snapshot(),
		Prior:       priorByClient,
	}

	asOf := time.Now().UTC()
	result, err := p.assigner.Assign(ctx, survivors, ruleSet, runCtx, catalog, runID, asOf)
	if err != nil {
		return err
	}

	report.AssignedCount = len(result.Assignments)
	report.UnassignedIDs = result.Unassigned
	report.RuleStats = result.RuleStats
	metrics.UnassignedClients.Set(float64(len(result.Unassigned)))
	for _, stats := range result.RuleStats {
		metrics.AssignmentsTotal.WithLabelValues(stats.Rule).Add(float64(stats.Assignments))
	}

	// Diff against the prior snapshot and persist the append-only history.
	diff, err := updater.Diff(prior, result.Assignments, runID, asOf)
	if err != nil {
		return err
	}
	report.Changes = diff.Changes

	created := catalog.Created()
	if len(created) > 0 {
		rows := make([]models.Territory, len(created))
		for i, t := range created {
			rows[i] = *t
		}
		if err := p.territories.CreateBatch(txCtx, rows); err != nil {
			return err
		}

		if p.emitter != nil {
			for _, t := range created {
				if err := p.emitter.EmitTerritoryCreated(ctx, runID, t); err != nil {
					log.WithError(err).Warn("Failed to emit territory.created event")
				}
			}
		}
	}

	superseded := make([]models.Assignment, len(diff.Superseded))
	for i, a := range diff.Superseded {
		superseded[i] = *a
	}
	inserted := make([]models.Assignment, len(diff.Inserted))
	for i, a := range diff.Inserted {
		inserted[i] = *a
	}
	if err := p.assignments.PersistRun(txCtx, superseded, inserted); err != nil {
		return err
	}

	if err := p.changes.InsertBatch(txCtx, diff.Changes); err != nil {
		return err
	}
	if tx != nil {
		if err := tx.Commit(ctx); err != nil {
			return err
		}
	}
	for _, change := range diff.Changes {
		metrics.AssignmentChangesTotal.WithLabelValues(string(change.ChangeType)).Inc()
	}
	if p.emitter != nil {
		if err := p.emitter.EmitAssignmentChanges(ctx, runID, diff.Changes); err != nil {
			log.WithError(err).Warn("Failed to emit assignment.changed events")
		}
	}

	// Conflicts and quality are reported against the full dimensions so
	// orphaned assignments pointing at deactivated records show up.
	allClients, err := p.clients.ListAll(ctx)
	if err != nil {
		return err
	}
	clientsByID := make(map[string]*models.Client, len(allClients))
	for i := range allClients {
		clientsByID[allClients[i].ClientID] = &allClients[i]
	}

	report.Conflicts = p.detector.Detect(diff.Current, clientsByID, catalog.Snapshot())
	for _, conflict := range report.Conflicts {
		metrics.ConflictsTotal.WithLabelValues(string(conflict.Kind), string(conflict.Severity)).Inc()
	}
	if p.emitter != nil {
		if err := p.emitter.EmitConflicts(ctx, runID, report.Conflicts); err != nil {
			log.WithError(err).Warn("Failed to emit conflict.detected events")
		}
	}

	territorySnapshot := catalog.Snapshot()
	territoryList := make([]*models.Territory, 0, len(territorySnapshot))
	for _, t := range territorySnapshot {
		territoryList = append(territoryList, t)
	}
	report.QualityWarnings = quality.Check(survivors, territoryList, diff.Current, result.Unassigned, p.config.DefaultAdvisor)
	report.QualityWarnings = append(report.QualityWarnings, resolution.Warnings...)
	report.QualityWarnings = append(report.QualityWarnings, result.Warnings...)

	return nil
}

func (p *Pipeline) finish(ctx context.Context, report *models.RunReport, startedAt time.Time) {
	finishedAt := time.Now().UTC()
	report.FinishedAt = &finishedAt

	metrics.RunsTotal.WithLabelValues(string(report.Status)).Inc()
	metrics.RunDuration.Observe(finishedAt.Sub(startedAt).Seconds())

	if err := p.runs.Finish(ctx, report); err != nil {
		p.logger.WithContext(ctx).WithError(err).WithField("run_id", report.RunID).Error("Failed to record run")
	}
}
