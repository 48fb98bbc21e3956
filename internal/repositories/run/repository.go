package run

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/mavasquez401/crm-territory-engine/pkg/database"
	"github.com/mavasquez401/crm-territory-engine/pkg/models"
	"github.com/mavasquez401/crm-territory-engine/pkg/tracing"
)

const runTable = "runs"

// Row is the persisted shape of one pipeline run. The full report is kept
// as JSONB alongside the summary columns used for querying.
type Row struct {
	RunID         string          `db:"run_id" json:"run_id"`
	Status        string          `db:"status" json:"status"`
	StartedAt     time.Time       `db:"started_at" json:"started_at"`
	FinishedAt    *time.Time      `db:"finished_at" json:"finished_at,omitempty"`
	ClientCount   int             `db:"client_count" json:"client_count"`
	ResolvedCount int             `db:"resolved_count" json:"resolved_count"`
	AssignedCount int             `db:"assigned_count" json:"assigned_count"`
	ConflictCount int             `db:"conflict_count" json:"conflict_count"`
	ChangeCount   int             `db:"change_count" json:"change_count"`
	Error         string          `db:"error" json:"error,omitempty"`
	Report        json.RawMessage `db:"report" json:"report,omitempty"`
}

var runColumns = []string{
	"run_id", "status", "started_at", "finished_at", "client_count",
	"resolved_count", "assigned_count", "conflict_count", "change_count",
	"error", "report",
}

// Repository handles pipeline run persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new run repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create records the start of a run
func (r *Repository) Create(ctx context.Context, runID string, startedAt time.Time) error {
	ctx, span := tracing.StartSpan(ctx, "run.Repository.Create")
	defer span.End()

	ib := database.NewInsertBuilder()
	ib.InsertInto(runTable)
	ib.Cols("run_id", "status", "started_at")
	ib.Values(runID, string(models.RunStatusRunning), startedAt)

	query, args := ib.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("run_id", runID).Error("Failed to create run")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create run")
	}

	return nil
}

// Finish records a run's terminal state and full report
func (r *Repository) Finish(ctx context.Context, report *models.RunReport) error {
	ctx, span := tracing.StartSpan(ctx, "run.Repository.Finish")
	defer span.End()

	reportJSON, err := json.Marshal(report)
	if err != nil {
		return err
	}

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update(runTable)
	ub.Set(
		ub.Assign("status", string(report.Status)),
		ub.Assign("finished_at", report.FinishedAt),
		ub.Assign("client_count", report.ClientCount),
		ub.Assign("resolved_count", report.ResolvedCount),
		ub.Assign("assigned_count", report.AssignedCount),
		ub.Assign("conflict_count", len(report.Conflicts)),
		ub.Assign("change_count", len(report.Changes)),
		ub.Assign("error", report.Error),
		ub.Assign("report", reportJSON),
	)
	ub.Where(ub.Equal("run_id", report.RunID))

	query, args := ub.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("run_id", report.RunID).Error("Failed to finish run")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to finish run")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"run_id": report.RunID,
		"status": string(report.Status),
	}).Info("Recorded run")
	return nil
}

// Get retrieves one run by ID
func (r *Repository) Get(ctx context.Context, runID string) (*Row, error) {
	ctx, span := tracing.StartSpan(ctx, "run.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(runColumns...)
	sb.From(runTable)
	sb.Where(sb.Equal("run_id", runID))

	query, args := sb.Build()
	var row Row
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("run %s not found", runID))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get run")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get run")
	}

	return &row, nil
}

// ListRecent retrieves the most recent runs, newest first
func (r *Repository) ListRecent(ctx context.Context, limit int) ([]Row, error) {
	ctx, span := tracing.StartSpan(ctx, "run.Repository.ListRecent")
	defer span.End()

	if limit < 1 || limit > 100 {
		limit = 20
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(runColumns...)
	sb.From(runTable)
	sb.OrderBy("started_at DESC")
	sb.Limit(limit)

	query, args := sb.Build()
	var rows []Row
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list runs")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list runs")
	}

	return rows, nil
}
