package assignment

import (
	"context"
	"database/sql"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/mavasquez401/crm-territory-engine/pkg/database"
	"github.com/mavasquez401/crm-territory-engine/pkg/models"
	"github.com/mavasquez401/crm-territory-engine/pkg/tracing"
)

const assignmentTable = "assignments_fact"

var assignmentColumns = []string{
	"id", "client_id", "territory_id", "assignment_type", "advisor_email",
	"is_current", "effective_date", "end_date", "assigned_by_rule",
	"confidence_score", "run_id", "created_at",
}

// Repository handles assignment fact persistence. The fact table is
// append-only: superseded rows are closed out, never deleted.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new assignment repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// ListCurrent retrieves the current assignment snapshot ordered by client ID
func (r *Repository) ListCurrent(ctx context.Context) ([]models.Assignment, error) {
	ctx, span := tracing.StartSpan(ctx, "assignment.Repository.ListCurrent")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(assignmentColumns...)
	sb.From(assignmentTable)
	sb.Where(sb.Equal("is_current", true))
	sb.OrderBy("client_id", "territory_id")

	query, args := sb.Build()
	var assignments []models.Assignment
	if err := r.db.SelectContext(ctx, &assignments, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list current assignments")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list current assignments")
	}

	return assignments, nil
}

// ListByClient retrieves the full assignment history for one client
func (r *Repository) ListByClient(ctx context.Context, clientID string) ([]models.Assignment, error) {
	ctx, span := tracing.StartSpan(ctx, "assignment.Repository.ListByClient")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(assignmentColumns...)
	sb.From(assignmentTable)
	sb.Where(sb.Equal("client_id", clientID))
	sb.OrderBy("created_at DESC")

	query, args := sb.Build()
	var assignments []models.Assignment
	if err := r.db.SelectContext(ctx, &assignments, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list client assignments")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list client assignments")
	}

	return assignments, nil
}

// PersistRun applies one run's diff atomically: superseded rows are closed
// out and the fresh rows inserted in a single transaction.
func (r *Repository) PersistRun(ctx context.Context, superseded, inserted []models.Assignment) error {
	ctx, span := tracing.StartSpan(ctx, "assignment.Repository.PersistRun")
	defer span.End()

	if len(superseded) == 0 && len(inserted) == 0 {
		return nil
	}

	ctxTx, tx, err := r.db.GetTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, a := range superseded {
		ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
		ub.Update(assignmentTable)
		ub.Set(
			ub.Assign("is_current", false),
			ub.Assign("end_date", a.EndDate),
		)
		ub.Where(
			ub.Equal("id", a.ID),
			ub.Equal("is_current", true),
		)

		query, args := ub.Build()
		if _, err := tx.ExecContext(ctxTx, query, args...); err != nil {
			r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"assignment_id": a.ID,
			}).Error("Failed to close out assignment")
			return httperror.NewHTTPError(http.StatusInternalServerError, "failed to close out assignment")
		}
	}

	for _, a := range inserted {
		ib := database.NewInsertBuilder()
		ib.InsertInto(assignmentTable)
		ib.Cols(assignmentColumns...)
		ib.Values(a.ID, a.ClientID, a.TerritoryID, a.AssignmentType, a.AdvisorEmail, a.IsCurrent, a.EffectiveDate, a.EndDate, a.AssignedByRule, a.ConfidenceScore, a.RunID, a.CreatedAt)

		query, args := ib.Build()
		if _, err := tx.ExecContext(ctxTx, query, args...); err != nil {
			r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"assignment_id": a.ID,
				"client_id":     a.ClientID,
			}).Error("Failed to insert assignment")
			return httperror.NewHTTPError(http.StatusInternalServerError, "failed to insert assignment")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"superseded_count": len(superseded),
		"inserted_count":   len(inserted),
	}).Info("Persisted assignment run")
	return nil
}
