package assignmentchange

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

const changeTable = "assignment_changes"

var changeColumns = []string{
	"id", "client_id", "change_type", "old_territory_id", "new_territory_id",
	"old_advisor_email", "new_advisor_email", "rule", "run_id", "changed_at",
}

// Repository handles the assignment change audit log
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new assignment change repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// InsertBatch persists one run's audit diff atomically
func (r *Repository) InsertBatch(ctx context.Context, changes []models.AssignmentChange) error {
	ctx, span := tracing.StartSpan(ctx, "assignmentchange.Repository.InsertBatch")
	defer span.End()

	if len(changes) == 0 {
		return nil
	}

	ctxTx, tx, err := r.db.GetTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, c := range changes {
		ib := database.NewInsertBuilder()
		ib.InsertInto(changeTable)
		ib.Cols(changeColumns...)
		ib.Values(c.ID, c.ClientID, c.ChangeType, c.OldTerritoryID, c.NewTerritoryID, c.OldAdvisorEmail, c.NewAdvisorEmail, c.Rule, c.RunID, c.ChangedAt)

		query, args := ib.Build()
		if _, err := tx.ExecContext(ctxTx, query, args...); err != nil {
			r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"client_id":   c.ClientID,
				"change_type": string(c.ChangeType),
			}).Error("Failed to insert assignment change")
			return httperror.NewHTTPError(http.StatusInternalServerError, "failed to insert assignment change")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"change_count": len(changes),
	}).Info("Recorded assignment changes")
	return nil
}

// ListByRun retrieves the audit diff for one run
func (r *Repository) ListByRun(ctx context.Context, runID string) ([]models.AssignmentChange, error) {
	ctx, span := tracing.StartSpan(ctx, "assignmentchange.Repository.ListByRun")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(changeColumns...)
	sb.From(changeTable)
	sb.Where(sb.Equal("run_id", runID))
	sb.OrderBy("client_id", "change_type")

	query, args := sb.Build()
	var changes []models.AssignmentChange
	if err := r.db.SelectContext(ctx, &changes, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list assignment changes")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list assignment changes")
	}

	return changes, nil
}

// ListByClient retrieves the change history for one client, newest first
func (r *Repository) ListByClient(ctx context.Context, clientID string) ([]models.AssignmentChange, error) {
	ctx, span := tracing.StartSpan(ctx, "assignmentchange.Repository.ListByClient")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(changeColumns...)
	sb.From(changeTable)
	sb.Where(sb.Equal("client_id", clientID))
	sb.OrderBy("changed_at DESC")

	query, args := sb.Build()
	var changes []models.AssignmentChange
	if err := r.db.SelectContext(ctx, &changes, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list assignment changes")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list assignment changes")
	}

	return changes, nil
}
