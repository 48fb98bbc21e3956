package territory

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/mavasquez401/crm-territory-engine/pkg/database"
	"github.com/mavasquez401/crm-territory-engine/pkg/models"
	"github.com/mavasquez401/crm-territory-engine/pkg/tracing"
)

const territoryTable = "territory_dim"

var territoryColumns = []string{
	"id", "territory_id", "region", "segment", "owner_role",
	"description", "is_active", "created_at", "updated_at", "deleted_at",
}

// Repository handles territory dimension persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new territory repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Get retrieves a territory by its derived territory ID
func (r *Repository) Get(ctx context.Context, territoryID string) (*models.Territory, error) {
	ctx, span := tracing.StartSpan(ctx, "territory.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(territoryColumns...)
	sb.From(territoryTable)
	sb.Where(
		sb.Equal("territory_id", territoryID),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	var territory models.Territory
	if err := r.db.GetContext(ctx, &territory, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("territory %s not found", territoryID))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get territory")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get territory")
	}

	return &territory, nil
}

// List retrieves all territories, inactive included, ordered by territory ID
func (r *Repository) List(ctx context.Context) ([]models.Territory, error) {
	ctx, span := tracing.StartSpan(ctx, "territory.Repository.List")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(territoryColumns...)
	sb.From(territoryTable)
	sb.Where(sb.IsNull("deleted_at"))
	sb.OrderBy("territory_id")

	query, args := sb.Build()
	var territories []models.Territory
	if err := r.db.SelectContext(ctx, &territories, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list territories")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list territories")
	}

	return territories, nil
}

// CreateBatch persists territories created lazily during a run. Territory
// IDs are deterministic, so concurrent runs racing on the same key fall
// through to the existing row.
func (r *Repository) CreateBatch(ctx context.Context, territories []models.Territory) error {
	ctx, span := tracing.StartSpan(ctx, "territory.Repository.CreateBatch")
	defer span.End()

	if len(territories) == 0 {
		return nil
	}

	ctxTx, tx, err := r.db.GetTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, t := range territories {
		ib := database.NewInsertBuilder()
		ib.InsertInto(territoryTable)
		ib.Cols("id", "territory_id", "region", "segment", "owner_role", "description", "is_active", "created_at", "updated_at")
		ib.Values(t.ID, t.TerritoryID, t.Region, t.Segment, t.OwnerRole, t.Description, t.IsActive, t.CreatedAt, t.UpdatedAt)
		ib.OnConflictDoNothing()

		query, args := ib.Build()
		if _, err := tx.ExecContext(ctxTx, query, args...); err != nil {
			r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"territory_id": t.TerritoryID,
			}).Error("Failed to create territory")
			return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create territory")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"created_count": len(territories),
	}).Info("Created territories")
	return nil
}
