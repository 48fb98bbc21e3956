package client

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/mavasquez401/crm-territory-engine/pkg/database"
	"github.com/mavasquez401/crm-territory-engine/pkg/models"
	"github.com/mavasquez401/crm-territory-engine/pkg/tracing"
)

const clientTable = "client_dim"

var clientColumns = []string{
	"id", "client_id", "name", "region", "segment", "parent_org",
	"advisor_email", "attributes", "is_active", "merged_into",
	"created_at", "updated_at", "deactivated_at",
}

// Repository handles client dimension persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new client repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Upsert inserts or refreshes a client record from the ingestion feed.
// Client IDs are externally assigned, so conflicts update in place.
func (r *Repository) Upsert(ctx context.Context, req models.CreateClientRequest) (*models.Client, error) {
	ctx, span := tracing.StartSpan(ctx, "client.Repository.Upsert")
	defer span.End()

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"method":    "Upsert",
		"client_id": req.ClientID,
	})

	now := time.Now().UTC()
	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	client := &models.Client{
		ID:           uuid.New().String(),
		ClientID:     req.ClientID,
		Name:         req.Name,
		Region:       req.Region,
		Segment:      req.Segment,
		ParentOrg:    req.ParentOrg,
		AdvisorEmail: req.AdvisorEmail,
		Attributes:   req.Attributes,
		IsActive:     isActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(clientTable)
	ib.Cols("id", "client_id", "name", "region", "segment", "parent_org", "advisor_email", "attributes", "is_active", "created_at", "updated_at")
	ib.Values(client.ID, client.ClientID, client.Name, client.Region, client.Segment, client.ParentOrg, client.AdvisorEmail, []byte(client.Attributes), client.IsActive, client.CreatedAt, client.UpdatedAt)
	ub := ib.OnConflict("client_id")
	ub.Set(
		ub.Assign("name", database.Excluded("name")),
		ub.Assign("region", database.Excluded("region")),
		ub.Assign("segment", database.Excluded("segment")),
		ub.Assign("parent_org", database.Excluded("parent_org")),
		ub.Assign("advisor_email", database.Excluded("advisor_email")),
		ub.Assign("attributes", database.Excluded("attributes")),
		ub.Assign("is_active", database.Excluded("is_active")),
		ub.Assign("updated_at", now),
	)

	query, args := ib.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		log.WithError(err).Error("Failed to upsert client")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert client")
	}

	log.Debug("Upserted client")
	return client, nil
}

// Get retrieves a client by its external client ID
func (r *Repository) Get(ctx context.Context, clientID string) (*models.Client, error) {
	ctx, span := tracing.StartSpan(ctx, "client.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(clientColumns...)
	sb.From(clientTable)
	sb.Where(sb.Equal("client_id", clientID))

	query, args := sb.Build()
	var client models.Client
	if err := r.db.GetContext(ctx, &client, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("client %s not found", clientID))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get client")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get client")
	}

	return &client, nil
}

// ListActive retrieves all active, unmerged clients ordered by client ID
func (r *Repository) ListActive(ctx context.Context) ([]models.Client, error) {
	ctx, span := tracing.StartSpan(ctx, "client.Repository.ListActive")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(clientColumns...)
	sb.From(clientTable)
	sb.Where(
		sb.Equal("is_active", true),
		sb.IsNull("merged_into"),
	)
	sb.OrderBy("client_id")

	query, args := sb.Build()
	var clients []models.Client
	if err := r.db.SelectContext(ctx, &clients, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list clients")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list clients")
	}

	return clients, nil
}

// ListAll retrieves every client record, merged and deactivated included.
// Conflict detection needs the full dimension to spot orphaned assignments.
func (r *Repository) ListAll(ctx context.Context) ([]models.Client, error) {
	ctx, span := tracing.StartSpan(ctx, "client.Repository.ListAll")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(clientColumns...)
	sb.From(clientTable)
	sb.OrderBy("client_id")

	query, args := sb.Build()
	var clients []models.Client
	if err := r.db.SelectContext(ctx, &clients, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list clients")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list clients")
	}

	return clients, nil
}

// MarkMerged deactivates duplicate records and points them at their
// canonical survivor. All merges from one run commit atomically.
func (r *Repository) MarkMerged(ctx context.Context, mergeMapping map[string]string) error {
	ctx, span := tracing.StartSpan(ctx, "client.Repository.MarkMerged")
	defer span.End()

	if len(mergeMapping) == 0 {
		return nil
	}

	ctxTx, tx, err := r.db.GetTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	for duplicateID, canonicalID := range mergeMapping {
		ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
		ub.Update(clientTable)
		ub.Set(
			ub.Assign("is_active", false),
			ub.Assign("merged_into", canonicalID),
			ub.Assign("deactivated_at", now),
			ub.Assign("updated_at", now),
		)
		ub.Where(ub.Equal("client_id", duplicateID))

		query, args := ub.Build()
		if _, err := tx.ExecContext(ctxTx, query, args...); err != nil {
			r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"client_id":    duplicateID,
				"canonical_id": canonicalID,
			}).Error("Failed to mark client merged")
			return httperror.NewHTTPError(http.StatusInternalServerError, "failed to mark client merged")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"merged_count": len(mergeMapping),
	}).Info("Marked merged clients")
	return nil
}
