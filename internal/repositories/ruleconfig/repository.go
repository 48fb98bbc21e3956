package ruleconfig

import (
	"context"
	"database/sql"
	"encoding/json"
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

const ruleConfigTable = "rule_configs"

var ruleConfigColumns = []string{
	"id", "kind", "payload", "is_active", "created_at", "updated_at", "deleted_at",
}

// Repository handles rule configuration persistence. Each kind keeps one
// active document; saving a new one soft-deletes its predecessor so the
// config history stays queryable.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new rule config repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Load assembles the full rule configuration from the active documents.
// Missing kinds yield empty maps so a partially configured engine still runs.
func (r *Repository) Load(ctx context.Context) (*models.RuleConfig, error) {
	ctx, span := tracing.StartSpan(ctx, "ruleconfig.Repository.Load")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(ruleConfigColumns...)
	sb.From(ruleConfigTable)
	sb.Where(
		sb.Equal("is_active", true),
		sb.IsNull("deleted_at"),
	)
	sb.OrderBy("kind", "created_at DESC")

	query, args := sb.Build()
	var records []models.RuleConfigRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to load rule configs")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to load rule configs")
	}

	config := &models.RuleConfig{
		Whitelist: map[string]string{},
		Blacklist: map[string][]string{},
	}

	seen := map[string]bool{}
	for _, record := range records {
		if seen[record.Kind] {
			continue // newest document per kind wins
		}
		seen[record.Kind] = true

		switch record.Kind {
		case models.RuleConfigKindWhitelist:
			if err := json.Unmarshal(record.Payload, &config.Whitelist); err != nil {
				return nil, httperror.NewHTTPErrorf(http.StatusBadRequest, "malformed whitelist config %s: %s", record.ID, err.Error())
			}
		case models.RuleConfigKindBlacklist:
			if err := json.Unmarshal(record.Payload, &config.Blacklist); err != nil {
				return nil, httperror.NewHTTPErrorf(http.StatusBadRequest, "malformed blacklist config %s: %s", record.ID, err.Error())
			}
		case models.RuleConfigKindTier:
			if err := json.Unmarshal(record.Payload, &config.Tiers); err != nil {
				return nil, httperror.NewHTTPErrorf(http.StatusBadRequest, "malformed tier config %s: %s", record.ID, err.Error())
			}
		default:
			r.logger.WithContext(ctx).WithField("kind", record.Kind).Warn("Skipping unknown rule config kind")
		}
	}

	return config, nil
}

// Save stores a new active document for the kind, retiring the previous one
func (r *Repository) Save(ctx context.Context, kind string, payload json.RawMessage) (*models.RuleConfigRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "ruleconfig.Repository.Save")
	defer span.End()

	switch kind {
	case models.RuleConfigKindWhitelist, models.RuleConfigKindBlacklist, models.RuleConfigKindTier:
	default:
		return nil, httperror.NewHTTPErrorf(http.StatusBadRequest, "unknown rule config kind %q", kind)
	}

	now := time.Now().UTC()
	record := &models.RuleConfigRecord{
		ID:        uuid.New().String(),
		Kind:      kind,
		Payload:   payload,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	ctxTx, tx, err := r.db.GetTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update(ruleConfigTable)
	ub.Set(
		ub.Assign("is_active", false),
		ub.Assign("updated_at", now),
	)
	ub.Where(
		ub.Equal("kind", kind),
		ub.Equal("is_active", true),
		ub.IsNull("deleted_at"),
	)

	query, args := ub.Build()
	if _, err := tx.ExecContext(ctxTx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to retire rule config")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to retire rule config")
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(ruleConfigTable)
	ib.Cols("id", "kind", "payload", "is_active", "created_at", "updated_at")
	ib.Values(record.ID, record.Kind, []byte(record.Payload), record.IsActive, record.CreatedAt, record.UpdatedAt)

	query, args = ib.Build()
	if _, err := tx.ExecContext(ctxTx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to save rule config")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to save rule config")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"id":   record.ID,
		"kind": kind,
	}).Info("Saved rule config")
	return record, nil
}

// Get retrieves one rule config record by ID
func (r *Repository) Get(ctx context.Context, id string) (*models.RuleConfigRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "ruleconfig.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(ruleConfigColumns...)
	sb.From(ruleConfigTable)
	sb.Where(
		sb.Equal("id", id),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	var record models.RuleConfigRecord
	if err := r.db.GetContext(ctx, &record, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("rule config %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get rule config")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get rule config")
	}

	return &record, nil
}

// Delete soft deletes a rule config record
func (r *Repository) Delete(ctx context.Context, id string) error {
	ctx, span := tracing.StartSpan(ctx, "ruleconfig.Repository.Delete")
	defer span.End()

	now := time.Now().UTC()
	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update(ruleConfigTable)
	ub.Set(
		ub.Assign("deleted_at", now),
		ub.Assign("is_active", false),
	)
	ub.Where(
		ub.Equal("id", id),
		ub.IsNull("deleted_at"),
	)

	query, args := ub.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to delete rule config")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete rule config")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("rule config %s not found", id))
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"id": id}).Info("Deleted rule config")
	return nil
}
