// Package ruleconfigs exposes the rule configuration API.
package ruleconfigs

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/mavasquez401/crm-territory-engine/internal/repositories/ruleconfig"
	"github.com/mavasquez401/crm-territory-engine/pkg/models"
	"github.com/mavasquez401/crm-territory-engine/pkg/rules"
	"github.com/mavasquez401/crm-territory-engine/pkg/tracing"
)

// Handler serves rule config endpoints
type Handler struct {
	configs *ruleconfig.Repository
	logger  ectologger.Logger
}

// NewHandler creates a new rule config handler
func NewHandler(configs *ruleconfig.Repository, logger ectologger.Logger) *Handler {
	return &Handler{
		configs: configs,
		logger:  logger,
	}
}

// Register registers rule config routes
func (h *Handler) Register(g *echo.Group) {
	g.GET("", h.Get)
	g.PUT("/:kind", h.Save)
	g.DELETE("/:id", h.Delete)
}

// Get returns the assembled active rule configuration
func (h *Handler) Get(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "ruleconfigs_handler.Get")
	defer span.End()

	config, err := h.configs.Load(ctx)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, config)
}

// Save stores a new active document for one config kind. The payload is
// validated by building a rule set from the resulting configuration, so a
// document that would fail the next run is rejected here instead.
func (h *Handler) Save(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "ruleconfigs_handler.Save")
	defer span.End()

	kind := c.Param("kind")
	if kind == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "config kind is required")
	}

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "failed to read request body")
	}
	if !json.Valid(body) {
		return httperror.NewHTTPError(http.StatusBadRequest, "payload must be valid JSON")
	}

	// Validate against the rest of the active configuration before
	// persisting anything, so the next run never sees a broken document.
	candidate, err := h.configs.Load(ctx)
	if err != nil {
		return err
	}
	switch kind {
	case models.RuleConfigKindWhitelist:
		candidate.Whitelist = map[string]string{}
		if err := json.Unmarshal(body, &candidate.Whitelist); err != nil {
			return httperror.NewHTTPErrorf(http.StatusBadRequest, "malformed whitelist payload: %s", err.Error())
		}
	case models.RuleConfigKindBlacklist:
		candidate.Blacklist = map[string][]string{}
		if err := json.Unmarshal(body, &candidate.Blacklist); err != nil {
			return httperror.NewHTTPErrorf(http.StatusBadRequest, "malformed blacklist payload: %s", err.Error())
		}
	case models.RuleConfigKindTier:
		candidate.Tiers = nil
		if err := json.Unmarshal(body, &candidate.Tiers); err != nil {
			return httperror.NewHTTPErrorf(http.StatusBadRequest, "malformed tier payload: %s", err.Error())
		}
	default:
		return httperror.NewHTTPErrorf(http.StatusBadRequest, "unknown rule config kind %q", kind)
	}
	if _, err := rules.NewRuleSet(candidate); err != nil {
		return err
	}

	record, err := h.configs.Save(ctx, kind, body)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, record)
}

// Delete soft deletes one rule config document
func (h *Handler) Delete(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "ruleconfigs_handler.Delete")
	defer span.End()

	id := c.Param("id")
	if id == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "config id is required")
	}

	if err := h.configs.Delete(ctx, id); err != nil {
		return err
	}

	return c.NoContent(http.StatusNoContent)
}
