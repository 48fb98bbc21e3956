// Package runs exposes the assignment run API.
package runs

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/mavasquez401/crm-territory-engine/internal/repositories/run"
	"github.com/mavasquez401/crm-territory-engine/pkg/pipeline"
	"github.com/mavasquez401/crm-territory-engine/pkg/tracing"
)

// Handler serves run endpoints
type Handler struct {
	pipeline *pipeline.Pipeline
	runs     *run.Repository
	logger   ectologger.Logger
}

// NewHandler creates a new run handler
func NewHandler(p *pipeline.Pipeline, runs *run.Repository, logger ectologger.Logger) *Handler {
	return &Handler{
		pipeline: p,
		runs:     runs,
		logger:   logger,
	}
}

// Register registers run routes
func (h *Handler) Register(g *echo.Group) {
	g.POST("", h.Trigger)
	g.GET("", h.List)
	g.GET("/:id", h.Get)
}

// Trigger starts an assignment run in the background
func (h *Handler) Trigger(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "runs_handler.Trigger")
	defer span.End()

	h.logger.WithContext(ctx).Info("Run triggered via API")

	// The run outlives the request; detach it from the request context.
	go func() {
		report, err := h.pipeline.Run(context.Background())
		if err != nil && !errors.Is(err, pipeline.ErrRunInProgress) {
			h.logger.WithError(err).Error("Triggered run failed")
			return
		}
		if report != nil {
			h.logger.WithFields(map[string]any{
				"run_id": report.RunID,
				"status": string(report.Status),
			}).Info("Triggered run finished")
		}
	}()

	return c.JSON(http.StatusAccepted, map[string]string{
		"status": "accepted",
	})
}

// List returns recent runs, newest first
func (h *Handler) List(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "runs_handler.List")
	defer span.End()

	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	rows, err := h.runs.ListRecent(ctx, limit)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{
		"items": rows,
		"count": len(rows),
	})
}

// Get returns one run with its full report
func (h *Handler) Get(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "runs_handler.Get")
	defer span.End()

	id := c.Param("id")
	if id == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "run id is required")
	}

	row, err := h.runs.Get(ctx, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, row)
}
