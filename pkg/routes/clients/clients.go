// Package clients exposes the client dimension API.
package clients

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/mavasquez401/crm-territory-engine/internal/repositories/assignment"
	"github.com/mavasquez401/crm-territory-engine/internal/repositories/assignmentchange"
	"github.com/mavasquez401/crm-territory-engine/internal/repositories/client"
	"github.com/mavasquez401/crm-territory-engine/pkg/models"
	"github.com/mavasquez401/crm-territory-engine/pkg/normalizers"
	"github.com/mavasquez401/crm-territory-engine/pkg/tracing"
)

var validate = validator.New()

// Handler serves client endpoints
type Handler struct {
	clients     *client.Repository
	assignments *assignment.Repository
	changes     *assignmentchange.Repository
	logger      ectologger.Logger
}

// NewHandler creates a new client handler
func NewHandler(
	clients *client.Repository,
	assignments *assignment.Repository,
	changes *assignmentchange.Repository,
	logger ectologger.Logger,
) *Handler {
	return &Handler{
		clients:     clients,
		assignments: assignments,
		changes:     changes,
		logger:      logger,
	}
}

// Register registers client routes
func (h *Handler) Register(g *echo.Group) {
	g.POST("", h.Create)
	g.GET("/:client_id", h.Get)
	g.GET("/:client_id/assignments", h.Assignments)
	g.GET("/:client_id/changes", h.Changes)
}

// Create ingests a client record via the API instead of the Kafka feed
func (h *Handler) Create(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "clients_handler.Create")
	defer span.End()

	var req models.CreateClientRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	req.AdvisorEmail = normalizers.NormalizeEmail(req.AdvisorEmail)

	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid client record: %s", err.Error())
	}

	created, err := h.clients.Upsert(ctx, req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, created)
}

// Get returns one client record
func (h *Handler) Get(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "clients_handler.Get")
	defer span.End()

	clientID := c.Param("client_id")
	if clientID == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "client_id is required")
	}

	record, err := h.clients.Get(ctx, clientID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, record)
}

// Assignments returns a client's full assignment history, newest first
func (h *Handler) Assignments(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "clients_handler.Assignments")
	defer span.End()

	clientID := c.Param("client_id")
	if clientID == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "client_id is required")
	}

	assignments, err := h.assignments.ListByClient(ctx, clientID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{
		"items": assignments,
		"count": len(assignments),
	})
}

// Changes returns a client's audit change history, newest first
func (h *Handler) Changes(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "clients_handler.Changes")
	defer span.End()

	clientID := c.Param("client_id")
	if clientID == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "client_id is required")
	}

	changes, err := h.changes.ListByClient(ctx, clientID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{
		"items": changes,
		"count": len(changes),
	})
}
