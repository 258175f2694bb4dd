package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-sla/internal/api/dto"
	"github.com/spec-kit/helpdesk-sla/internal/domain"
	"github.com/spec-kit/helpdesk-sla/internal/service"
	"github.com/spec-kit/helpdesk-sla/internal/worker"
	apperrors "github.com/spec-kit/helpdesk-sla/pkg/util/errorutil"
)

// AlertFeed exposes the background scanner's results.
type AlertFeed interface {
	Latest() worker.Snapshot
	Refresh(ctx context.Context) (worker.Snapshot, error)
}

// SLAHandler serves SLA policies, alerts and compliance metrics.
type SLAHandler struct {
	service *service.SLAService
	alerts  AlertFeed
}

// NewSLAHandler constructs handler.
func NewSLAHandler(slaService *service.SLAService, alerts AlertFeed) *SLAHandler {
	return &SLAHandler{service: slaService, alerts: alerts}
}

// ListConfigurations GET /sla/configurations?active=.
func (h *SLAHandler) ListConfigurations(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	configs, err := h.service.ListConfigurations(c.UserContext(), user, parseBool(c.Query("active"), false))
	if err != nil {
		return err
	}
	items := make([]dto.SLAConfigurationResponse, 0, len(configs))
	for i := range configs {
		items = append(items, slaConfigurationResponse(&configs[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// UpsertConfiguration PUT /sla/configurations.
func (h *SLAHandler) UpsertConfiguration(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	var req dto.SLAConfigurationRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	cfg, err := h.service.UpsertConfiguration(c.UserContext(), user, service.SLAConfigurationInput{
		Name:                req.Name,
		Category:            req.Category,
		Priority:            req.Priority,
		ResponseTimeHours:   req.ResponseTimeHours,
		ResolutionTimeHours: req.ResolutionTimeHours,
		AutoAssignToRole:    req.AutoAssignToRole,
		IsActive:            req.IsActive,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": slaConfigurationResponse(cfg)})
}

// DeactivateConfiguration DELETE /sla/configurations/:id.
func (h *SLAHandler) DeactivateConfiguration(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	if err := h.service.DeactivateConfiguration(c.UserContext(), user, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// Alerts GET /sla/alerts returns the latest scan without triggering one.
func (h *SLAHandler) Alerts(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": alertsResponse(h.alerts.Latest())})
}

// RefreshAlerts POST /sla/alerts/refresh runs a pass now.
func (h *SLAHandler) RefreshAlerts(c *fiber.Ctx) error {
	snapshot, err := h.alerts.Refresh(c.UserContext())
	if err != nil {
		if errors.Is(err, worker.ErrScanInProgress) || errors.Is(err, worker.ErrLeaseHeld) {
			return apperrors.NewConflict(err.Error(), nil)
		}
		return err
	}
	return c.JSON(fiber.Map{"data": alertsResponse(snapshot)})
}

// Metrics GET /sla/metrics?start=&end=.
func (h *SLAHandler) Metrics(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	start, err := parseTimeParam("start", c.Query("start"))
	if err != nil {
		return err
	}
	end, err := parseTimeParam("end", c.Query("end"))
	if err != nil {
		return err
	}
	metrics, err := h.service.ComputeMetrics(c.UserContext(), user, start, end)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": metrics})
}

func alertsResponse(snapshot worker.Snapshot) dto.AlertsResponse {
	resp := dto.AlertsResponse{Alerts: snapshot.Alerts}
	if resp.Alerts == nil {
		resp.Alerts = []domain.TicketAlert{}
	}
	if !snapshot.ScannedAt.IsZero() {
		at := snapshot.ScannedAt
		resp.ScannedAt = &at
	}
	return resp
}

func slaConfigurationResponse(cfg *domain.SLAConfiguration) dto.SLAConfigurationResponse {
	return dto.SLAConfigurationResponse{
		ID:                  cfg.ID,
		Name:                cfg.Name,
		Category:            cfg.Category,
		Priority:            cfg.Priority,
		ResponseTimeHours:   cfg.ResponseTimeHours,
		ResolutionTimeHours: cfg.ResolutionTimeHours,
		AutoAssignToRole:    cfg.AutoAssignToRole,
		IsActive:            cfg.IsActive,
		CreatedAt:           cfg.CreatedAt,
		UpdatedAt:           cfg.UpdatedAt,
	}
}
