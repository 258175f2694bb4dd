package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-sla/internal/api/dto"
	"github.com/spec-kit/helpdesk-sla/internal/domain"
	"github.com/spec-kit/helpdesk-sla/internal/service"
	apperrors "github.com/spec-kit/helpdesk-sla/pkg/util/errorutil"
)

// AssignmentHandler administers assignment rules and agent workload.
type AssignmentHandler struct {
	rules    *service.AssignmentService
	balancer *service.WorkloadBalancer
}

// NewAssignmentHandler constructs handler.
func NewAssignmentHandler(rules *service.AssignmentService, balancer *service.WorkloadBalancer) *AssignmentHandler {
	return &AssignmentHandler{rules: rules, balancer: balancer}
}

// ListRules GET /assignment/rules?active=.
func (h *AssignmentHandler) ListRules(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	rules, err := h.rules.ListRules(c.UserContext(), user, parseBool(c.Query("active"), false))
	if err != nil {
		return err
	}
	items := make([]dto.AssignmentRuleResponse, 0, len(rules))
	for i := range rules {
		items = append(items, ruleResponse(&rules[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// CreateRule POST /assignment/rules.
func (h *AssignmentHandler) CreateRule(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	input, err := parseRuleInput(c)
	if err != nil {
		return err
	}
	rule, err := h.rules.CreateRule(c.UserContext(), user, input)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": ruleResponse(rule)})
}

// UpdateRule PUT /assignment/rules/:id.
func (h *AssignmentHandler) UpdateRule(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	input, err := parseRuleInput(c)
	if err != nil {
		return err
	}
	rule, err := h.rules.UpdateRule(c.UserContext(), user, c.Params("id"), input)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ruleResponse(rule)})
}

// DeactivateRule DELETE /assignment/rules/:id.
func (h *AssignmentHandler) DeactivateRule(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	if err := h.rules.DeactivateRule(c.UserContext(), user, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// Workload GET /admin/workload?role=&category=.
func (h *AssignmentHandler) Workload(c *fiber.Ctx) error {
	var roles []domain.UserRole
	for _, r := range splitList(c.Query("role")) {
		roles = append(roles, domain.UserRole(r))
	}
	loads, err := h.balancer.Loads(c.UserContext(), roles, c.Query("category"))
	if err != nil {
		return err
	}
	items := make([]dto.AgentLoadResponse, 0, len(loads))
	for _, l := range loads {
		items = append(items, dto.AgentLoadResponse{
			UserID:   l.User.ID,
			FullName: l.User.FullName,
			Role:     l.User.Role,
			Load:     l.Load,
		})
	}
	return c.JSON(fiber.Map{"data": items})
}

// Rebalance POST /admin/rebalance runs a single pass.
func (h *AssignmentHandler) Rebalance(c *fiber.Ctx) error {
	result, err := h.balancer.Rebalance(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": result})
}

// Reassign POST /admin/reassign moves every open ticket between users.
func (h *AssignmentHandler) Reassign(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	var req dto.ReassignRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	moved, err := h.balancer.ReassignUserTickets(c.UserContext(), user, req.FromUserID, req.ToUserID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"moved": moved}})
}

func parseRuleInput(c *fiber.Ctx) (service.RuleInput, error) {
	var req dto.AssignmentRuleRequest
	if err := c.BodyParser(&req); err != nil {
		return service.RuleInput{}, apperrors.NewValidationError("invalid payload", nil)
	}
	return service.RuleInput{
		Name:           req.Name,
		Priority:       req.Priority,
		Conditions:     req.Conditions,
		AssignToUserID: req.AssignToUserID,
		AssignToRole:   req.AssignToRole,
		IsActive:       req.IsActive,
	}, nil
}

func ruleResponse(rule *domain.AssignmentRule) dto.AssignmentRuleResponse {
	return dto.AssignmentRuleResponse{
		ID:             rule.ID,
		Name:           rule.Name,
		Priority:       rule.Priority,
		Conditions:     rule.Conditions.Map(),
		AssignToUserID: rule.AssignToUserID,
		AssignToRole:   rule.AssignToRole,
		IsActive:       rule.IsActive,
		CreatedAt:      rule.CreatedAt,
		UpdatedAt:      rule.UpdatedAt,
	}
}
