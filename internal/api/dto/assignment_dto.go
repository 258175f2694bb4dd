package dto

import (
	"time"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
)

// AssignmentRuleRequest payload. Conditions use the {field: value | [values]} form.
type AssignmentRuleRequest struct {
	Name           string           `json:"name"`
	Priority       int              `json:"priority"`
	Conditions     map[string]any   `json:"conditions"`
	AssignToUserID *string          `json:"assign_to_user_id"`
	AssignToRole   *domain.UserRole `json:"assign_to_role"`
	IsActive       *bool            `json:"is_active"`
}

// AssignmentRuleResponse renders a rule.
type AssignmentRuleResponse struct {
	ID             string           `json:"id"`
	Name           string           `json:"name"`
	Priority       int              `json:"priority"`
	Conditions     map[string]any   `json:"conditions"`
	AssignToUserID *string          `json:"assign_to_user_id"`
	AssignToRole   *domain.UserRole `json:"assign_to_role"`
	IsActive       bool             `json:"is_active"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}
