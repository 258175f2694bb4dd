package dto

import (
	"time"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
)

// SLAConfigurationRequest creates or edits the policy for (category, priority).
type SLAConfigurationRequest struct {
	Name                string                `json:"name"`
	Category            string                `json:"category"`
	Priority            domain.TicketPriority `json:"priority"`
	ResponseTimeHours   float64               `json:"response_time_hours"`
	ResolutionTimeHours float64               `json:"resolution_time_hours"`
	AutoAssignToRole    *domain.UserRole      `json:"auto_assign_to_role"`
	IsActive            *bool                 `json:"is_active"`
}

// SLAConfigurationResponse renders a policy.
type SLAConfigurationResponse struct {
	ID                  string                `json:"id"`
	Name                string                `json:"name"`
	Category            string                `json:"category"`
	Priority            domain.TicketPriority `json:"priority"`
	ResponseTimeHours   float64               `json:"response_time_hours"`
	ResolutionTimeHours float64               `json:"resolution_time_hours"`
	AutoAssignToRole    *domain.UserRole      `json:"auto_assign_to_role"`
	IsActive            bool                  `json:"is_active"`
	CreatedAt           time.Time             `json:"created_at"`
	UpdatedAt           time.Time             `json:"updated_at"`
}

// AlertsResponse is the latest scan snapshot.
type AlertsResponse struct {
	Alerts    []domain.TicketAlert `json:"alerts"`
	ScannedAt *time.Time           `json:"scanned_at"`
}
