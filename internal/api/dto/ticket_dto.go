package dto

import (
	"time"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Title         string                `json:"title"`
	Description   string                `json:"description"`
	Priority      domain.TicketPriority `json:"priority"`
	Category      string                `json:"category"`
	ContactMedium domain.ContactMedium  `json:"contact_medium"`
	ContactValue  string                `json:"contact_value"`
}

// CreateCommentRequest payload.
type CreateCommentRequest struct {
	Content    string `json:"content"`
	IsInternal bool   `json:"is_internal"`
}

// CloseTicketRequest carries the optional closing comment.
type CloseTicketRequest struct {
	Comment    string `json:"comment"`
	IsInternal bool   `json:"is_internal"`
}

// UpdateStatusRequest payload.
type UpdateStatusRequest struct {
	Status domain.TicketStatus `json:"status"`
}

// AssignTicketRequest payload.
type AssignTicketRequest struct {
	AssigneeID string `json:"assignee_id"`
}

// SLAView is the derived SLA state rendered with a ticket.
type SLAView struct {
	Status                     domain.SLAStatus `json:"sla_status"`
	HoursSinceCreated          float64          `json:"hours_since_created"`
	HoursUntilResponseBreach   *float64         `json:"hours_until_response_breach"`
	HoursUntilResolutionBreach *float64         `json:"hours_until_resolution_breach"`
	Exempt                     bool             `json:"exempt"`
}

// TicketResponse is a ticket with its SLA view.
type TicketResponse struct {
	ID                     string                `json:"id"`
	TicketNumber           int64                 `json:"ticket_number"`
	Title                  string                `json:"title"`
	Description            string                `json:"description"`
	Status                 domain.TicketStatus   `json:"status"`
	Priority               domain.TicketPriority `json:"priority"`
	Category               string                `json:"category"`
	CreatedBy              *string               `json:"created_by"`
	AssignedTo             *string               `json:"assigned_to"`
	ContactMedium          domain.ContactMedium  `json:"contact_medium"`
	ContactValue           string                `json:"contact_value"`
	CreatedAt              time.Time             `json:"created_at"`
	UpdatedAt              time.Time             `json:"updated_at"`
	FirstResponseAt        *time.Time            `json:"first_response_at"`
	ResolvedAt             *time.Time            `json:"resolved_at"`
	ClosedAt               *time.Time            `json:"closed_at"`
	SLAResponseTimeHours   *float64              `json:"sla_response_time_hours"`
	SLAResolutionTimeHours *float64              `json:"sla_resolution_time_hours"`
	ResponseSLAMet         *bool                 `json:"response_sla_met"`
	ResolutionSLAMet       *bool                 `json:"resolution_sla_met"`
	SLABreachNotified      bool                  `json:"sla_breach_notified"`
	SLA                    *SLAView              `json:"sla,omitempty"`
}

// TicketDetailResponse adds the visible comment thread.
type TicketDetailResponse struct {
	TicketResponse
	Comments []CommentResponse `json:"comments"`
}

// CommentResponse represents a thread entry.
type CommentResponse struct {
	ID         string    `json:"id"`
	TicketID   string    `json:"ticket_id"`
	UserID     string    `json:"user_id"`
	Content    string    `json:"content"`
	IsInternal bool      `json:"is_internal"`
	CreatedAt  time.Time `json:"created_at"`
}

// TicketHistoryResponse is one audit entry.
type TicketHistoryResponse struct {
	ID            string                  `json:"id"`
	ChangeType    domain.TicketChangeType `json:"change_type"`
	ChangedByType domain.ActorType        `json:"changed_by_type"`
	ChangedByID   *string                 `json:"changed_by_id"`
	OldValue      map[string]any          `json:"old_value"`
	NewValue      map[string]any          `json:"new_value"`
	CreatedAt     time.Time               `json:"created_at"`
}
