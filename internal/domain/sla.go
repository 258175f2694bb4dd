package domain

import (
	"strings"
	"time"
)

// SLAStatus is the discrete SLA state of a ticket.
type SLAStatus string

const (
	SLAWithin             SLAStatus = "within_sla"
	SLAResponseWarning    SLAStatus = "response_warning"
	SLAResponseBreached   SLAStatus = "response_breached"
	SLAResolutionWarning  SLAStatus = "resolution_warning"
	SLAResolutionBreached SLAStatus = "resolution_breached"
)

// SLAKind names the milestone an SLA status refers to.
type SLAKind string

const (
	SLAKindResponse   SLAKind = "response"
	SLAKindResolution SLAKind = "resolution"
)

// IsBreach reports whether the status is one of the breached states.
func (s SLAStatus) IsBreach() bool {
	return s == SLAResponseBreached || s == SLAResolutionBreached
}

// IsWarning reports whether the status is one of the warning states.
func (s SLAStatus) IsWarning() bool {
	return s == SLAResponseWarning || s == SLAResolutionWarning
}

// Kind returns the milestone the status is about. Empty for within_sla.
func (s SLAStatus) Kind() SLAKind {
	switch s {
	case SLAResponseWarning, SLAResponseBreached:
		return SLAKindResponse
	case SLAResolutionWarning, SLAResolutionBreached:
		return SLAKindResolution
	}
	return ""
}

// SLAConfiguration holds the time budgets for a (category, priority) pair.
// An empty Category matches every category.
type SLAConfiguration struct {
	ID                  string
	Name                string
	Category            string
	Priority            TicketPriority
	ResponseTimeHours   float64
	ResolutionTimeHours float64
	AutoAssignToRole    *UserRole
	IsActive            bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Matches reports whether the configuration applies to a ticket with category and priority.
func (c *SLAConfiguration) Matches(category string, priority TicketPriority) bool {
	if !c.IsActive || c.Priority != priority {
		return false
	}
	return c.Category == "" || strings.EqualFold(c.Category, category)
}

// Specificity ranks matching configurations; exact category beats wildcard.
func (c *SLAConfiguration) Specificity() int {
	if c.Category == "" {
		return 0
	}
	return 1
}

// TicketAlert is raised for a ticket past the warning or breach threshold.
// HoursRemaining is signed: negative means overdue.
type TicketAlert struct {
	TicketID       string    `json:"ticket_id"`
	TicketNumber   int64     `json:"ticket_number"`
	AlertType      SLAStatus `json:"alert_type"`
	HoursRemaining float64   `json:"hours_remaining"`
}

// SLAMetrics aggregates compliance over a ticket set.
type SLAMetrics struct {
	TotalTickets           int     `json:"total_tickets"`
	ResponseSLAMet         int     `json:"response_sla_met"`
	ResponseSLABreached    int     `json:"response_sla_breached"`
	ResolutionSLAMet       int     `json:"resolution_sla_met"`
	ResolutionSLABreached  int     `json:"resolution_sla_breached"`
	AvgResponseTimeHours   float64 `json:"avg_response_time_hours"`
	AvgResolutionTimeHours float64 `json:"avg_resolution_time_hours"`
	TicketsAtRisk          int     `json:"tickets_at_risk"`
}
