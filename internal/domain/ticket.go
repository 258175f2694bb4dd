package domain

import (
	"fmt"
	"time"
)

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusNew        TicketStatus = "new"
	TicketStatusInProgress TicketStatus = "in_progress"
	TicketStatusResolved   TicketStatus = "resolved"
	TicketStatusClosed     TicketStatus = "closed"
)

// OpenStatuses count toward an agent's workload.
var OpenStatuses = []TicketStatus{TicketStatusNew, TicketStatusInProgress}

// NonClosedStatuses are scanned for SLA alerts.
var NonClosedStatuses = []TicketStatus{TicketStatusNew, TicketStatusInProgress, TicketStatusResolved}

// Valid reports whether the status is known.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusNew, TicketStatusInProgress, TicketStatusResolved, TicketStatusClosed:
		return true
	}
	return false
}

// IsOpen reports whether the ticket still counts as workload.
func (s TicketStatus) IsOpen() bool {
	return s == TicketStatusNew || s == TicketStatusInProgress
}

var allowedTransitions = map[TicketStatus]TicketStatus{
	TicketStatusNew:        TicketStatusInProgress,
	TicketStatusInProgress: TicketStatusResolved,
	TicketStatusResolved:   TicketStatusClosed,
}

// CanTransition reports whether next is the single allowed step after current.
func CanTransition(current, next TicketStatus) bool {
	allowed, ok := allowedTransitions[current]
	return ok && allowed == next
}

// NextStatus returns the step following current, false when current is terminal.
func NextStatus(current TicketStatus) (TicketStatus, bool) {
	next, ok := allowedTransitions[current]
	return next, ok
}

// TicketPriority enumerates SLA urgency.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "low"
	TicketPriorityMedium TicketPriority = "medium"
	TicketPriorityHigh   TicketPriority = "high"
	TicketPriorityUrgent TicketPriority = "urgent"
)

// Valid reports whether the priority is known.
func (p TicketPriority) Valid() bool {
	switch p {
	case TicketPriorityLow, TicketPriorityMedium, TicketPriorityHigh, TicketPriorityUrgent:
		return true
	}
	return false
}

// ContactMedium describes how the requester can be reached.
type ContactMedium string

const (
	ContactWhatsApp ContactMedium = "whatsapp"
	ContactEmail    ContactMedium = "email"
	ContactPhone    ContactMedium = "phone"
)

// Ticket is the aggregate for support requests.
type Ticket struct {
	ID            string
	TicketNumber  int64
	Title         string
	Description   string
	Status        TicketStatus
	Priority      TicketPriority
	Category      string
	CreatedBy     *string
	AssignedTo    *string
	ContactMedium ContactMedium
	ContactValue  string

	CreatedAt       time.Time
	UpdatedAt       time.Time
	FirstResponseAt *time.Time
	ResolvedAt      *time.Time
	ClosedAt        *time.Time

	// SLA snapshot copied from the matching policy when the ticket was created.
	SLAResponseTimeHours   *float64
	SLAResolutionTimeHours *float64
	ResponseSLAMet         *bool
	ResolutionSLAMet       *bool

	SLABreachNotified        bool
	ResponseBreachNotified   bool
	ResolutionBreachNotified bool
}

// Number renders the human-readable ticket number.
func (t *Ticket) Number() string {
	return fmt.Sprintf("#%d", t.TicketNumber)
}

// IsCreatedBy reports whether userID opened the ticket.
func (t *Ticket) IsCreatedBy(userID string) bool {
	return t.CreatedBy != nil && *t.CreatedBy == userID
}

// IsAssignedTo reports whether userID owns the ticket.
func (t *Ticket) IsAssignedTo(userID string) bool {
	return t.AssignedTo != nil && *t.AssignedTo == userID
}

// OwnerForAlerts is the assignee, or the creator for unassigned tickets.
func (t *Ticket) OwnerForAlerts() *string {
	if t.AssignedTo != nil {
		return t.AssignedTo
	}
	return t.CreatedBy
}

// Candidate projects the fields assignment rules can match on.
func (t *Ticket) Candidate() TicketCandidate {
	return TicketCandidate{
		Category:      t.Category,
		Priority:      t.Priority,
		ContactMedium: t.ContactMedium,
		ContactValue:  t.ContactValue,
	}
}
