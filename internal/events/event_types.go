package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated       EventType = "ticket_created"
	EventTicketStatusChanged EventType = "ticket_status_changed"
	EventTicketAssigned      EventType = "ticket_assigned"
	EventCommentAdded        EventType = "comment_added"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	Type   domain.ActorType `json:"type"`
	UserID *string          `json:"user_id,omitempty"`
}

// SystemActor is used for changes made by workers.
var SystemActor = Actor{Type: domain.ActorSystem}

// UserActor attributes an event to userID.
func UserActor(userID string) Actor {
	return Actor{Type: domain.ActorUser, UserID: &userID}
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// New stamps an event with a fresh id.
func New(eventType EventType, ticketID string, actor Actor, at time.Time, payload interface{}) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		TicketID:  ticketID,
		Actor:     actor,
		Timestamp: at,
		Payload:   payload,
	}
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Ticket domain.Ticket `json:"ticket"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	Ticket    domain.Ticket       `json:"ticket"`
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
}

// TicketAssignedPayload payload.
type TicketAssignedPayload struct {
	Ticket           domain.Ticket `json:"ticket"`
	PreviousAssignee *string       `json:"previous_assignee,omitempty"`
	// Automatic is true when rules or the balancer picked the assignee.
	Automatic bool `json:"automatic"`
}

// CommentAddedPayload payload.
type CommentAddedPayload struct {
	Ticket  domain.Ticket        `json:"ticket"`
	Comment domain.TicketComment `json:"comment"`
}
