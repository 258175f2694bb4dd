package domain

import "time"

// TicketChangeType captures what changed in a history entry.
type TicketChangeType string

const (
	ChangeTypeStatus            TicketChangeType = "STATUS_CHANGE"
	ChangeTypeAssignee          TicketChangeType = "ASSIGNEE_CHANGE"
	ChangeTypeFirstResponse     TicketChangeType = "FIRST_RESPONSE"
	ChangeTypeResponseSLA       TicketChangeType = "RESPONSE_SLA_EVALUATED"
	ChangeTypeResolutionSLA     TicketChangeType = "RESOLUTION_SLA_EVALUATED"
	ChangeTypeSLABreachNotified TicketChangeType = "SLA_BREACH_NOTIFIED"
)

// ActorType indicates who caused a change.
type ActorType string

const (
	ActorUser   ActorType = "USER"
	ActorSystem ActorType = "SYSTEM"
)

// TicketHistory is an immutable audit trail entry.
type TicketHistory struct {
	ID            string
	TicketID      string
	ChangedByType ActorType
	ChangedByID   *string
	ChangeType    TicketChangeType
	OldValue      map[string]any
	NewValue      map[string]any
	CreatedAt     time.Time
}
