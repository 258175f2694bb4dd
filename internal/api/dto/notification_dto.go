package dto

import (
	"time"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
)

// NotificationResponse renders a notification record.
type NotificationResponse struct {
	ID           string                     `json:"id"`
	TicketID     string                     `json:"ticket_id"`
	Channel      domain.NotificationChannel `json:"channel"`
	Type         domain.NotificationType    `json:"type"`
	Subject      string                     `json:"subject"`
	Message      string                     `json:"message"`
	Metadata     map[string]any             `json:"metadata"`
	Status       domain.NotificationStatus  `json:"status"`
	ErrorMessage *string                    `json:"error_message,omitempty"`
	SentAt       *time.Time                 `json:"sent_at"`
	DeliveredAt  *time.Time                 `json:"delivered_at"`
	CreatedAt    time.Time                  `json:"created_at"`
}
