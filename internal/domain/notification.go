package domain

import "time"

// NotificationChannel is the delivery path of a notification.
type NotificationChannel string

const (
	ChannelInternal NotificationChannel = "internal"
	ChannelEmail    NotificationChannel = "email"
	ChannelWhatsApp NotificationChannel = "whatsapp"
	ChannelSlack    NotificationChannel = "slack"
	ChannelWebhook  NotificationChannel = "webhook"
)

// NotificationType identifies the triggering event.
type NotificationType string

const (
	NotificationTicketCreated  NotificationType = "ticket_created"
	NotificationTicketAssigned NotificationType = "ticket_assigned"
	NotificationStatusChanged  NotificationType = "status_changed"
	NotificationNewComment     NotificationType = "new_comment"
	NotificationSLABreach      NotificationType = "sla_breach"
	NotificationSLAWarning     NotificationType = "sla_warning"
)

// NotificationStatus tracks delivery.
type NotificationStatus string

const (
	NotificationPending   NotificationStatus = "pending"
	NotificationSent      NotificationStatus = "sent"
	NotificationFailed    NotificationStatus = "failed"
	NotificationDelivered NotificationStatus = "delivered"
)

var notificationTransitions = map[NotificationStatus][]NotificationStatus{
	NotificationPending: {NotificationSent, NotificationFailed},
	NotificationSent:    {NotificationDelivered},
}

// CanTransitionNotification reports whether a notification may move from current to next.
func CanTransitionNotification(current, next NotificationStatus) bool {
	for _, candidate := range notificationTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}

// Notification records the intent to tell a user about a ticket event.
type Notification struct {
	ID           string
	TicketID     string
	UserID       string
	Channel      NotificationChannel
	Type         NotificationType
	Subject      string
	Message      string
	Metadata     map[string]any
	Status       NotificationStatus
	ErrorMessage *string
	SentAt       *time.Time
	DeliveredAt  *time.Time
	CreatedAt    time.Time
}
