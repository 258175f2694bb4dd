package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-sla/internal/api/dto"
	"github.com/spec-kit/helpdesk-sla/internal/domain"
	"github.com/spec-kit/helpdesk-sla/internal/service"
)

// NotificationsHandler exposes the caller's notification inbox.
type NotificationsHandler struct {
	service *service.NotificationService
}

// NewNotificationsHandler constructs handler.
func NewNotificationsHandler(notificationService *service.NotificationService) *NotificationsHandler {
	return &NotificationsHandler{service: notificationService}
}

// List GET /notifications?limit=.
func (h *NotificationsHandler) List(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	records, err := h.service.ListForUser(c.UserContext(), user, parseInt(c.Query("limit"), 50))
	if err != nil {
		return err
	}
	items := make([]dto.NotificationResponse, 0, len(records))
	for i := range records {
		items = append(items, notificationResponse(&records[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// MarkDelivered POST /notifications/:id/delivered.
func (h *NotificationsHandler) MarkDelivered(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	record, err := h.service.MarkDelivered(c.UserContext(), user, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": notificationResponse(record)})
}

func notificationResponse(n *domain.Notification) dto.NotificationResponse {
	return dto.NotificationResponse{
		ID:           n.ID,
		TicketID:     n.TicketID,
		Channel:      n.Channel,
		Type:         n.Type,
		Subject:      n.Subject,
		Message:      n.Message,
		Metadata:     n.Metadata,
		Status:       n.Status,
		ErrorMessage: n.ErrorMessage,
		SentAt:       n.SentAt,
		DeliveredAt:  n.DeliveredAt,
		CreatedAt:    n.CreatedAt,
	}
}
