package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-sla/internal/config"
	"github.com/spec-kit/helpdesk-sla/internal/domain"
	"github.com/spec-kit/helpdesk-sla/internal/events"
	"github.com/spec-kit/helpdesk-sla/internal/notify"
	"github.com/spec-kit/helpdesk-sla/internal/observability"
	"github.com/spec-kit/helpdesk-sla/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-sla/pkg/util/errorutil"
)

// NotificationRequest is the input to Send.
type NotificationRequest struct {
	RecipientID string
	TicketID    string
	// Channel defaults to the configured default channel when empty.
	Channel  domain.NotificationChannel
	Type     domain.NotificationType
	Subject  string
	Message  string
	Metadata map[string]any
	// Address overrides the channel destination, e.g. a WhatsApp number.
	Address string
}

// NotificationService records notifications, pushes them through channel
// senders and turns ticket events into notifications.
type NotificationService struct {
	repo           repository.NotificationRepository
	users          repository.UserRepository
	senders        *notify.Registry
	dispatcher     events.Dispatcher
	logger         *zap.Logger
	metrics        *observability.Metrics
	defaultChannel domain.NotificationChannel
	sendTimeout    time.Duration
	clock          Clock
}

// NotificationDependencies bundles collaborators.
type NotificationDependencies struct {
	NotificationRepo repository.NotificationRepository
	UserRepo         repository.UserRepository
	Senders          *notify.Registry
	Dispatcher       events.Dispatcher
	Logger           *zap.Logger
	Metrics          *observability.Metrics
	Config           config.NotificationConfig
	Clock            Clock
}

// NewNotificationService creates the service.
func NewNotificationService(deps NotificationDependencies) *NotificationService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	channel := domain.NotificationChannel(strings.TrimSpace(deps.Config.DefaultChannel))
	if channel == "" {
		channel = domain.ChannelInternal
	}
	return &NotificationService{
		repo:           deps.NotificationRepo,
		users:          deps.UserRepo,
		senders:        deps.Senders,
		dispatcher:     deps.Dispatcher,
		logger:         logger,
		metrics:        deps.Metrics,
		defaultChannel: channel,
		sendTimeout:    deps.Config.SendTimeout,
		clock:          deps.Clock,
	}
}

// Send records a pending notification and attempts delivery. Delivery
// failures are stored on the record as status failed; only a failure to
// create the record is returned.
func (n *NotificationService) Send(ctx context.Context, req NotificationRequest) (*domain.Notification, error) {
	if req.RecipientID == "" || req.TicketID == "" {
		return nil, apperrors.NewValidationError("recipient and ticket are required", nil)
	}
	if strings.TrimSpace(req.Message) == "" {
		return nil, apperrors.NewValidationError("message is required", nil)
	}
	channel := req.Channel
	if channel == "" {
		channel = n.defaultChannel
	}

	record := &domain.Notification{
		TicketID: req.TicketID,
		UserID:   req.RecipientID,
		Channel:  channel,
		Type:     req.Type,
		Subject:  req.Subject,
		Message:  req.Message,
		Metadata: req.Metadata,
		Status:   domain.NotificationPending,
	}
	if err := n.repo.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("create notification: %w", err)
	}

	deliveryErr := n.deliver(ctx, record, req.Address)
	at := n.clock.now()
	if deliveryErr != nil {
		msg := deliveryErr.Error()
		record.Status = domain.NotificationFailed
		record.ErrorMessage = &msg
		n.logger.Warn("notification delivery failed",
			zap.String("notification_id", record.ID),
			zap.String("channel", string(channel)),
			zap.Error(deliveryErr),
		)
	} else {
		record.Status = domain.NotificationSent
		record.SentAt = &at
	}
	if _, err := n.repo.UpdateStatus(ctx, record.ID, domain.NotificationPending, record.Status, record.ErrorMessage, at); err != nil {
		n.logger.Warn("update notification status",
			zap.String("notification_id", record.ID),
			zap.String("status", string(record.Status)),
			zap.Error(err),
		)
	}
	n.metrics.RecordNotification(string(channel), string(record.Type), string(record.Status))
	return record, nil
}

func (n *NotificationService) deliver(ctx context.Context, record *domain.Notification, address string) error {
	sender, err := n.senders.Get(record.Channel)
	if err != nil {
		return err
	}
	msg := notify.Message{
		NotificationID: record.ID,
		TicketID:       record.TicketID,
		RecipientID:    record.UserID,
		Type:           record.Type,
		Subject:        record.Subject,
		Body:           record.Message,
		Metadata:       record.Metadata,
		Address:        address,
	}
	if msg.Address == "" && record.Channel == domain.ChannelEmail && n.users != nil {
		user, err := n.users.GetByID(ctx, record.UserID)
		if err != nil {
			return fmt.Errorf("lookup recipient: %w", err)
		}
		msg.Address = user.Email
	}

	if n.sendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.sendTimeout)
		defer cancel()
	}
	return sender.Send(ctx, msg)
}

// NotifySLABreach tells the ticket owner that a deadline passed.
func (n *NotificationService) NotifySLABreach(ctx context.Context, ticket *domain.Ticket, kind domain.SLAKind, hoursSinceCreated float64) error {
	recipient := ticket.OwnerForAlerts()
	if recipient == nil {
		n.logger.Warn("sla breach without recipient", zap.String("ticket_id", ticket.ID))
		return nil
	}
	_, err := n.Send(ctx, NotificationRequest{
		RecipientID: *recipient,
		TicketID:    ticket.ID,
		Type:        domain.NotificationSLABreach,
		Subject:     fmt.Sprintf("SLA alert - ticket %s", ticket.Number()),
		Message:     fmt.Sprintf("Ticket %s has breached its %s SLA", ticket.Number(), kindLabel(kind)),
		Metadata: map[string]any{
			"ticket_number":       ticket.TicketNumber,
			"breach_type":         string(kind),
			"hours_since_created": math.Round(hoursSinceCreated*100) / 100,
		},
	})
	return err
}

// NotifySLAWarning tells the ticket owner that a deadline is close.
func (n *NotificationService) NotifySLAWarning(ctx context.Context, ticket *domain.Ticket, kind domain.SLAKind, hoursRemaining float64) error {
	recipient := ticket.OwnerForAlerts()
	if recipient == nil {
		return nil
	}
	_, err := n.Send(ctx, NotificationRequest{
		RecipientID: *recipient,
		TicketID:    ticket.ID,
		Type:        domain.NotificationSLAWarning,
		Subject:     fmt.Sprintf("SLA warning - ticket %s", ticket.Number()),
		Message: fmt.Sprintf("Ticket %s is close to breaching its %s SLA. %.1f hours left.",
			ticket.Number(), kindLabel(kind), math.Abs(hoursRemaining)),
		Metadata: map[string]any{
			"ticket_number":   ticket.TicketNumber,
			"warning_type":    string(kind),
			"hours_remaining": math.Round(hoursRemaining*100) / 100,
		},
	})
	return err
}

func kindLabel(kind domain.SLAKind) string {
	if kind == domain.SLAKindResponse {
		return "first response"
	}
	return "resolution"
}

// ListForUser returns the actor's newest notifications.
func (n *NotificationService) ListForUser(ctx context.Context, actor *domain.User, limit int) ([]domain.Notification, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	items, err := n.repo.ListByUser(ctx, actor.ID, limit)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return items, nil
}

// MarkDelivered confirms delivery of a sent notification.
func (n *NotificationService) MarkDelivered(ctx context.Context, actor *domain.User, id string) (*domain.Notification, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	record, err := n.repo.GetByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "notification", map[string]any{"notification_id": id})
	}
	if record.UserID != actor.ID && actor.Role != domain.RoleAdmin {
		return nil, apperrors.NewForbidden("notification belongs to another user")
	}
	if !domain.CanTransitionNotification(record.Status, domain.NotificationDelivered) {
		return nil, apperrors.NewInvalidTransition("notification", string(record.Status), string(domain.NotificationDelivered))
	}
	at := n.clock.now()
	ok, err := n.repo.UpdateStatus(ctx, id, record.Status, domain.NotificationDelivered, record.ErrorMessage, at)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if !ok {
		return nil, apperrors.NewConflict("notification changed concurrently", map[string]any{"notification_id": id})
	}
	record.Status = domain.NotificationDelivered
	record.DeliveredAt = &at
	return record, nil
}

// RegisterHandlers subscribes to ticket events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketCreated, n.handleTicketCreated)
	n.dispatcher.Subscribe(events.EventTicketStatusChanged, n.handleTicketStatusChanged)
	n.dispatcher.Subscribe(events.EventTicketAssigned, n.handleTicketAssigned)
	n.dispatcher.Subscribe(events.EventCommentAdded, n.handleCommentAdded)
}

func (n *NotificationService) handleTicketCreated(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketCreatedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", event.Payload)
	}
	t := payload.Ticket
	if t.CreatedBy == nil {
		return nil
	}
	_, err := n.Send(ctx, NotificationRequest{
		RecipientID: *t.CreatedBy,
		TicketID:    t.ID,
		Type:        domain.NotificationTicketCreated,
		Subject:     fmt.Sprintf("Ticket %s created", t.Number()),
		Message:     fmt.Sprintf("New ticket %s: %s", t.Number(), t.Title),
		Metadata:    map[string]any{"ticket_number": t.TicketNumber},
	})
	return err
}

func (n *NotificationService) handleTicketAssigned(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketAssignedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", event.Payload)
	}
	t := payload.Ticket
	if t.AssignedTo == nil || event.Actor.UserID != nil && *event.Actor.UserID == *t.AssignedTo {
		return nil
	}
	_, err := n.Send(ctx, NotificationRequest{
		RecipientID: *t.AssignedTo,
		TicketID:    t.ID,
		Type:        domain.NotificationTicketAssigned,
		Subject:     fmt.Sprintf("Ticket %s assigned", t.Number()),
		Message:     fmt.Sprintf("Ticket %s has been assigned to you: %s", t.Number(), t.Title),
		Metadata:    map[string]any{"ticket_number": t.TicketNumber, "automatic": payload.Automatic},
	})
	return err
}

func (n *NotificationService) handleTicketStatusChanged(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketStatusChangedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", event.Payload)
	}
	t := payload.Ticket
	req := NotificationRequest{
		TicketID: t.ID,
		Type:     domain.NotificationStatusChanged,
		Subject:  fmt.Sprintf("Status change - ticket %s", t.Number()),
		Message: fmt.Sprintf("Ticket %s changed status: %s -> %s",
			t.Number(), statusLabel(payload.OldStatus), statusLabel(payload.NewStatus)),
		Metadata: map[string]any{
			"ticket_number": t.TicketNumber,
			"old_status":    string(payload.OldStatus),
			"new_status":    string(payload.NewStatus),
		},
	}
	return n.sendToParticipants(ctx, t, "", req)
}

func (n *NotificationService) handleCommentAdded(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.CommentAddedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", event.Payload)
	}
	t, c := payload.Ticket, payload.Comment
	kind := "comment"
	if c.IsInternal {
		kind = "internal note"
	}
	req := NotificationRequest{
		TicketID: t.ID,
		Type:     domain.NotificationNewComment,
		Subject:  fmt.Sprintf("New %s - ticket %s", kind, t.Number()),
		Message:  fmt.Sprintf("A new %s was added to ticket %s", kind, t.Number()),
		Metadata: map[string]any{
			"ticket_number": t.TicketNumber,
			"is_internal":   c.IsInternal,
			"author_id":     c.UserID,
		},
	}
	// Internal notes only reach the assignee.
	if c.IsInternal {
		if t.AssignedTo == nil || *t.AssignedTo == c.UserID {
			return nil
		}
		req.RecipientID = *t.AssignedTo
		_, err := n.Send(ctx, req)
		return err
	}
	return n.sendToParticipants(ctx, t, c.UserID, req)
}

// sendToParticipants notifies the creator and the assignee once each,
// skipping exclude.
func (n *NotificationService) sendToParticipants(ctx context.Context, t domain.Ticket, exclude string, req NotificationRequest) error {
	seen := map[string]bool{exclude: true}
	var firstErr error
	for _, id := range []*string{t.CreatedBy, t.AssignedTo} {
		if id == nil || seen[*id] {
			continue
		}
		seen[*id] = true
		req.RecipientID = *id
		if _, err := n.Send(ctx, req); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func statusLabel(s domain.TicketStatus) string {
	switch s {
	case domain.TicketStatusNew:
		return "New"
	case domain.TicketStatusInProgress:
		return "In progress"
	case domain.TicketStatusResolved:
		return "Resolved"
	case domain.TicketStatusClosed:
		return "Closed"
	}
	return string(s)
}
