package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
	"github.com/spec-kit/helpdesk-sla/internal/events"
	"github.com/spec-kit/helpdesk-sla/internal/repository"
	"github.com/spec-kit/helpdesk-sla/internal/sla"
	apperrors "github.com/spec-kit/helpdesk-sla/pkg/util/errorutil"
)

// PolicyResolver finds the SLA policy for a new ticket.
type PolicyResolver interface {
	ResolvePolicy(ctx context.Context, category string, priority domain.TicketPriority) (*domain.SLAConfiguration, error)
}

// Assigner picks an assignee for a new ticket.
type Assigner interface {
	Assign(ctx context.Context, candidate domain.TicketCandidate, fallbackRole *domain.UserRole) (*string, error)
}

// TicketService coordinates ticket workflows.
type TicketService struct {
	tickets    repository.TicketRepository
	comments   repository.CommentRepository
	users      repository.UserRepository
	audit      auditLog
	history    repository.TicketHistoryRepository
	policies   PolicyResolver
	assigner   Assigner
	calculator sla.Calculator
	dispatcher events.Dispatcher
	logger     *zap.Logger
	clock      Clock
}

// TicketDependencies bundles repositories for ticket service.
type TicketDependencies struct {
	TicketRepo  repository.TicketRepository
	CommentRepo repository.CommentRepository
	UserRepo    repository.UserRepository
	HistoryRepo repository.TicketHistoryRepository
	Policies    PolicyResolver
	Assigner    Assigner
	Calculator  sla.Calculator
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
	Clock       Clock
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TicketService{
		tickets:    deps.TicketRepo,
		comments:   deps.CommentRepo,
		users:      deps.UserRepo,
		audit:      auditLog{repo: deps.HistoryRepo, logger: logger},
		history:    deps.HistoryRepo,
		policies:   deps.Policies,
		assigner:   deps.Assigner,
		calculator: deps.Calculator,
		dispatcher: deps.Dispatcher,
		logger:     logger,
		clock:      deps.Clock,
	}
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Title         string
	Description   string
	Priority      domain.TicketPriority
	Category      string
	ContactMedium domain.ContactMedium
	ContactValue  string
}

// TicketWithSLA pairs a ticket with its derived SLA view.
type TicketWithSLA struct {
	Ticket domain.Ticket
	SLA    sla.View
}

// TicketDetail is a ticket with its SLA view and visible comments.
type TicketDetail struct {
	TicketWithSLA
	Comments []domain.TicketComment
}

// CreateTicket validates input, snapshots the SLA policy, auto-assigns and
// stores the ticket in a single insert.
func (s *TicketService) CreateTicket(ctx context.Context, actor *domain.User, input TicketCreateInput) (*domain.Ticket, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	ticket, err := buildTicket(actor, input)
	if err != nil {
		return nil, err
	}

	policy, err := s.policies.ResolvePolicy(ctx, ticket.Category, ticket.Priority)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	var fallbackRole *domain.UserRole
	if policy != nil {
		response, resolution := policy.ResponseTimeHours, policy.ResolutionTimeHours
		ticket.SLAResponseTimeHours = &response
		ticket.SLAResolutionTimeHours = &resolution
		fallbackRole = policy.AutoAssignToRole
	}

	assignee, err := s.assigner.Assign(ctx, ticket.Candidate(), fallbackRole)
	if err != nil {
		s.logger.Warn("auto-assignment failed; ticket left unassigned", zap.Error(err))
		assignee = nil
	}
	ticket.AssignedTo = assignee

	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}

	now := s.clock.now()
	s.publish(ctx, events.New(events.EventTicketCreated, ticket.ID, events.UserActor(actor.ID), now,
		events.TicketCreatedPayload{Ticket: *ticket}))
	if ticket.AssignedTo != nil {
		s.audit.record(ctx, ticket.ID, nil, domain.ChangeTypeAssignee,
			map[string]any{"assigned_to": nil},
			map[string]any{"assigned_to": *ticket.AssignedTo, "reason": "auto"})
		s.publish(ctx, events.New(events.EventTicketAssigned, ticket.ID, events.SystemActor, now,
			events.TicketAssignedPayload{Ticket: *ticket, Automatic: true}))
	}
	s.logger.Info("ticket created",
		zap.String("ticket_id", ticket.ID),
		zap.Int64("ticket_number", ticket.TicketNumber),
		zap.Bool("sla_exempt", policy == nil),
		zap.Bool("assigned", ticket.AssignedTo != nil),
	)
	return ticket, nil
}

func buildTicket(actor *domain.User, input TicketCreateInput) (*domain.Ticket, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, apperrors.NewValidationError("title is required", map[string]any{"field": "title"})
	}
	priority := input.Priority
	if priority == "" {
		priority = domain.TicketPriorityMedium
	}
	if !priority.Valid() {
		return nil, apperrors.NewValidationError("invalid priority", map[string]any{"priority": priority})
	}
	medium := input.ContactMedium
	if medium == "" {
		medium = domain.ContactEmail
	}
	switch medium {
	case domain.ContactEmail, domain.ContactPhone, domain.ContactWhatsApp:
	default:
		return nil, apperrors.NewValidationError("invalid contact medium", map[string]any{"contact_medium": medium})
	}
	contact := strings.TrimSpace(input.ContactValue)
	if contact == "" && medium == domain.ContactEmail {
		contact = actor.Email
	}
	creator := actor.ID
	return &domain.Ticket{
		Title:         title,
		Description:   strings.TrimSpace(input.Description),
		Status:        domain.TicketStatusNew,
		Priority:      priority,
		Category:      strings.TrimSpace(input.Category),
		CreatedBy:     &creator,
		ContactMedium: medium,
		ContactValue:  contact,
	}, nil
}

// GetTicket returns the ticket with its SLA view and the comments the actor may see.
func (s *TicketService) GetTicket(ctx context.Context, actor *domain.User, ticketID string) (*TicketDetail, error) {
	ticket, err := s.loadVisible(ctx, actor, ticketID)
	if err != nil {
		return nil, err
	}
	comments, err := s.comments.ListByTicket(ctx, ticket.ID, actor.IsStaff())
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return &TicketDetail{
		TicketWithSLA: TicketWithSLA{Ticket: *ticket, SLA: s.calculator.Evaluate(ticket, s.clock.now())},
		Comments:      comments,
	}, nil
}

// TicketListFilter narrows ListTickets.
type TicketListFilter struct {
	Statuses   []domain.TicketStatus
	Priorities []domain.TicketPriority
	Category   *string
	AssignedTo *string
	Limit      int
}

// ListTickets returns tickets with SLA views. Admins see everything, everyone
// else sees tickets they created or are assigned.
func (s *TicketService) ListTickets(ctx context.Context, actor *domain.User, filter TicketListFilter) ([]TicketWithSLA, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	repoFilter := repository.TicketFilter{
		Statuses:   filter.Statuses,
		Priorities: filter.Priorities,
		Category:   filter.Category,
		AssignedTo: filter.AssignedTo,
		Limit:      filter.Limit,
	}
	if repoFilter.Limit <= 0 {
		repoFilter.Limit = 100
	}
	if actor.Role != domain.RoleAdmin {
		repoFilter.VisibleTo = &actor.ID
	}
	tickets, err := s.tickets.ListWithFilter(ctx, repoFilter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	now := s.clock.now()
	out := make([]TicketWithSLA, len(tickets))
	for i := range tickets {
		out[i] = TicketWithSLA{Ticket: tickets[i], SLA: s.calculator.Evaluate(&tickets[i], now)}
	}
	return out, nil
}

// ListHistory returns the audit trail of a ticket.
func (s *TicketService) ListHistory(ctx context.Context, actor *domain.User, ticketID string) ([]domain.TicketHistory, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	if _, err := s.loadVisible(ctx, actor, ticketID); err != nil {
		return nil, err
	}
	items, err := s.history.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return items, nil
}

// AddComment stores a comment. The first comment from someone other than the
// creator records the first response.
func (s *TicketService) AddComment(ctx context.Context, actor *domain.User, ticketID, content string, isInternal bool) (*domain.TicketComment, error) {
	ticket, err := s.loadVisible(ctx, actor, ticketID)
	if err != nil {
		return nil, err
	}
	return s.addComment(ctx, actor, ticket, content, isInternal)
}

func (s *TicketService) addComment(ctx context.Context, actor *domain.User, ticket *domain.Ticket, content string, isInternal bool) (*domain.TicketComment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperrors.NewValidationError("comment content is required", map[string]any{"field": "content"})
	}
	if isInternal && !actor.IsStaff() {
		return nil, apperrors.NewForbidden("only staff can add internal notes")
	}
	if ticket.Status == domain.TicketStatusClosed {
		return nil, apperrors.NewConflict("ticket is closed", map[string]any{"ticket_id": ticket.ID})
	}

	comment := &domain.TicketComment{
		TicketID:   ticket.ID,
		UserID:     actor.ID,
		Content:    content,
		IsInternal: isInternal,
	}
	if err := s.comments.Create(ctx, comment); err != nil {
		return nil, apperrors.MapError(err)
	}

	if !ticket.IsCreatedBy(actor.ID) && ticket.FirstResponseAt == nil {
		at := comment.CreatedAt
		if at.IsZero() {
			at = s.clock.now()
		}
		if _, err := s.RecordFirstResponse(ctx, ticket.ID, actorID(actor), at); err != nil {
			// Nothing was written, so the next non-creator comment records it.
			s.logger.Warn("record first response", zap.String("ticket_id", ticket.ID), zap.Error(err))
		}
	}

	s.publish(ctx, events.New(events.EventCommentAdded, ticket.ID, events.UserActor(actor.ID), s.clock.now(),
		events.CommentAddedPayload{Ticket: *ticket, Comment: *comment}))
	return comment, nil
}

// RecordFirstResponse sets first_response_at once. Later calls leave the
// ticket unchanged. The first call also freezes the response SLA result and
// moves a new ticket to in_progress, in the same write.
func (s *TicketService) RecordFirstResponse(ctx context.Context, ticketID string, responderID *string, at time.Time) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, lookupError(err, "ticket", map[string]any{"ticket_id": ticketID})
	}
	if ticket.FirstResponseAt != nil {
		return ticket, nil
	}

	met := sla.ResponseMet(ticket, at)
	set, err := s.tickets.RecordFirstResponse(ctx, ticketID, at, met)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if !set {
		// Another responder got there first.
		if ticket, err = s.tickets.GetByID(ctx, ticketID); err != nil {
			return nil, lookupError(err, "ticket", map[string]any{"ticket_id": ticketID})
		}
		return ticket, nil
	}

	oldStatus := ticket.Status
	markFirstResponse(ticket, at, met)
	s.auditFirstResponse(ctx, ticket, responderID)
	if oldStatus != ticket.Status {
		s.recordStatusChange(ctx, ticket, responderID, oldStatus)
	}
	return ticket, nil
}

func markFirstResponse(ticket *domain.Ticket, at time.Time, met *bool) {
	ticket.FirstResponseAt = &at
	ticket.ResponseSLAMet = met
	if ticket.Status == domain.TicketStatusNew {
		ticket.Status = domain.TicketStatusInProgress
	}
}

func (s *TicketService) auditFirstResponse(ctx context.Context, ticket *domain.Ticket, responderID *string) {
	s.audit.record(ctx, ticket.ID, responderID, domain.ChangeTypeFirstResponse,
		nil, map[string]any{"first_response_at": ticket.FirstResponseAt})
	if ticket.ResponseSLAMet != nil {
		s.audit.record(ctx, ticket.ID, nil, domain.ChangeTypeResponseSLA,
			nil, map[string]any{"response_sla_met": *ticket.ResponseSLAMet})
	}
}

// UpdateStatus applies one explicit lifecycle step. new -> in_progress only
// happens through a first response.
func (s *TicketService) UpdateStatus(ctx context.Context, actor *domain.User, ticketID string, next domain.TicketStatus) (*domain.Ticket, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	if !next.Valid() {
		return nil, apperrors.NewValidationError("invalid status", map[string]any{"status": next})
	}
	ticket, err := s.loadVisible(ctx, actor, ticketID)
	if err != nil {
		return nil, err
	}
	if next == domain.TicketStatusInProgress || !domain.CanTransition(ticket.Status, next) {
		return nil, apperrors.NewInvalidTransition("ticket", string(ticket.Status), string(next))
	}

	oldStatus := ticket.Status
	applyStep(ticket, next, s.clock.now())
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}
	if next == domain.TicketStatusResolved {
		s.auditResolution(ctx, ticket)
	}
	s.recordStatusChange(ctx, ticket, actorID(actor), oldStatus)
	return ticket, nil
}

// CloseTicket adds the optional closing comment and walks the ticket forward
// to closed. Every check runs first, and the comment, first response and
// status change are written together or not at all.
func (s *TicketService) CloseTicket(ctx context.Context, actor *domain.User, ticketID, closingComment string, isInternal bool) (*domain.Ticket, error) {
	ticket, err := s.loadVisible(ctx, actor, ticketID)
	if err != nil {
		return nil, err
	}
	if !actor.IsStaff() && !ticket.IsCreatedBy(actor.ID) {
		return nil, apperrors.NewForbidden("only staff or the creator can close a ticket")
	}
	closingComment = strings.TrimSpace(closingComment)
	if isInternal && !actor.IsStaff() {
		return nil, apperrors.NewForbidden("only staff can add internal notes")
	}

	// A new ticket can only leave new through a first response, so a
	// non-creator closing comment is required.
	respondsFirst := closingComment != "" && !ticket.IsCreatedBy(actor.ID) && ticket.FirstResponseAt == nil
	switch {
	case ticket.Status == domain.TicketStatusClosed:
		return nil, apperrors.NewInvalidTransition("ticket", string(ticket.Status), string(domain.TicketStatusClosed))
	case ticket.Status == domain.TicketStatusNew && !respondsFirst:
		return nil, apperrors.NewInvalidTransition("ticket", string(ticket.Status), string(domain.TicketStatusClosed))
	}

	oldStatus := ticket.Status
	now := s.clock.now()
	var comment *domain.TicketComment
	if closingComment != "" {
		comment = &domain.TicketComment{
			TicketID:   ticket.ID,
			UserID:     actor.ID,
			Content:    closingComment,
			IsInternal: isInternal,
			CreatedAt:  now,
		}
	}
	if respondsFirst {
		markFirstResponse(ticket, now, sla.ResponseMet(ticket, now))
	}
	resolved := false
	for ticket.Status != domain.TicketStatusClosed {
		next, ok := domain.NextStatus(ticket.Status)
		if !ok {
			break
		}
		resolved = resolved || next == domain.TicketStatusResolved
		applyStep(ticket, next, now)
	}

	if err := s.tickets.CloseWithComment(ctx, ticket, oldStatus, comment); err != nil {
		if errors.Is(err, repository.ErrTicketChanged) {
			return nil, apperrors.NewConflict("ticket changed while closing; retry", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}

	if respondsFirst {
		s.auditFirstResponse(ctx, ticket, actorID(actor))
	}
	if resolved {
		s.auditResolution(ctx, ticket)
	}
	if comment != nil {
		s.publish(ctx, events.New(events.EventCommentAdded, ticket.ID, events.UserActor(actor.ID), now,
			events.CommentAddedPayload{Ticket: *ticket, Comment: *comment}))
	}
	s.recordStatusChange(ctx, ticket, actorID(actor), oldStatus)
	return ticket, nil
}

// applyStep moves ticket to next in memory and stamps the milestone columns.
func applyStep(ticket *domain.Ticket, next domain.TicketStatus, at time.Time) {
	switch next {
	case domain.TicketStatusResolved:
		ticket.ResolvedAt = &at
		ticket.ResolutionSLAMet = sla.ResolutionMet(ticket, at)
	case domain.TicketStatusClosed:
		ticket.ClosedAt = &at
	}
	ticket.Status = next
}

func (s *TicketService) auditResolution(ctx context.Context, ticket *domain.Ticket) {
	if ticket.ResolutionSLAMet != nil {
		s.audit.record(ctx, ticket.ID, nil, domain.ChangeTypeResolutionSLA,
			nil, map[string]any{"resolution_sla_met": *ticket.ResolutionSLAMet})
	}
}

func (s *TicketService) recordStatusChange(ctx context.Context, ticket *domain.Ticket, actor *string, oldStatus domain.TicketStatus) {
	s.audit.record(ctx, ticket.ID, actor, domain.ChangeTypeStatus,
		map[string]any{"status": oldStatus},
		map[string]any{"status": ticket.Status})
	evActor := events.SystemActor
	if actor != nil {
		evActor = events.UserActor(*actor)
	}
	s.publish(ctx, events.New(events.EventTicketStatusChanged, ticket.ID, evActor, s.clock.now(),
		events.TicketStatusChangedPayload{Ticket: *ticket, OldStatus: oldStatus, NewStatus: ticket.Status}))
}

// AssignTicket sets the assignee manually.
func (s *TicketService) AssignTicket(ctx context.Context, actor *domain.User, ticketID, assigneeID string) (*domain.Ticket, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	assignee, err := s.users.GetByID(ctx, assigneeID)
	if err != nil {
		return nil, lookupError(err, "user", map[string]any{"user_id": assigneeID})
	}
	if !assignee.IsActive || !assignee.IsStaff() {
		return nil, apperrors.NewConflict("assignee must be an active agent or admin", map[string]any{"user_id": assigneeID})
	}
	ticket, err := s.loadVisible(ctx, actor, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Status == domain.TicketStatusClosed {
		return nil, apperrors.NewConflict("ticket is closed", map[string]any{"ticket_id": ticketID})
	}
	if ticket.IsAssignedTo(assignee.ID) {
		return ticket, nil
	}

	previous := ticket.AssignedTo
	ticket.AssignedTo = &assignee.ID
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.audit.record(ctx, ticket.ID, actorID(actor), domain.ChangeTypeAssignee,
		map[string]any{"assigned_to": previous},
		map[string]any{"assigned_to": assignee.ID})
	s.publish(ctx, events.New(events.EventTicketAssigned, ticket.ID, events.UserActor(actor.ID), s.clock.now(),
		events.TicketAssignedPayload{Ticket: *ticket, PreviousAssignee: previous}))
	return ticket, nil
}

// loadVisible fetches a ticket the actor may see: admins see all tickets,
// others only those they created or are assigned.
func (s *TicketService) loadVisible(ctx context.Context, actor *domain.User, ticketID string) (*domain.Ticket, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, lookupError(err, "ticket", map[string]any{"ticket_id": ticketID})
	}
	if actor.Role == domain.RoleAdmin || ticket.IsCreatedBy(actor.ID) || ticket.IsAssignedTo(actor.ID) {
		return ticket, nil
	}
	return nil, apperrors.NewForbidden("access denied")
}

func (s *TicketService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	s.dispatcher.Publish(ctx, event)
}
