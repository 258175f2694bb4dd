package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
	"github.com/spec-kit/helpdesk-sla/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-sla/pkg/util/errorutil"
)

func supportRule(h *harness) {
	agent := domain.RoleAgent
	h.rules.rules = append(h.rules.rules, domain.AssignmentRule{
		ID:       "rule-support",
		Name:     "support high",
		Priority: 10,
		Conditions: domain.Conditions{
			{Field: domain.FieldCategory, Op: domain.OpEquals, Values: []string{"Support"}},
			{Field: domain.FieldPriority, Op: domain.OpIn, Values: []string{"urgent", "high"}},
		},
		AssignToRole: &agent,
		IsActive:     true,
		CreatedAt:    baseTime,
	})
}

func TestCreateTicketAssignsAndNotifiesBreachOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	customer := h.users.add("customer", domain.RoleUser, baseTime)
	h.users.add("agent-a", domain.RoleAgent, baseTime.Add(-48*time.Hour))
	h.users.add("agent-b", domain.RoleAgent, baseTime.Add(-24*time.Hour))
	h.openTickets("agent-a", 2, domain.TicketPriorityMedium)
	h.policy("Support", domain.TicketPriorityHigh, 8, 24)
	supportRule(h)

	ticket := h.createTicket(t, customer, TicketCreateInput{
		Title:    "Printer on fire",
		Category: "Support",
		Priority: domain.TicketPriorityHigh,
	})
	require.NotNil(t, ticket.AssignedTo)
	assert.Equal(t, "agent-b", *ticket.AssignedTo)
	require.NotNil(t, ticket.SLAResponseTimeHours)
	assert.Equal(t, 8.0, *ticket.SLAResponseTimeHours)
	assert.Equal(t, 24.0, *ticket.SLAResolutionTimeHours)
	assert.Equal(t, domain.TicketStatusNew, ticket.Status)

	h.clock.Advance(9 * time.Hour)
	for i := 0; i < 3; i++ {
		alerts, err := h.alerts.Scan(ctx)
		require.NoError(t, err)
		require.Len(t, alerts, 1)
		assert.Equal(t, ticket.ID, alerts[0].TicketID)
		assert.Equal(t, domain.SLAResponseBreached, alerts[0].AlertType)
		assert.InDelta(t, -1.0, alerts[0].HoursRemaining, 1e-9)
	}

	breaches := h.notifications.byType(domain.NotificationSLABreach)
	require.Len(t, breaches, 1)
	assert.Equal(t, "agent-b", breaches[0].UserID)
	assert.Equal(t, domain.NotificationSent, breaches[0].Status)
	assert.Equal(t, "response", breaches[0].Metadata["breach_type"])
	assert.Equal(t, 1, h.history.count(ticket.ID, domain.ChangeTypeSLABreachNotified))

	stored := h.tickets.get(ticket.ID)
	assert.True(t, stored.ResponseBreachNotified)
	assert.True(t, stored.SLABreachNotified)
	assert.False(t, stored.ResolutionBreachNotified)
}

func TestCreateTicketNotifiesParticipants(t *testing.T) {
	h := newHarness(t)
	customer := h.users.add("customer", domain.RoleUser, baseTime)
	h.users.add("agent-a", domain.RoleAgent, baseTime)

	ticket := h.createTicket(t, customer, TicketCreateInput{Title: "Hello"})
	assert.Equal(t, domain.TicketPriorityMedium, ticket.Priority)
	assert.Equal(t, domain.ContactEmail, ticket.ContactMedium)
	assert.Equal(t, customer.Email, ticket.ContactValue)

	created := h.notifications.byType(domain.NotificationTicketCreated)
	require.Len(t, created, 1)
	assert.Equal(t, "customer", created[0].UserID)

	assigned := h.notifications.byType(domain.NotificationTicketAssigned)
	require.Len(t, assigned, 1)
	assert.Equal(t, "agent-a", assigned[0].UserID)
	assert.Equal(t, 1, h.history.count(ticket.ID, domain.ChangeTypeAssignee))
}

func TestCreateTicketWithoutPolicyIsExempt(t *testing.T) {
	h := newHarness(t)
	customer := h.users.add("customer", domain.RoleUser, baseTime)
	h.policy("Support", domain.TicketPriorityHigh, 8, 24)

	ticket := h.createTicket(t, customer, TicketCreateInput{Title: "Quote", Category: "Sales", Priority: domain.TicketPriorityLow})
	assert.Nil(t, ticket.SLAResponseTimeHours)
	assert.Nil(t, ticket.SLAResolutionTimeHours)
	assert.Nil(t, ticket.AssignedTo)

	h.clock.Advance(1000 * time.Hour)
	alerts, err := h.alerts.Scan(context.Background())
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestCreateTicketPrefersExactCategoryPolicy(t *testing.T) {
	h := newHarness(t)
	customer := h.users.add("customer", domain.RoleUser, baseTime)
	h.policy("", domain.TicketPriorityHigh, 4, 12)
	h.policy("support", domain.TicketPriorityHigh, 8, 24)

	ticket := h.createTicket(t, customer, TicketCreateInput{Title: "x", Category: "Support", Priority: domain.TicketPriorityHigh})
	require.NotNil(t, ticket.SLAResponseTimeHours)
	assert.Equal(t, 8.0, *ticket.SLAResponseTimeHours)

	other := h.createTicket(t, customer, TicketCreateInput{Title: "y", Category: "Billing", Priority: domain.TicketPriorityHigh})
	require.NotNil(t, other.SLAResponseTimeHours)
	assert.Equal(t, 4.0, *other.SLAResponseTimeHours)
}

func TestCreateTicketValidation(t *testing.T) {
	h := newHarness(t)
	customer := h.users.add("customer", domain.RoleUser, baseTime)
	ctx := context.Background()

	_, err := h.ticketService.CreateTicket(ctx, &customer, TicketCreateInput{Title: "  "})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	_, err = h.ticketService.CreateTicket(ctx, &customer, TicketCreateInput{Title: "x", Priority: "critical"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	_, err = h.ticketService.CreateTicket(ctx, nil, TicketCreateInput{Title: "x"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUnauthorized))
}

func TestAddCommentRecordsFirstResponseOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	customer := h.users.add("customer", domain.RoleUser, baseTime)
	agent := h.users.add("agent-a", domain.RoleAgent, baseTime)
	h.policy("", domain.TicketPriorityMedium, 4, 24)
	ticket := h.createTicket(t, customer, TicketCreateInput{Title: "Help"})

	h.clock.Advance(time.Hour)
	_, err := h.ticketService.AddComment(ctx, &customer, ticket.ID, "any news?", false)
	require.NoError(t, err)
	assert.Nil(t, h.tickets.get(ticket.ID).FirstResponseAt)

	h.clock.Advance(time.Hour)
	respondedAt := h.clock.Now()
	_, err = h.ticketService.AddComment(ctx, &agent, ticket.ID, "on it", false)
	require.NoError(t, err)

	h.clock.Advance(time.Hour)
	_, err = h.ticketService.AddComment(ctx, &agent, ticket.ID, "still on it", false)
	require.NoError(t, err)

	stored := h.tickets.get(ticket.ID)
	require.NotNil(t, stored.FirstResponseAt)
	assert.True(t, respondedAt.Equal(*stored.FirstResponseAt))
	assert.Equal(t, domain.TicketStatusInProgress, stored.Status)
	require.NotNil(t, stored.ResponseSLAMet)
	assert.True(t, *stored.ResponseSLAMet)
	assert.Equal(t, 1, h.history.count(ticket.ID, domain.ChangeTypeFirstResponse))
	assert.Equal(t, 1, h.history.count(ticket.ID, domain.ChangeTypeStatus))
}

func TestRecordFirstResponseIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ticket := h.slaTicket("customer", "agent-a", 2, 24, baseTime)

	late := baseTime.Add(3 * time.Hour)
	first, err := h.ticketService.RecordFirstResponse(ctx, ticket.ID, strPtr("agent-a"), late)
	require.NoError(t, err)
	require.NotNil(t, first.ResponseSLAMet)
	assert.False(t, *first.ResponseSLAMet)

	second, err := h.ticketService.RecordFirstResponse(ctx, ticket.ID, strPtr("agent-a"), late.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, late.Equal(*second.FirstResponseAt))
	assert.False(t, *second.ResponseSLAMet)
	assert.Equal(t, 1, h.history.count(ticket.ID, domain.ChangeTypeFirstResponse))
	assert.Equal(t, 1, h.history.count(ticket.ID, domain.ChangeTypeResponseSLA))
}

func TestFirstResponseWriteFailures(t *testing.T) {
	ctx := context.Background()
	errTransient := errors.New("transient db error")

	t.Run("failed write is recorded by the next agent comment", func(t *testing.T) {
		h := newHarness(t)
		customer := h.users.add("customer", domain.RoleUser, baseTime)
		agent := h.users.add("agent-a", domain.RoleAgent, baseTime)
		h.policy("", domain.TicketPriorityMedium, 4, 24)
		ticket := h.createTicket(t, customer, TicketCreateInput{Title: "Help"})

		h.tickets.failNext("RecordFirstResponse", errTransient)
		h.clock.Advance(time.Hour)
		_, err := h.ticketService.AddComment(ctx, &agent, ticket.ID, "on it", false)
		require.NoError(t, err)
		stored := h.tickets.get(ticket.ID)
		assert.Nil(t, stored.FirstResponseAt)
		assert.Nil(t, stored.ResponseSLAMet)
		assert.Equal(t, domain.TicketStatusNew, stored.Status)

		h.clock.Advance(time.Hour)
		respondedAt := h.clock.Now()
		_, err = h.ticketService.AddComment(ctx, &agent, ticket.ID, "still on it", false)
		require.NoError(t, err)
		stored = h.tickets.get(ticket.ID)
		require.NotNil(t, stored.FirstResponseAt)
		assert.True(t, respondedAt.Equal(*stored.FirstResponseAt))
		require.NotNil(t, stored.ResponseSLAMet)
		assert.True(t, *stored.ResponseSLAMet)
		assert.Equal(t, domain.TicketStatusInProgress, stored.Status)

		closed, err := h.ticketService.CloseTicket(ctx, &customer, ticket.ID, "", false)
		require.NoError(t, err)
		assert.Equal(t, domain.TicketStatusClosed, closed.Status)
	})

	t.Run("first response does not depend on a full row update", func(t *testing.T) {
		h := newHarness(t)
		customer := h.users.add("customer", domain.RoleUser, baseTime)
		agent := h.users.add("agent-a", domain.RoleAgent, baseTime)
		h.policy("", domain.TicketPriorityMedium, 4, 24)
		ticket := h.createTicket(t, customer, TicketCreateInput{Title: "Help"})

		h.tickets.failNext("Update", errTransient)
		_, err := h.ticketService.AddComment(ctx, &agent, ticket.ID, "on it", false)
		require.NoError(t, err)

		stored := h.tickets.get(ticket.ID)
		require.NotNil(t, stored.FirstResponseAt)
		require.NotNil(t, stored.ResponseSLAMet)
		assert.Equal(t, domain.TicketStatusInProgress, stored.Status)
		assert.Contains(t, h.tickets.failOnce, "Update", "first response must not go through Update")
		delete(h.tickets.failOnce, "Update")

		resolved, err := h.ticketService.UpdateStatus(ctx, &agent, ticket.ID, domain.TicketStatusResolved)
		require.NoError(t, err)
		assert.Equal(t, domain.TicketStatusResolved, resolved.Status)
	})
}

func TestUpdateStatusFollowsLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	customer := h.users.add("customer", domain.RoleUser, baseTime)
	admin := h.users.add("admin", domain.RoleAdmin, baseTime)
	h.policy("", domain.TicketPriorityMedium, 4, 24)
	ticket := h.createTicket(t, customer, TicketCreateInput{Title: "Help"})

	_, err := h.ticketService.UpdateStatus(ctx, &admin, ticket.ID, domain.TicketStatusInProgress)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidTransition))
	_, err = h.ticketService.UpdateStatus(ctx, &admin, ticket.ID, domain.TicketStatusResolved)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidTransition))
	_, err = h.ticketService.UpdateStatus(ctx, &customer, ticket.ID, domain.TicketStatusResolved)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))
	_, err = h.ticketService.UpdateStatus(ctx, &admin, ticket.ID, "reopened")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	_, err = h.ticketService.AddComment(ctx, &admin, ticket.ID, "looking", false)
	require.NoError(t, err)

	h.clock.Advance(30 * time.Hour)
	resolved, err := h.ticketService.UpdateStatus(ctx, &admin, ticket.ID, domain.TicketStatusResolved)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusResolved, resolved.Status)
	require.NotNil(t, resolved.ResolvedAt)
	require.NotNil(t, resolved.ResolutionSLAMet)
	assert.False(t, *resolved.ResolutionSLAMet)

	closed, err := h.ticketService.UpdateStatus(ctx, &admin, ticket.ID, domain.TicketStatusClosed)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusClosed, closed.Status)
	assert.NotNil(t, closed.ClosedAt)

	_, err = h.ticketService.UpdateStatus(ctx, &admin, ticket.ID, domain.TicketStatusResolved)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidTransition))
	assert.Equal(t, 3, h.history.count(ticket.ID, domain.ChangeTypeStatus))
}

func TestCloseTicket(t *testing.T) {
	ctx := context.Background()

	t.Run("creator cannot close a new ticket", func(t *testing.T) {
		h := newHarness(t)
		customer := h.users.add("customer", domain.RoleUser, baseTime)
		ticket := h.createTicket(t, customer, TicketCreateInput{Title: "Help"})

		_, err := h.ticketService.CloseTicket(ctx, &customer, ticket.ID, "never mind", false)
		assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidTransition))
		assert.Empty(t, h.comments.comments)
	})

	t.Run("agent closes a new ticket with a closing comment", func(t *testing.T) {
		h := newHarness(t)
		customer := h.users.add("customer", domain.RoleUser, baseTime)
		agent := h.users.add("agent-a", domain.RoleAgent, baseTime)
		h.policy("", domain.TicketPriorityMedium, 4, 24)
		ticket := h.createTicket(t, customer, TicketCreateInput{Title: "Help"})

		h.clock.Advance(time.Hour)
		closed, err := h.ticketService.CloseTicket(ctx, &agent, ticket.ID, "fixed", false)
		require.NoError(t, err)
		assert.Equal(t, domain.TicketStatusClosed, closed.Status)
		assert.NotNil(t, closed.FirstResponseAt)
		assert.NotNil(t, closed.ResolvedAt)
		assert.NotNil(t, closed.ClosedAt)
		require.NotNil(t, closed.ResolutionSLAMet)
		assert.True(t, *closed.ResolutionSLAMet)
		assert.Len(t, h.comments.comments, 1)
	})

	t.Run("creator closes an in-progress ticket", func(t *testing.T) {
		h := newHarness(t)
		customer := h.users.add("customer", domain.RoleUser, baseTime)
		agent := h.users.add("agent-a", domain.RoleAgent, baseTime)
		ticket := h.createTicket(t, customer, TicketCreateInput{Title: "Help"})
		_, err := h.ticketService.AddComment(ctx, &agent, ticket.ID, "hi", false)
		require.NoError(t, err)

		closed, err := h.ticketService.CloseTicket(ctx, &customer, ticket.ID, "", false)
		require.NoError(t, err)
		assert.Equal(t, domain.TicketStatusClosed, closed.Status)

		_, err = h.ticketService.CloseTicket(ctx, &customer, ticket.ID, "", false)
		assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidTransition))

		_, err = h.ticketService.AddComment(ctx, &customer, ticket.ID, "thanks", false)
		assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict))
	})

	t.Run("failed write leaves the ticket and comments untouched", func(t *testing.T) {
		h := newHarness(t)
		customer := h.users.add("customer", domain.RoleUser, baseTime)
		agent := h.users.add("agent-a", domain.RoleAgent, baseTime)
		h.policy("", domain.TicketPriorityMedium, 4, 24)
		ticket := h.createTicket(t, customer, TicketCreateInput{Title: "Help"})

		h.tickets.failNext("CloseWithComment", errors.New("transient db error"))
		_, err := h.ticketService.CloseTicket(ctx, &agent, ticket.ID, "fixed", false)
		assert.True(t, apperrors.HasCode(err, apperrors.CodeInternal))

		stored := h.tickets.get(ticket.ID)
		assert.Equal(t, domain.TicketStatusNew, stored.Status)
		assert.Nil(t, stored.FirstResponseAt)
		assert.Nil(t, stored.ResponseSLAMet)
		assert.Nil(t, stored.ClosedAt)
		assert.Empty(t, h.comments.comments)
		assert.Zero(t, h.history.count(ticket.ID, domain.ChangeTypeFirstResponse))
		assert.Zero(t, h.history.count(ticket.ID, domain.ChangeTypeStatus))

		closed, err := h.ticketService.CloseTicket(ctx, &agent, ticket.ID, "fixed", false)
		require.NoError(t, err)
		assert.Equal(t, domain.TicketStatusClosed, closed.Status)
		assert.Len(t, h.comments.comments, 1)
		assert.Equal(t, 1, h.history.count(ticket.ID, domain.ChangeTypeFirstResponse))
		assert.Equal(t, 1, h.history.count(ticket.ID, domain.ChangeTypeStatus))
	})

	t.Run("status changed underneath the close", func(t *testing.T) {
		h := newHarness(t)
		customer := h.users.add("customer", domain.RoleUser, baseTime)
		agent := h.users.add("agent-a", domain.RoleAgent, baseTime)
		ticket := h.createTicket(t, customer, TicketCreateInput{Title: "Help"})

		h.tickets.failNext("CloseWithComment", repository.ErrTicketChanged)
		_, err := h.ticketService.CloseTicket(ctx, &agent, ticket.ID, "fixed", false)
		assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict))
		assert.Empty(t, h.comments.comments)
	})
}

func TestAddCommentPermissions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	customer := h.users.add("customer", domain.RoleUser, baseTime)
	stranger := h.users.add("stranger", domain.RoleUser, baseTime)
	agent := h.users.add("agent-a", domain.RoleAgent, baseTime)
	ticket := h.createTicket(t, customer, TicketCreateInput{Title: "Help"})

	_, err := h.ticketService.AddComment(ctx, &customer, ticket.ID, "secret", true)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))
	_, err = h.ticketService.AddComment(ctx, &stranger, ticket.ID, "hi", false)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))
	_, err = h.ticketService.AddComment(ctx, &customer, ticket.ID, " ", false)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
	_, err = h.ticketService.AddComment(ctx, &customer, "missing", "hi", false)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))

	_, err = h.ticketService.AddComment(ctx, &agent, ticket.ID, "internal", true)
	require.NoError(t, err)

	detail, err := h.ticketService.GetTicket(ctx, &customer, ticket.ID)
	require.NoError(t, err)
	assert.Empty(t, detail.Comments)

	detail, err = h.ticketService.GetTicket(ctx, &agent, ticket.ID)
	require.NoError(t, err)
	assert.Len(t, detail.Comments, 1)
}

func TestListTicketsVisibility(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.users.add("alice", domain.RoleUser, baseTime)
	bob := h.users.add("bob", domain.RoleUser, baseTime)
	admin := h.users.add("admin", domain.RoleAdmin, baseTime)
	h.createTicket(t, alice, TicketCreateInput{Title: "a1"})
	h.createTicket(t, alice, TicketCreateInput{Title: "a2"})
	h.createTicket(t, bob, TicketCreateInput{Title: "b1"})

	mine, err := h.ticketService.ListTickets(ctx, &alice, TicketListFilter{})
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	all, err := h.ticketService.ListTickets(ctx, &admin, TicketListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Equal(t, domain.SLAWithin, all[0].SLA.Status)
}

func TestAssignTicketManually(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	customer := h.users.add("customer", domain.RoleUser, baseTime)
	admin := h.users.add("admin", domain.RoleAdmin, baseTime)
	ticket := h.createTicket(t, customer, TicketCreateInput{Title: "Help"})
	require.NotNil(t, ticket.AssignedTo)
	assert.Equal(t, "admin", *ticket.AssignedTo)

	agent := h.users.add("agent-a", domain.RoleAgent, baseTime)
	updated, err := h.ticketService.AssignTicket(ctx, &admin, ticket.ID, agent.ID)
	require.NoError(t, err)
	assert.Equal(t, "agent-a", *updated.AssignedTo)
	assert.Equal(t, 2, h.history.count(ticket.ID, domain.ChangeTypeAssignee))

	_, err = h.ticketService.AssignTicket(ctx, &admin, ticket.ID, customer.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict))
	_, err = h.ticketService.AssignTicket(ctx, &customer, ticket.ID, agent.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))

	assigned := h.notifications.byType(domain.NotificationTicketAssigned)
	require.Len(t, assigned, 2)
	assert.Equal(t, "agent-a", assigned[1].UserID)
}
