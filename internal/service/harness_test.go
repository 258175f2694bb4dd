package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-sla/internal/config"
	"github.com/spec-kit/helpdesk-sla/internal/domain"
	"github.com/spec-kit/helpdesk-sla/internal/events"
	"github.com/spec-kit/helpdesk-sla/internal/notify"
	"github.com/spec-kit/helpdesk-sla/internal/sla"
)

// harness wires every service over in-memory repositories.
type harness struct {
	clock         *fixedClock
	tickets       *fakeTicketRepo
	users         *fakeUserRepo
	comments      *fakeCommentRepo
	history       *fakeHistoryRepo
	configs       *fakeSLAConfigRepo
	rules         *fakeRuleRepo
	notifications *fakeNotificationRepo
	dispatcher    events.Dispatcher

	balancer      *WorkloadBalancer
	assignment    *AssignmentService
	slaService    *SLAService
	notifier      *NotificationService
	ticketService *TicketService
	alerts        *AlertService
}

func newHarness(t *testing.T, senders ...notify.Sender) *harness {
	t.Helper()
	clock := newFixedClock(baseTime)
	h := &harness{
		clock:         clock,
		tickets:       newFakeTicketRepo(clock.Now),
		users:         &fakeUserRepo{},
		comments:      &fakeCommentRepo{clock: clock.Now},
		history:       &fakeHistoryRepo{},
		configs:       &fakeSLAConfigRepo{},
		rules:         &fakeRuleRepo{},
		notifications: &fakeNotificationRepo{},
		dispatcher:    events.NewInMemoryDispatcher(nil),
	}
	h.tickets.comments = h.comments
	calculator := sla.NewCalculator(0.8)
	now := Clock(clock.Now)
	if len(senders) == 0 {
		senders = []notify.Sender{notify.InternalSender{}}
	}

	h.balancer = NewWorkloadBalancer(BalancerDependencies{
		UserRepo:    h.users,
		TicketRepo:  h.tickets,
		HistoryRepo: h.history,
		Dispatcher:  h.dispatcher,
		Clock:       now,
	})
	h.assignment = NewAssignmentService(AssignmentDependencies{
		RuleRepo: h.rules,
		UserRepo: h.users,
		Balancer: h.balancer,
	})
	h.slaService = NewSLAService(SLADependencies{
		ConfigRepo: h.configs,
		TicketRepo: h.tickets,
		Calculator: calculator,
		Clock:      now,
	})
	h.notifier = NewNotificationService(NotificationDependencies{
		NotificationRepo: h.notifications,
		UserRepo:         h.users,
		Senders:          notify.NewRegistry(senders...),
		Dispatcher:       h.dispatcher,
		Config:           config.NotificationConfig{DefaultChannel: string(domain.ChannelInternal)},
		Clock:            now,
	})
	h.notifier.RegisterHandlers()
	h.ticketService = NewTicketService(TicketDependencies{
		TicketRepo:  h.tickets,
		CommentRepo: h.comments,
		UserRepo:    h.users,
		HistoryRepo: h.history,
		Policies:    h.slaService,
		Assigner:    h.assignment,
		Calculator:  calculator,
		Dispatcher:  h.dispatcher,
		Clock:       now,
	})
	h.alerts = h.alertService(h.notifier)
	return h
}

func (h *harness) alertService(notifier AlertNotifier) *AlertService {
	return NewAlertService(AlertDependencies{
		TicketRepo:  h.tickets,
		HistoryRepo: h.history,
		Notifier:    notifier,
		Calculator:  sla.NewCalculator(0.8),
		Clock:       h.clock.Now,
	})
}

func (h *harness) policy(category string, priority domain.TicketPriority, response, resolution float64) {
	h.configs.configs = append(h.configs.configs, domain.SLAConfiguration{
		ID:                  "sla-" + category + "-" + string(priority),
		Name:                category + " " + string(priority),
		Category:            category,
		Priority:            priority,
		ResponseTimeHours:   response,
		ResolutionTimeHours: resolution,
		IsActive:            true,
	})
}

// openTickets seeds n open, SLA-exempt tickets assigned to userID.
func (h *harness) openTickets(userID string, n int, priority domain.TicketPriority) []string {
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		assignee := userID
		t := h.tickets.put(domain.Ticket{
			Title:      "seeded",
			Status:     domain.TicketStatusInProgress,
			Priority:   priority,
			AssignedTo: &assignee,
			CreatedAt:  baseTime.Add(-time.Duration(n-i) * time.Hour),
		})
		ids = append(ids, t.ID)
	}
	return ids
}

// slaTicket seeds a ticket carrying the given budgets, created at createdAt.
func (h *harness) slaTicket(createdBy, assignedTo string, response, resolution float64, createdAt time.Time) *domain.Ticket {
	t := domain.Ticket{
		Title:                  "seeded",
		CreatedBy:              strPtr(createdBy),
		SLAResponseTimeHours:   floatPtr(response),
		SLAResolutionTimeHours: floatPtr(resolution),
		CreatedAt:              createdAt,
	}
	if assignedTo != "" {
		t.AssignedTo = strPtr(assignedTo)
	}
	return h.tickets.put(t)
}

func (h *harness) createTicket(t *testing.T, actor domain.User, input TicketCreateInput) *domain.Ticket {
	t.Helper()
	ticket, err := h.ticketService.CreateTicket(context.Background(), &actor, input)
	require.NoError(t, err)
	return ticket
}

type mockSender struct {
	mock.Mock
	channel domain.NotificationChannel
}

func (m *mockSender) Channel() domain.NotificationChannel { return m.channel }

func (m *mockSender) Send(ctx context.Context, msg notify.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}
