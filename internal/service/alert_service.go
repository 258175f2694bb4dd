package service

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
	"github.com/spec-kit/helpdesk-sla/internal/observability"
	"github.com/spec-kit/helpdesk-sla/internal/repository"
	"github.com/spec-kit/helpdesk-sla/internal/sla"
)

// AlertNotifier dispatches SLA notifications.
type AlertNotifier interface {
	NotifySLABreach(ctx context.Context, ticket *domain.Ticket, kind domain.SLAKind, hoursSinceCreated float64) error
	NotifySLAWarning(ctx context.Context, ticket *domain.Ticket, kind domain.SLAKind, hoursRemaining float64) error
}

// AlertService scans open tickets for SLA warnings and breaches.
type AlertService struct {
	tickets    repository.TicketRepository
	notifier   AlertNotifier
	audit      auditLog
	calculator sla.Calculator
	logger     *zap.Logger
	metrics    *observability.Metrics
	clock      Clock
}

// AlertDependencies bundles collaborators.
type AlertDependencies struct {
	TicketRepo  repository.TicketRepository
	HistoryRepo repository.TicketHistoryRepository
	Notifier    AlertNotifier
	Calculator  sla.Calculator
	Logger      *zap.Logger
	Metrics     *observability.Metrics
	Clock       Clock
}

// NewAlertService constructs the scanner.
func NewAlertService(deps AlertDependencies) *AlertService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AlertService{
		tickets:    deps.TicketRepo,
		notifier:   deps.Notifier,
		audit:      auditLog{repo: deps.HistoryRepo, logger: logger},
		calculator: deps.Calculator,
		logger:     logger,
		metrics:    deps.Metrics,
		clock:      deps.Clock,
	}
}

// Scan returns an alert for every non-closed ticket past its warning or breach
// threshold, most overdue first. Each breach kind is notified once per ticket;
// warnings are notified on every pass while they persist. A failure on one
// alert is logged and does not stop the others.
func (s *AlertService) Scan(ctx context.Context) ([]domain.TicketAlert, error) {
	now := s.clock.now()
	tickets, err := s.tickets.ListWithFilter(ctx, repository.TicketFilter{
		Statuses: domain.NonClosedStatuses,
	})
	if err != nil {
		return nil, err
	}

	alerts := make([]domain.TicketAlert, 0)
	for i := range tickets {
		view := s.calculator.Evaluate(&tickets[i], now)
		if view.Status == domain.SLAWithin {
			continue
		}
		alerts = append(alerts, domain.TicketAlert{
			TicketID:       tickets[i].ID,
			TicketNumber:   tickets[i].TicketNumber,
			AlertType:      view.Status,
			HoursRemaining: view.HoursRemaining(),
		})
	}
	sort.SliceStable(alerts, func(i, j int) bool {
		return alerts[i].HoursRemaining < alerts[j].HoursRemaining
	})

	for _, alert := range alerts {
		s.metrics.RecordAlert(string(alert.AlertType))
		s.dispatch(ctx, alert, now)
	}
	return alerts, nil
}

func (s *AlertService) dispatch(ctx context.Context, alert domain.TicketAlert, now time.Time) {
	logger := s.logger.With(
		zap.String("ticket_id", alert.TicketID),
		zap.String("alert_type", string(alert.AlertType)),
	)

	ticket, err := s.tickets.GetByID(ctx, alert.TicketID)
	if err != nil {
		logger.Warn("fetch ticket for alert", zap.Error(err))
		return
	}
	kind := alert.AlertType.Kind()

	if alert.AlertType.IsWarning() {
		if err := s.notifier.NotifySLAWarning(ctx, ticket, kind, alert.HoursRemaining); err != nil {
			logger.Warn("sla warning notification", zap.Error(err))
		}
		return
	}

	if breachNotified(ticket, kind) {
		return
	}
	claimed, err := s.tickets.ClaimBreachNotified(ctx, ticket.ID, kind)
	if err != nil {
		logger.Warn("claim breach notification", zap.Error(err))
		return
	}
	if !claimed {
		return
	}

	view := s.calculator.Evaluate(ticket, now)
	if err := s.notifier.NotifySLABreach(ctx, ticket, kind, view.HoursSinceCreated); err != nil {
		logger.Error("sla breach notification", zap.Error(err))
		if err := s.tickets.ReleaseBreachNotified(ctx, ticket.ID, kind); err != nil {
			logger.Error("release breach claim", zap.Error(err))
		}
		return
	}
	s.audit.record(ctx, ticket.ID, nil, domain.ChangeTypeSLABreachNotified,
		map[string]any{"breach_type": string(kind), "notified": false},
		map[string]any{"breach_type": string(kind), "notified": true})
	logger.Info("sla breach notified", zap.Int64("ticket_number", ticket.TicketNumber))
}

func breachNotified(ticket *domain.Ticket, kind domain.SLAKind) bool {
	if kind == domain.SLAKindResponse {
		return ticket.ResponseBreachNotified
	}
	return ticket.ResolutionBreachNotified
}
