package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
	"github.com/spec-kit/helpdesk-sla/internal/repository"
	"github.com/spec-kit/helpdesk-sla/internal/sla"
	apperrors "github.com/spec-kit/helpdesk-sla/pkg/util/errorutil"
)

// SLAService owns policy lookup, policy administration and compliance metrics.
type SLAService struct {
	configs    repository.SLAConfigRepository
	tickets    repository.TicketRepository
	calculator sla.Calculator
	logger     *zap.Logger
	clock      Clock
}

// SLADependencies bundles collaborators.
type SLADependencies struct {
	ConfigRepo repository.SLAConfigRepository
	TicketRepo repository.TicketRepository
	Calculator sla.Calculator
	Logger     *zap.Logger
	Clock      Clock
}

// NewSLAService constructs the service.
func NewSLAService(deps SLADependencies) *SLAService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SLAService{
		configs:    deps.ConfigRepo,
		tickets:    deps.TicketRepo,
		calculator: deps.Calculator,
		logger:     logger,
		clock:      deps.Clock,
	}
}

// ResolvePolicy returns the active policy for (category, priority). An exact
// category match wins over the wildcard policy. Nil means the ticket is exempt.
func (s *SLAService) ResolvePolicy(ctx context.Context, category string, priority domain.TicketPriority) (*domain.SLAConfiguration, error) {
	configs, err := s.configs.List(ctx, true)
	if err != nil {
		return nil, err
	}
	var best *domain.SLAConfiguration
	for i := range configs {
		cfg := &configs[i]
		if !cfg.Matches(category, priority) {
			continue
		}
		if best == nil || cfg.Specificity() > best.Specificity() {
			best = cfg
		}
	}
	return best, nil
}

// Evaluate returns the SLA view of ticket at the current time.
func (s *SLAService) Evaluate(ticket *domain.Ticket) sla.View {
	return s.calculator.Evaluate(ticket, s.clock.now())
}

// ListConfigurations returns policies, optionally active only.
func (s *SLAService) ListConfigurations(ctx context.Context, actor *domain.User, activeOnly bool) ([]domain.SLAConfiguration, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	configs, err := s.configs.List(ctx, activeOnly)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return configs, nil
}

// SLAConfigurationInput is the editable part of a policy.
type SLAConfigurationInput struct {
	Name                string
	Category            string
	Priority            domain.TicketPriority
	ResponseTimeHours   float64
	ResolutionTimeHours float64
	AutoAssignToRole    *domain.UserRole
	IsActive            *bool
}

// UpsertConfiguration creates the policy for (category, priority) or edits the existing one.
func (s *SLAService) UpsertConfiguration(ctx context.Context, actor *domain.User, input SLAConfigurationInput) (*domain.SLAConfiguration, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	cfg, err := buildConfiguration(input)
	if err != nil {
		return nil, err
	}
	if err := s.configs.Upsert(ctx, cfg); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.logger.Info("sla configuration saved",
		zap.String("config_id", cfg.ID),
		zap.String("category", cfg.Category),
		zap.String("priority", string(cfg.Priority)),
	)
	return cfg, nil
}

// SeedConfigurations upserts policies loaded at startup.
func (s *SLAService) SeedConfigurations(ctx context.Context, configs []domain.SLAConfiguration) error {
	for i := range configs {
		cfg := configs[i]
		if err := s.configs.Upsert(ctx, &cfg); err != nil {
			return err
		}
	}
	return nil
}

// DeactivateConfiguration disables a policy; existing ticket snapshots are unaffected.
func (s *SLAService) DeactivateConfiguration(ctx context.Context, actor *domain.User, id string) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	if err := s.configs.SetActive(ctx, id, false); err != nil {
		return lookupError(err, "sla configuration", map[string]any{"config_id": id})
	}
	return nil
}

// ComputeMetrics aggregates compliance over tickets created in [start, end].
// Nil bounds are open.
func (s *SLAService) ComputeMetrics(ctx context.Context, actor *domain.User, start, end *time.Time) (domain.SLAMetrics, error) {
	if err := requireStaff(actor); err != nil {
		return domain.SLAMetrics{}, err
	}
	if start != nil && end != nil && end.Before(*start) {
		return domain.SLAMetrics{}, apperrors.NewValidationError("end must not be before start", nil)
	}
	tickets, err := s.tickets.ListWithFilter(ctx, repository.TicketFilter{CreatedFrom: start, CreatedTo: end})
	if err != nil {
		return domain.SLAMetrics{}, apperrors.MapError(err)
	}
	return s.calculator.ComputeMetrics(tickets, s.clock.now()), nil
}

func buildConfiguration(input SLAConfigurationInput) (*domain.SLAConfiguration, error) {
	if !input.Priority.Valid() {
		return nil, apperrors.NewValidationError("invalid priority", map[string]any{"priority": input.Priority})
	}
	if input.ResponseTimeHours <= 0 || input.ResolutionTimeHours <= 0 {
		return nil, apperrors.NewValidationError("time budgets must be positive", nil)
	}
	if input.ResolutionTimeHours < input.ResponseTimeHours {
		return nil, apperrors.NewValidationError("resolution budget must not be shorter than response budget", nil)
	}
	if input.AutoAssignToRole != nil && !input.AutoAssignToRole.Valid() {
		return nil, apperrors.NewValidationError("invalid auto_assign_to_role", map[string]any{"role": *input.AutoAssignToRole})
	}
	category := strings.TrimSpace(input.Category)
	name := strings.TrimSpace(input.Name)
	if name == "" {
		label := category
		if label == "" {
			label = "default"
		}
		name = label + " / " + string(input.Priority)
	}
	active := true
	if input.IsActive != nil {
		active = *input.IsActive
	}
	return &domain.SLAConfiguration{
		Name:                name,
		Category:            category,
		Priority:            input.Priority,
		ResponseTimeHours:   input.ResponseTimeHours,
		ResolutionTimeHours: input.ResolutionTimeHours,
		AutoAssignToRole:    input.AutoAssignToRole,
		IsActive:            active,
	}, nil
}
