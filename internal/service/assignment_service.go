package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
	"github.com/spec-kit/helpdesk-sla/internal/observability"
	"github.com/spec-kit/helpdesk-sla/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-sla/pkg/util/errorutil"
)

// LeastLoadedPicker chooses an assignee among users with one of roles.
type LeastLoadedPicker interface {
	PickLeastLoaded(ctx context.Context, roles []domain.UserRole, category string) (*string, error)
}

// AssignmentService evaluates assignment rules and administers them.
type AssignmentService struct {
	rules    repository.AssignmentRuleRepository
	users    repository.UserRepository
	balancer LeastLoadedPicker
	logger   *zap.Logger
	metrics  *observability.Metrics
}

// AssignmentDependencies bundles collaborators.
type AssignmentDependencies struct {
	RuleRepo repository.AssignmentRuleRepository
	UserRepo repository.UserRepository
	Balancer LeastLoadedPicker
	Logger   *zap.Logger
	Metrics  *observability.Metrics
}

// NewAssignmentService creates the service.
func NewAssignmentService(deps AssignmentDependencies) *AssignmentService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssignmentService{
		rules:    deps.RuleRepo,
		users:    deps.UserRepo,
		balancer: deps.Balancer,
		logger:   logger,
		metrics:  deps.Metrics,
	}
}

// Assign picks an assignee for candidate. Active rules are tried in order and
// the first match decides: a user target is returned as is, a role target goes
// through the balancer and falls through to later rules when nobody is
// eligible. Without a usable match the balancer runs over fallbackRole, or the
// default staff roles when that is nil. A nil id means unassigned.
func (s *AssignmentService) Assign(ctx context.Context, candidate domain.TicketCandidate, fallbackRole *domain.UserRole) (*string, error) {
	rules, err := s.rules.List(ctx, true)
	if err != nil {
		return nil, err
	}
	domain.SortRules(rules)

	for _, rule := range rules {
		if !rule.IsActive || !rule.Conditions.Match(candidate) {
			continue
		}
		if rule.AssignToUserID != nil {
			s.logger.Debug("assignment rule matched", zap.String("rule", rule.Name), zap.String("user_id", *rule.AssignToUserID))
			s.metrics.RecordAssignment("rule_user")
			return rule.AssignToUserID, nil
		}
		if rule.AssignToRole == nil {
			continue
		}
		userID, err := s.balancer.PickLeastLoaded(ctx, []domain.UserRole{*rule.AssignToRole}, candidate.Category)
		if err != nil {
			return nil, err
		}
		if userID != nil {
			s.logger.Debug("assignment rule matched", zap.String("rule", rule.Name), zap.String("user_id", *userID))
			s.metrics.RecordAssignment("rule_role")
			return userID, nil
		}
		s.logger.Debug("assignment rule matched without eligible agent", zap.String("rule", rule.Name))
	}

	var roles []domain.UserRole
	if fallbackRole != nil {
		roles = []domain.UserRole{*fallbackRole}
	}
	userID, err := s.balancer.PickLeastLoaded(ctx, roles, candidate.Category)
	if err != nil {
		return nil, err
	}
	if userID == nil {
		s.metrics.RecordAssignment("unassigned")
		return nil, nil
	}
	s.metrics.RecordAssignment("balancer")
	return userID, nil
}

// RuleInput is the editable part of an assignment rule.
type RuleInput struct {
	Name           string
	Priority       int
	Conditions     map[string]any
	AssignToUserID *string
	AssignToRole   *domain.UserRole
	IsActive       *bool
}

// ListRules returns rules, optionally only active ones.
func (s *AssignmentService) ListRules(ctx context.Context, actor *domain.User, activeOnly bool) ([]domain.AssignmentRule, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	rules, err := s.rules.List(ctx, activeOnly)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return rules, nil
}

// CreateRule validates and stores a new rule.
func (s *AssignmentService) CreateRule(ctx context.Context, actor *domain.User, input RuleInput) (*domain.AssignmentRule, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	rule := &domain.AssignmentRule{IsActive: true}
	if err := s.applyRuleInput(ctx, rule, input); err != nil {
		return nil, err
	}
	if err := s.rules.Create(ctx, rule); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.logger.Info("assignment rule created", zap.String("rule_id", rule.ID), zap.String("name", rule.Name))
	return rule, nil
}

// UpdateRule replaces a rule's definition.
func (s *AssignmentService) UpdateRule(ctx context.Context, actor *domain.User, id string, input RuleInput) (*domain.AssignmentRule, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	rule, err := s.rules.GetByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "assignment rule", map[string]any{"rule_id": id})
	}
	if err := s.applyRuleInput(ctx, rule, input); err != nil {
		return nil, err
	}
	if err := s.rules.Update(ctx, rule); err != nil {
		return nil, lookupError(err, "assignment rule", map[string]any{"rule_id": id})
	}
	return rule, nil
}

// SeedRules stores rules loaded at startup, skipping any whose name already exists.
func (s *AssignmentService) SeedRules(ctx context.Context, rules []domain.AssignmentRule) (int, error) {
	existing, err := s.rules.List(ctx, false)
	if err != nil {
		return 0, err
	}
	names := make(map[string]struct{}, len(existing))
	for _, r := range existing {
		names[strings.ToLower(r.Name)] = struct{}{}
	}
	created := 0
	for i := range rules {
		rule := rules[i]
		key := strings.ToLower(strings.TrimSpace(rule.Name))
		if _, ok := names[key]; ok {
			continue
		}
		if err := s.rules.Create(ctx, &rule); err != nil {
			return created, err
		}
		names[key] = struct{}{}
		created++
	}
	return created, nil
}

// DeactivateRule disables a rule; rules are never deleted.
func (s *AssignmentService) DeactivateRule(ctx context.Context, actor *domain.User, id string) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	if err := s.rules.SetActive(ctx, id, false); err != nil {
		return lookupError(err, "assignment rule", map[string]any{"rule_id": id})
	}
	return nil
}

func (s *AssignmentService) applyRuleInput(ctx context.Context, rule *domain.AssignmentRule, input RuleInput) error {
	conditions, err := domain.ParseConditions(input.Conditions)
	if err != nil {
		return apperrors.NewValidationError(err.Error(), map[string]any{"field": "conditions"})
	}
	rule.Name = strings.TrimSpace(input.Name)
	rule.Priority = input.Priority
	rule.Conditions = conditions
	rule.AssignToUserID = input.AssignToUserID
	rule.AssignToRole = input.AssignToRole
	if input.IsActive != nil {
		rule.IsActive = *input.IsActive
	}
	if err := rule.Validate(); err != nil {
		return apperrors.NewValidationError(err.Error(), nil)
	}
	if rule.AssignToUserID != nil {
		user, err := s.users.GetByID(ctx, *rule.AssignToUserID)
		if err != nil {
			return lookupError(err, "user", map[string]any{"user_id": *rule.AssignToUserID})
		}
		if !user.IsStaff() {
			return apperrors.NewValidationError("rule target must be an agent or admin", map[string]any{"user_id": user.ID})
		}
	}
	return nil
}
