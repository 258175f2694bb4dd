package service

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
	"github.com/spec-kit/helpdesk-sla/internal/events"
	"github.com/spec-kit/helpdesk-sla/internal/observability"
	"github.com/spec-kit/helpdesk-sla/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-sla/pkg/util/errorutil"
)

// DefaultRebalanceThreshold is the load spread that triggers a rebalance.
const DefaultRebalanceThreshold = 5

// AgentLoad is a user's count of open (new or in_progress) tickets.
type AgentLoad struct {
	User domain.User
	Load int
}

// RebalanceResult describes one rebalance pass.
type RebalanceResult struct {
	FromUserID string   `json:"from_user_id,omitempty"`
	ToUserID   string   `json:"to_user_id,omitempty"`
	MaxLoad    int      `json:"max_load"`
	MinLoad    int      `json:"min_load"`
	Moved      int      `json:"moved"`
	TicketIDs  []string `json:"ticket_ids,omitempty"`
}

// WorkloadBalancer picks the least-loaded eligible user and evens out load.
type WorkloadBalancer struct {
	users      repository.UserRepository
	tickets    repository.TicketRepository
	audit      auditLog
	dispatcher events.Dispatcher
	logger     *zap.Logger
	metrics    *observability.Metrics
	threshold  int
	clock      Clock
}

// BalancerDependencies bundles collaborators.
type BalancerDependencies struct {
	UserRepo    repository.UserRepository
	TicketRepo  repository.TicketRepository
	HistoryRepo repository.TicketHistoryRepository
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
	Metrics     *observability.Metrics
	// Threshold <= 0 uses DefaultRebalanceThreshold.
	Threshold int
	Clock     Clock
}

// NewWorkloadBalancer constructs the balancer.
func NewWorkloadBalancer(deps BalancerDependencies) *WorkloadBalancer {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	threshold := deps.Threshold
	if threshold <= 0 {
		threshold = DefaultRebalanceThreshold
	}
	return &WorkloadBalancer{
		users:      deps.UserRepo,
		tickets:    deps.TicketRepo,
		audit:      auditLog{repo: deps.HistoryRepo, logger: logger},
		dispatcher: deps.Dispatcher,
		logger:     logger,
		metrics:    deps.Metrics,
		threshold:  threshold,
		clock:      deps.Clock,
	}
}

// Loads returns active users with one of roles (DefaultAssigneeRoles when empty)
// that handle category, sorted by load, then creation time, then id.
func (b *WorkloadBalancer) Loads(ctx context.Context, roles []domain.UserRole, category string) ([]AgentLoad, error) {
	if len(roles) == 0 {
		roles = domain.DefaultAssigneeRoles
	}
	users, err := b.users.ListActive(ctx, roles)
	if err != nil {
		return nil, err
	}

	eligible := make([]domain.User, 0, len(users))
	ids := make([]string, 0, len(users))
	for _, u := range users {
		if !u.IsActive || !u.HandlesCategory(category) {
			continue
		}
		eligible = append(eligible, u)
		ids = append(ids, u.ID)
	}
	if len(eligible) == 0 {
		return nil, nil
	}

	counts, err := b.tickets.CountByAssignee(ctx, ids, domain.OpenStatuses)
	if err != nil {
		return nil, err
	}

	loads := make([]AgentLoad, len(eligible))
	for i, u := range eligible {
		loads[i] = AgentLoad{User: u, Load: counts[u.ID]}
	}
	sort.SliceStable(loads, func(i, j int) bool {
		if loads[i].Load != loads[j].Load {
			return loads[i].Load < loads[j].Load
		}
		if !loads[i].User.CreatedAt.Equal(loads[j].User.CreatedAt) {
			return loads[i].User.CreatedAt.Before(loads[j].User.CreatedAt)
		}
		return loads[i].User.ID < loads[j].User.ID
	})
	return loads, nil
}

// PickLeastLoaded returns the eligible user with the fewest open tickets, or
// nil when nobody qualifies.
func (b *WorkloadBalancer) PickLeastLoaded(ctx context.Context, roles []domain.UserRole, category string) (*string, error) {
	loads, err := b.Loads(ctx, roles, category)
	if err != nil {
		return nil, err
	}
	if len(loads) == 0 {
		return nil, nil
	}
	id := loads[0].User.ID
	return &id, nil
}

// Rebalance moves floor((max-min)/2) non-urgent open tickets from the most
// loaded to the least loaded agent when the spread exceeds the threshold.
func (b *WorkloadBalancer) Rebalance(ctx context.Context) (RebalanceResult, error) {
	loads, err := b.Loads(ctx, domain.DefaultAssigneeRoles, "")
	if err != nil {
		return RebalanceResult{}, err
	}
	if len(loads) < 2 {
		return RebalanceResult{}, nil
	}

	least := loads[0]
	most := loads[len(loads)-1]
	result := RebalanceResult{MaxLoad: most.Load, MinLoad: least.Load}
	if most.Load-least.Load <= b.threshold {
		return result, nil
	}

	urgent := domain.TicketPriorityUrgent
	candidates, err := b.tickets.ListWithFilter(ctx, repository.TicketFilter{
		AssignedTo:      &most.User.ID,
		Statuses:        domain.OpenStatuses,
		ExcludePriority: &urgent,
		OldestFirst:     true,
		Limit:           (most.Load - least.Load) / 2,
	})
	if err != nil {
		return result, err
	}
	if len(candidates) == 0 {
		return result, nil
	}

	ids := make([]string, len(candidates))
	for i, t := range candidates {
		ids[i] = t.ID
	}
	moved, err := b.tickets.Reassign(ctx, ids, least.User.ID)
	if err != nil {
		return result, err
	}

	result.FromUserID = most.User.ID
	result.ToUserID = least.User.ID
	result.Moved = moved
	result.TicketIDs = ids
	b.metrics.RecordRebalance(moved)

	now := b.clock.now()
	for _, t := range candidates {
		b.audit.record(ctx, t.ID, nil, domain.ChangeTypeAssignee,
			map[string]any{"assigned_to": most.User.ID},
			map[string]any{"assigned_to": least.User.ID, "reason": "rebalance"})
		b.publishReassigned(ctx, t, most.User.ID, least.User.ID, events.SystemActor, true, now)
	}

	b.logger.Info("workload rebalanced",
		zap.String("from", most.User.ID),
		zap.String("to", least.User.ID),
		zap.Int("max_load", most.Load),
		zap.Int("min_load", least.Load),
		zap.Int("moved", moved),
	)
	return result, nil
}

// ReassignUserTickets moves every open ticket of fromID to toID.
func (b *WorkloadBalancer) ReassignUserTickets(ctx context.Context, actor *domain.User, fromID, toID string) (int, error) {
	if err := requireAdmin(actor); err != nil {
		return 0, err
	}
	if fromID == toID {
		return 0, apperrors.NewValidationError("source and target user must differ", nil)
	}
	target, err := b.users.GetByID(ctx, toID)
	if err != nil {
		return 0, lookupError(err, "user", map[string]any{"user_id": toID})
	}
	if !target.IsActive || !target.IsStaff() {
		return 0, apperrors.NewConflict("target user cannot receive tickets", map[string]any{"user_id": toID})
	}

	tickets, err := b.tickets.ListWithFilter(ctx, repository.TicketFilter{
		AssignedTo: &fromID,
		Statuses:   domain.OpenStatuses,
	})
	if err != nil {
		return 0, apperrors.MapError(err)
	}
	if len(tickets) == 0 {
		return 0, nil
	}
	ids := make([]string, len(tickets))
	for i, t := range tickets {
		ids[i] = t.ID
	}
	moved, err := b.tickets.Reassign(ctx, ids, toID)
	if err != nil {
		return 0, apperrors.MapError(err)
	}

	now := b.clock.now()
	for _, t := range tickets {
		b.audit.record(ctx, t.ID, actorID(actor), domain.ChangeTypeAssignee,
			map[string]any{"assigned_to": fromID},
			map[string]any{"assigned_to": toID})
		b.publishReassigned(ctx, t, fromID, toID, events.UserActor(actor.ID), false, now)
	}
	b.logger.Info("tickets reassigned", zap.String("from", fromID), zap.String("to", toID), zap.Int("moved", moved))
	return moved, nil
}

func (b *WorkloadBalancer) publishReassigned(ctx context.Context, ticket domain.Ticket, fromID, toID string, actor events.Actor, automatic bool, at time.Time) {
	if b.dispatcher == nil {
		return
	}
	previous := fromID
	ticket.AssignedTo = &toID
	b.dispatcher.Publish(ctx, events.New(events.EventTicketAssigned, ticket.ID, actor, at,
		events.TicketAssignedPayload{Ticket: ticket, PreviousAssignee: &previous, Automatic: automatic}))
}
