package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/mock"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
	"github.com/spec-kit/helpdesk-sla/internal/repository"
)

var baseTime = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type fixedClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFixedClock(t time.Time) *fixedClock { return &fixedClock{t: t} }

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fakeTicketRepo struct {
	mu      sync.Mutex
	clock   func() time.Time
	seq     int64
	tickets map[string]*domain.Ticket
	order   []string
	getErr  map[string]error
	// failOnce holds an error returned by the next call of the named method.
	failOnce map[string]error
	// comments receives closing comments written by CloseWithComment.
	comments *fakeCommentRepo
}

func newFakeTicketRepo(clock func() time.Time) *fakeTicketRepo {
	return &fakeTicketRepo{
		clock:    clock,
		tickets:  map[string]*domain.Ticket{},
		getErr:   map[string]error{},
		failOnce: map[string]error{},
	}
}

// takeErr must be called with r.mu held.
func (r *fakeTicketRepo) takeErr(method string) error {
	err := r.failOnce[method]
	delete(r.failOnce, method)
	return err
}

func (r *fakeTicketRepo) failNext(method string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failOnce[method] = err
}

func (r *fakeTicketRepo) Create(_ context.Context, t *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	t.ID = fmt.Sprintf("ticket-%d", r.seq)
	t.TicketNumber = r.seq
	if t.CreatedAt.IsZero() {
		t.CreatedAt = r.clock()
	}
	t.UpdatedAt = t.CreatedAt
	cp := *t
	r.tickets[t.ID] = &cp
	r.order = append(r.order, t.ID)
	return nil
}

// put stores a ticket as is, for seeding.
func (r *fakeTicketRepo) put(t domain.Ticket) *domain.Ticket {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	if t.ID == "" {
		t.ID = fmt.Sprintf("ticket-%d", r.seq)
	}
	t.TicketNumber = r.seq
	if t.Status == "" {
		t.Status = domain.TicketStatusNew
	}
	if t.Priority == "" {
		t.Priority = domain.TicketPriorityMedium
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = r.clock()
	}
	r.tickets[t.ID] = &t
	r.order = append(r.order, t.ID)
	cp := t
	return &cp
}

func (r *fakeTicketRepo) Update(_ context.Context, t *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.takeErr("Update"); err != nil {
		return err
	}
	cur, ok := r.tickets[t.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	next := *t
	// Conditional columns keep their stored values.
	next.FirstResponseAt = cur.FirstResponseAt
	next.SLABreachNotified = cur.SLABreachNotified
	next.ResponseBreachNotified = cur.ResponseBreachNotified
	next.ResolutionBreachNotified = cur.ResolutionBreachNotified
	next.UpdatedAt = r.clock()
	r.tickets[t.ID] = &next
	t.UpdatedAt = next.UpdatedAt
	return nil
}

func (r *fakeTicketRepo) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.getErr[id]; err != nil {
		return nil, err
	}
	t, ok := r.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *t
	return &cp, nil
}

func (r *fakeTicketRepo) get(id string) domain.Ticket {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.tickets[id]
}

func (r *fakeTicketRepo) ListWithFilter(_ context.Context, f repository.TicketFilter) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Ticket
	for _, id := range r.order {
		t := r.tickets[id]
		if f.CreatedBy != nil && !t.IsCreatedBy(*f.CreatedBy) {
			continue
		}
		if f.AssignedTo != nil && !t.IsAssignedTo(*f.AssignedTo) {
			continue
		}
		if f.VisibleTo != nil && !t.IsCreatedBy(*f.VisibleTo) && !t.IsAssignedTo(*f.VisibleTo) {
			continue
		}
		if len(f.Statuses) > 0 && !containsStatus(f.Statuses, t.Status) {
			continue
		}
		if len(f.Priorities) > 0 && !containsPriority(f.Priorities, t.Priority) {
			continue
		}
		if f.ExcludePriority != nil && t.Priority == *f.ExcludePriority {
			continue
		}
		if f.Category != nil && !strings.EqualFold(*f.Category, t.Category) {
			continue
		}
		if f.CreatedFrom != nil && t.CreatedAt.Before(*f.CreatedFrom) {
			continue
		}
		if f.CreatedTo != nil && t.CreatedAt.After(*f.CreatedTo) {
			continue
		}
		out = append(out, *t)
	}
	if f.OldestFirst {
		sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r *fakeTicketRepo) CountByAssignee(_ context.Context, ids []string, statuses []domain.TicketStatus) (map[string]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := map[string]int{}
	for _, t := range r.tickets {
		if t.AssignedTo == nil || !containsStatus(statuses, t.Status) {
			continue
		}
		for _, id := range ids {
			if *t.AssignedTo == id {
				counts[id]++
			}
		}
	}
	return counts, nil
}

func (r *fakeTicketRepo) RecordFirstResponse(_ context.Context, id string, at time.Time, met *bool) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.takeErr("RecordFirstResponse"); err != nil {
		return false, err
	}
	t, ok := r.tickets[id]
	if !ok || t.FirstResponseAt != nil {
		return false, nil
	}
	t.FirstResponseAt = &at
	t.ResponseSLAMet = met
	if t.Status == domain.TicketStatusNew {
		t.Status = domain.TicketStatusInProgress
	}
	t.UpdatedAt = r.clock()
	return true, nil
}

func (r *fakeTicketRepo) CloseWithComment(ctx context.Context, t *domain.Ticket, from domain.TicketStatus, comment *domain.TicketComment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.takeErr("CloseWithComment"); err != nil {
		return err
	}
	cur, ok := r.tickets[t.ID]
	if !ok || cur.Status != from {
		return repository.ErrTicketChanged
	}
	if comment != nil {
		if err := r.comments.Create(ctx, comment); err != nil {
			return err
		}
	}
	cur.Status = t.Status
	cur.ResolvedAt = t.ResolvedAt
	cur.ClosedAt = t.ClosedAt
	cur.ResolutionSLAMet = t.ResolutionSLAMet
	if cur.FirstResponseAt == nil {
		cur.FirstResponseAt = t.FirstResponseAt
		cur.ResponseSLAMet = t.ResponseSLAMet
	}
	cur.UpdatedAt = r.clock()
	t.UpdatedAt = cur.UpdatedAt
	return nil
}

func (r *fakeTicketRepo) ClaimBreachNotified(_ context.Context, id string, kind domain.SLAKind) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tickets[id]
	if !ok {
		return false, pgx.ErrNoRows
	}
	flag := &t.ResponseBreachNotified
	if kind == domain.SLAKindResolution {
		flag = &t.ResolutionBreachNotified
	}
	if *flag {
		return false, nil
	}
	*flag = true
	t.SLABreachNotified = true
	return true, nil
}

func (r *fakeTicketRepo) ReleaseBreachNotified(_ context.Context, id string, kind domain.SLAKind) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tickets[id]
	if !ok {
		return pgx.ErrNoRows
	}
	if kind == domain.SLAKindResolution {
		t.ResolutionBreachNotified = false
	} else {
		t.ResponseBreachNotified = false
	}
	t.SLABreachNotified = t.ResponseBreachNotified || t.ResolutionBreachNotified
	return nil
}

func (r *fakeTicketRepo) Reassign(_ context.Context, ids []string, to string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, id := range ids {
		if t, ok := r.tickets[id]; ok {
			assignee := to
			t.AssignedTo = &assignee
			n++
		}
	}
	return n, nil
}

func containsStatus(list []domain.TicketStatus, s domain.TicketStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsPriority(list []domain.TicketPriority, p domain.TicketPriority) bool {
	for _, v := range list {
		if v == p {
			return true
		}
	}
	return false
}

type fakeUserRepo struct {
	mu    sync.Mutex
	users []domain.User
}

func (r *fakeUserRepo) add(id string, role domain.UserRole, created time.Time, categories ...string) domain.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	u := domain.User{
		ID:         id,
		Email:      id + "@example.com",
		FullName:   strings.ToUpper(id),
		Role:       role,
		IsActive:   true,
		Categories: categories,
		CreatedAt:  created,
	}
	r.users = append(r.users, u)
	return u
}

func (r *fakeUserRepo) Create(_ context.Context, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users = append(r.users, *u)
	return nil
}

func (r *fakeUserRepo) Update(_ context.Context, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.users {
		if r.users[i].ID == u.ID {
			r.users[i] = *u
			return nil
		}
	}
	return pgx.ErrNoRows
}

func (r *fakeUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.ID == id {
			cp := u
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			cp := u
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeUserRepo) ListActive(_ context.Context, roles []domain.UserRole) ([]domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.User
	for _, u := range r.users {
		if !u.IsActive {
			continue
		}
		for _, role := range roles {
			if u.Role == role {
				out = append(out, u)
				break
			}
		}
	}
	return out, nil
}

type fakeCommentRepo struct {
	mu       sync.Mutex
	clock    func() time.Time
	comments []domain.TicketComment
	err      error
}

func (r *fakeCommentRepo) Create(_ context.Context, c *domain.TicketComment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	c.ID = fmt.Sprintf("comment-%d", len(r.comments)+1)
	if c.CreatedAt.IsZero() {
		c.CreatedAt = r.clock()
	}
	c.UpdatedAt = c.CreatedAt
	r.comments = append(r.comments, *c)
	return nil
}

func (r *fakeCommentRepo) ListByTicket(_ context.Context, ticketID string, includeInternal bool) ([]domain.TicketComment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.TicketComment
	for _, c := range r.comments {
		if c.TicketID == ticketID && (includeInternal || !c.IsInternal) {
			out = append(out, c)
		}
	}
	return out, nil
}

type fakeHistoryRepo struct {
	mu      sync.Mutex
	entries []domain.TicketHistory
}

func (r *fakeHistoryRepo) Create(_ context.Context, h *domain.TicketHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	h.ID = fmt.Sprintf("history-%d", len(r.entries)+1)
	r.entries = append(r.entries, *h)
	return nil
}

func (r *fakeHistoryRepo) ListByTicket(_ context.Context, ticketID string) ([]domain.TicketHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.TicketHistory
	for _, h := range r.entries {
		if h.TicketID == ticketID {
			out = append(out, h)
		}
	}
	return out, nil
}

func (r *fakeHistoryRepo) count(ticketID string, change domain.TicketChangeType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, h := range r.entries {
		if h.TicketID == ticketID && h.ChangeType == change {
			n++
		}
	}
	return n
}

type fakeSLAConfigRepo struct {
	mu      sync.Mutex
	configs []domain.SLAConfiguration
}

func (r *fakeSLAConfigRepo) List(_ context.Context, activeOnly bool) ([]domain.SLAConfiguration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.SLAConfiguration
	for _, c := range r.configs {
		if activeOnly && !c.IsActive {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (r *fakeSLAConfigRepo) GetByID(_ context.Context, id string) (*domain.SLAConfiguration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.configs {
		if c.ID == id {
			cp := c
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeSLAConfigRepo) Upsert(_ context.Context, cfg *domain.SLAConfiguration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, c := range r.configs {
		if c.Category == cfg.Category && c.Priority == cfg.Priority {
			cfg.ID = c.ID
			r.configs[i] = *cfg
			return nil
		}
	}
	cfg.ID = fmt.Sprintf("sla-%d", len(r.configs)+1)
	r.configs = append(r.configs, *cfg)
	return nil
}

func (r *fakeSLAConfigRepo) SetActive(_ context.Context, id string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.configs {
		if r.configs[i].ID == id {
			r.configs[i].IsActive = active
			return nil
		}
	}
	return pgx.ErrNoRows
}

type fakeRuleRepo struct {
	mu    sync.Mutex
	rules []domain.AssignmentRule
}

func (r *fakeRuleRepo) List(_ context.Context, activeOnly bool) ([]domain.AssignmentRule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.AssignmentRule
	for _, rule := range r.rules {
		if activeOnly && !rule.IsActive {
			continue
		}
		out = append(out, rule)
	}
	domain.SortRules(out)
	return out, nil
}

func (r *fakeRuleRepo) GetByID(_ context.Context, id string) (*domain.AssignmentRule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rule := range r.rules {
		if rule.ID == id {
			cp := rule
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeRuleRepo) Create(_ context.Context, rule *domain.AssignmentRule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rule.ID = fmt.Sprintf("rule-%d", len(r.rules)+1)
	rule.CreatedAt = baseTime.Add(time.Duration(len(r.rules)) * time.Minute)
	r.rules = append(r.rules, *rule)
	return nil
}

func (r *fakeRuleRepo) Update(_ context.Context, rule *domain.AssignmentRule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.rules {
		if r.rules[i].ID == rule.ID {
			r.rules[i] = *rule
			return nil
		}
	}
	return pgx.ErrNoRows
}

func (r *fakeRuleRepo) SetActive(_ context.Context, id string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.rules {
		if r.rules[i].ID == id {
			r.rules[i].IsActive = active
			return nil
		}
	}
	return pgx.ErrNoRows
}

type fakeNotificationRepo struct {
	mu      sync.Mutex
	records []domain.Notification
}

func (r *fakeNotificationRepo) Create(_ context.Context, n *domain.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n.ID = fmt.Sprintf("notification-%d", len(r.records)+1)
	r.records = append(r.records, *n)
	return nil
}

func (r *fakeNotificationRepo) GetByID(_ context.Context, id string) (*domain.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range r.records {
		if n.ID == id {
			cp := n
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeNotificationRepo) UpdateStatus(_ context.Context, id string, from, to domain.NotificationStatus, errMsg *string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.records {
		n := &r.records[i]
		if n.ID != id || n.Status != from {
			continue
		}
		n.Status = to
		n.ErrorMessage = errMsg
		switch to {
		case domain.NotificationSent:
			n.SentAt = &at
		case domain.NotificationDelivered:
			n.DeliveredAt = &at
		}
		return true, nil
	}
	return false, nil
}

func (r *fakeNotificationRepo) ListByUser(_ context.Context, userID string, limit int) ([]domain.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Notification
	for i := len(r.records) - 1; i >= 0; i-- {
		if r.records[i].UserID == userID {
			out = append(out, r.records[i])
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeNotificationRepo) byType(t domain.NotificationType) []domain.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Notification
	for _, n := range r.records {
		if n.Type == t {
			out = append(out, n)
		}
	}
	return out
}

type mockAlertNotifier struct {
	mock.Mock
}

func (m *mockAlertNotifier) NotifySLABreach(ctx context.Context, ticket *domain.Ticket, kind domain.SLAKind, hours float64) error {
	args := m.Called(ctx, ticket.ID, kind)
	return args.Error(0)
}

func (m *mockAlertNotifier) NotifySLAWarning(ctx context.Context, ticket *domain.Ticket, kind domain.SLAKind, hours float64) error {
	args := m.Called(ctx, ticket.ID, kind)
	return args.Error(0)
}

func strPtr(s string) *string { return &s }

func floatPtr(f float64) *float64 { return &f }

func rolePtr(r domain.UserRole) *domain.UserRole { return &r }
