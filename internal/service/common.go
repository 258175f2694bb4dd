package service

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
	"github.com/spec-kit/helpdesk-sla/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-sla/pkg/util/errorutil"
)

// Clock returns the current time. Services take one so tests can pin "now".
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c()
}

func lookupError(err error, resource string, details map[string]any) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.NewNotFound(resource, details)
	}
	return apperrors.MapError(err)
}

func requireActor(actor *domain.User) error {
	if actor == nil {
		return apperrors.NewUnauthorized("authentication required")
	}
	if !actor.IsActive {
		return apperrors.NewForbidden("account inactive")
	}
	return nil
}

func requireStaff(actor *domain.User) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	if !actor.IsStaff() {
		return apperrors.NewForbidden("agent or admin role required")
	}
	return nil
}

func requireAdmin(actor *domain.User) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	if actor.Role != domain.RoleAdmin {
		return apperrors.NewForbidden("admin role required")
	}
	return nil
}

// auditLog writes ticket history. Audit failures are logged and never undo
// the change they describe.
type auditLog struct {
	repo   repository.TicketHistoryRepository
	logger *zap.Logger
}

func (a auditLog) record(ctx context.Context, ticketID string, actorID *string, change domain.TicketChangeType, oldValue, newValue map[string]any) {
	if a.repo == nil {
		return
	}
	actorType := domain.ActorSystem
	if actorID != nil {
		actorType = domain.ActorUser
	}
	entry := &domain.TicketHistory{
		TicketID:      ticketID,
		ChangedByType: actorType,
		ChangedByID:   actorID,
		ChangeType:    change,
		OldValue:      oldValue,
		NewValue:      newValue,
	}
	if err := a.repo.Create(ctx, entry); err != nil {
		a.logger.Warn("record ticket history",
			zap.String("ticket_id", ticketID),
			zap.String("change_type", string(change)),
			zap.Error(err),
		)
	}
}

func actorID(actor *domain.User) *string {
	if actor == nil {
		return nil
	}
	id := actor.ID
	return &id
}
