package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
)

// NotificationRepository persists notification records and their delivery state.
type NotificationRepository interface {
	Create(ctx context.Context, n *domain.Notification) error
	GetByID(ctx context.Context, id string) (*domain.Notification, error)
	// UpdateStatus moves the record to status only when it is currently in from.
	UpdateStatus(ctx context.Context, id string, from, to domain.NotificationStatus, errMsg *string, at time.Time) (bool, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]domain.Notification, error)
}

type notificationRepository struct {
	pool *pgxpool.Pool
}

// NewNotificationRepository builds repository.
func NewNotificationRepository(pool *pgxpool.Pool) NotificationRepository {
	return &notificationRepository{pool: pool}
}

const notificationColumns = `id, ticket_id, user_id, channel, type, subject, message, metadata, status,
               error_message, sent_at, delivered_at, created_at`

func (r *notificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	metadata := n.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	const query = `
        INSERT INTO notifications (ticket_id, user_id, channel, type, subject, message, metadata, status)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		n.TicketID,
		n.UserID,
		n.Channel,
		n.Type,
		n.Subject,
		n.Message,
		metadata,
		n.Status,
	).Scan(&n.ID, &n.CreatedAt)
}

func (r *notificationRepository) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE id=$1`
	return scanNotification(r.pool.QueryRow(ctx, query, id))
}

func (r *notificationRepository) UpdateStatus(ctx context.Context, id string, from, to domain.NotificationStatus, errMsg *string, at time.Time) (bool, error) {
	const query = `
        UPDATE notifications SET status=$1, error_message=$2,
            sent_at=CASE WHEN $1='sent' THEN $3 ELSE sent_at END,
            delivered_at=CASE WHEN $1='delivered' THEN $3 ELSE delivered_at END
        WHERE id=$4 AND status=$5`
	cmd, err := r.pool.Exec(ctx, query, to, errMsg, at, id, from)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *notificationRepository) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE user_id=$1 ORDER BY created_at DESC LIMIT $2`
	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *n)
	}
	return result, rows.Err()
}

func scanNotification(row pgx.Row) (*domain.Notification, error) {
	var n domain.Notification
	if err := row.Scan(
		&n.ID,
		&n.TicketID,
		&n.UserID,
		&n.Channel,
		&n.Type,
		&n.Subject,
		&n.Message,
		&n.Metadata,
		&n.Status,
		&n.ErrorMessage,
		&n.SentAt,
		&n.DeliveredAt,
		&n.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &n, nil
}
