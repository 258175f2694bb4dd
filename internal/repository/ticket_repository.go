package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
)

// ErrTicketChanged reports that a guarded write found the ticket in another status.
var ErrTicketChanged = errors.New("ticket changed concurrently")

// TicketFilter captures ticket search parameters.
type TicketFilter struct {
	CreatedBy  *string
	AssignedTo *string
	// VisibleTo matches tickets created by or assigned to the user.
	VisibleTo       *string
	Statuses        []domain.TicketStatus
	Priorities      []domain.TicketPriority
	ExcludePriority *domain.TicketPriority
	Category        *string
	CreatedFrom     *time.Time
	CreatedTo       *time.Time
	// OldestFirst orders by created_at ascending instead of updated_at descending.
	OldestFirst bool
	// Limit <= 0 returns every matching row.
	Limit int
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	Update(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	// CountByAssignee returns ticket counts per assignee restricted to statuses.
	// Assignees without tickets are absent from the map.
	CountByAssignee(ctx context.Context, assigneeIDs []string, statuses []domain.TicketStatus) (map[string]int, error)
	// RecordFirstResponse stores at and responseMet and moves a new ticket to
	// in_progress, all in one statement guarded by first_response_at IS NULL.
	// It reports false when the first response was already recorded.
	RecordFirstResponse(ctx context.Context, id string, at time.Time, responseMet *bool) (bool, error)
	// CloseWithComment inserts comment (when non-nil) and writes the lifecycle
	// columns of ticket in one transaction. The write only applies while the
	// stored status still equals from; otherwise it returns ErrTicketChanged.
	CloseWithComment(ctx context.Context, ticket *domain.Ticket, from domain.TicketStatus, comment *domain.TicketComment) error
	// ClaimBreachNotified flips the per-kind breach flag from false to true.
	// It reports false when another pass already claimed it.
	ClaimBreachNotified(ctx context.Context, id string, kind domain.SLAKind) (bool, error)
	ReleaseBreachNotified(ctx context.Context, id string, kind domain.SLAKind) error
	Reassign(ctx context.Context, ticketIDs []string, assigneeID string) (int, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, ticket_number, title, description, status, priority, category, created_by, assigned_to,
               contact_medium, contact_value, created_at, updated_at, first_response_at, resolved_at, closed_at,
               sla_response_time_hours, sla_resolution_time_hours, response_sla_met, resolution_sla_met,
               sla_breach_notified, response_breach_notified, resolution_breach_notified`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (title, description, status, priority, category, created_by, assigned_to,
            contact_medium, contact_value, sla_response_time_hours, sla_resolution_time_hours)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
        RETURNING id, ticket_number, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		ticket.Title,
		ticket.Description,
		ticket.Status,
		ticket.Priority,
		ticket.Category,
		ticket.CreatedBy,
		ticket.AssignedTo,
		ticket.ContactMedium,
		ticket.ContactValue,
		ticket.SLAResponseTimeHours,
		ticket.SLAResolutionTimeHours,
	).Scan(&ticket.ID, &ticket.TicketNumber, &ticket.CreatedAt, &ticket.UpdatedAt)
}

// Update writes the mutable columns. first_response_at and the breach flags
// have their own conditional writers and are left untouched.
func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET title=$1, description=$2, status=$3, priority=$4, category=$5, assigned_to=$6,
            contact_medium=$7, contact_value=$8, resolved_at=$9, closed_at=$10,
            response_sla_met=$11, resolution_sla_met=$12, updated_at=NOW()
        WHERE id=$13
        RETURNING updated_at`
	err := r.pool.QueryRow(ctx, query,
		ticket.Title,
		ticket.Description,
		ticket.Status,
		ticket.Priority,
		ticket.Category,
		ticket.AssignedTo,
		ticket.ContactMedium,
		ticket.ContactValue,
		ticket.ResolvedAt,
		ticket.ClosedAt,
		ticket.ResponseSLAMet,
		ticket.ResolutionSLAMet,
		ticket.ID,
	).Scan(&ticket.UpdatedAt)
	return err
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	ticket, err := scanTicket(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

func (r *ticketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.CreatedBy != nil {
		args = append(args, *filter.CreatedBy)
		clauses = append(clauses, fmt.Sprintf("created_by=$%d", len(args)))
	}
	if filter.AssignedTo != nil {
		args = append(args, *filter.AssignedTo)
		clauses = append(clauses, fmt.Sprintf("assigned_to=$%d", len(args)))
	}
	if filter.VisibleTo != nil {
		args = append(args, *filter.VisibleTo)
		clauses = append(clauses, fmt.Sprintf("(created_by=$%d OR assigned_to=$%d)", len(args), len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Priorities) > 0 {
		placeholders := make([]string, len(filter.Priorities))
		for i, pr := range filter.Priorities {
			args = append(args, pr)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("priority IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.ExcludePriority != nil {
		args = append(args, *filter.ExcludePriority)
		clauses = append(clauses, fmt.Sprintf("priority<>$%d", len(args)))
	}
	if filter.Category != nil {
		args = append(args, *filter.Category)
		clauses = append(clauses, fmt.Sprintf("LOWER(category)=LOWER($%d)", len(args)))
	}
	if filter.CreatedFrom != nil {
		args = append(args, *filter.CreatedFrom)
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.CreatedTo != nil {
		args = append(args, *filter.CreatedTo)
		clauses = append(clauses, fmt.Sprintf("created_at <= $%d", len(args)))
	}

	order := "updated_at DESC"
	if filter.OldestFirst {
		order = "created_at ASC, id ASC"
	}
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY %s`,
		ticketColumns, strings.Join(clauses, " AND "), order)
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

func (r *ticketRepository) CountByAssignee(ctx context.Context, assigneeIDs []string, statuses []domain.TicketStatus) (map[string]int, error) {
	counts := make(map[string]int, len(assigneeIDs))
	if len(assigneeIDs) == 0 {
		return counts, nil
	}
	statusArgs := make([]string, len(statuses))
	for i, s := range statuses {
		statusArgs[i] = string(s)
	}
	const query = `
        SELECT assigned_to, COUNT(*) FROM tickets
        WHERE assigned_to = ANY($1::uuid[]) AND status = ANY($2::text[])
        GROUP BY assigned_to`
	rows, err := r.pool.Query(ctx, query, assigneeIDs, statusArgs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id    string
			count int
		)
		if err := rows.Scan(&id, &count); err != nil {
			return nil, err
		}
		counts[id] = count
	}
	return counts, rows.Err()
}

func (r *ticketRepository) RecordFirstResponse(ctx context.Context, id string, at time.Time, responseMet *bool) (bool, error) {
	const query = `
        UPDATE tickets SET first_response_at=$1, response_sla_met=$2,
            status=CASE WHEN status=$3 THEN $4 ELSE status END, updated_at=NOW()
        WHERE id=$5 AND first_response_at IS NULL`
	cmd, err := r.pool.Exec(ctx, query, at, responseMet,
		string(domain.TicketStatusNew), string(domain.TicketStatusInProgress), id)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *ticketRepository) CloseWithComment(ctx context.Context, ticket *domain.Ticket, from domain.TicketStatus, comment *domain.TicketComment) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if comment != nil {
		if err := insertComment(ctx, tx, comment); err != nil {
			return err
		}
	}

	// SET expressions read the old row, so the first response is only taken when none was stored.
	const query = `
        UPDATE tickets SET status=$1, resolved_at=$2, closed_at=$3, resolution_sla_met=$4,
            first_response_at=COALESCE(first_response_at, $5),
            response_sla_met=CASE WHEN first_response_at IS NULL THEN $6 ELSE response_sla_met END,
            updated_at=NOW()
        WHERE id=$7 AND status=$8
        RETURNING updated_at`
	err = tx.QueryRow(ctx, query,
		ticket.Status,
		ticket.ResolvedAt,
		ticket.ClosedAt,
		ticket.ResolutionSLAMet,
		ticket.FirstResponseAt,
		ticket.ResponseSLAMet,
		ticket.ID,
		from,
	).Scan(&ticket.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrTicketChanged
	}
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func breachColumn(kind domain.SLAKind) (string, error) {
	switch kind {
	case domain.SLAKindResponse:
		return "response_breach_notified", nil
	case domain.SLAKindResolution:
		return "resolution_breach_notified", nil
	}
	return "", fmt.Errorf("unknown sla kind %q", kind)
}

func (r *ticketRepository) ClaimBreachNotified(ctx context.Context, id string, kind domain.SLAKind) (bool, error) {
	column, err := breachColumn(kind)
	if err != nil {
		return false, err
	}
	query := fmt.Sprintf(`
        UPDATE tickets SET %[1]s=TRUE, sla_breach_notified=TRUE, updated_at=NOW()
        WHERE id=$1 AND %[1]s=FALSE`, column)
	cmd, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

// ReleaseBreachNotified undoes a claim whose notification could not be recorded.
func (r *ticketRepository) ReleaseBreachNotified(ctx context.Context, id string, kind domain.SLAKind) error {
	column, err := breachColumn(kind)
	if err != nil {
		return err
	}
	other := "resolution_breach_notified"
	if kind == domain.SLAKindResolution {
		other = "response_breach_notified"
	}
	query := fmt.Sprintf(`UPDATE tickets SET %s=FALSE, sla_breach_notified=%s WHERE id=$1`, column, other)
	cmd, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) Reassign(ctx context.Context, ticketIDs []string, assigneeID string) (int, error) {
	if len(ticketIDs) == 0 {
		return 0, nil
	}
	const query = `UPDATE tickets SET assigned_to=$1, updated_at=NOW() WHERE id = ANY($2::uuid[])`
	cmd, err := r.pool.Exec(ctx, query, assigneeID, ticketIDs)
	if err != nil {
		return 0, err
	}
	return int(cmd.RowsAffected()), nil
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := row.Scan(
		&ticket.ID,
		&ticket.TicketNumber,
		&ticket.Title,
		&ticket.Description,
		&ticket.Status,
		&ticket.Priority,
		&ticket.Category,
		&ticket.CreatedBy,
		&ticket.AssignedTo,
		&ticket.ContactMedium,
		&ticket.ContactValue,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.FirstResponseAt,
		&ticket.ResolvedAt,
		&ticket.ClosedAt,
		&ticket.SLAResponseTimeHours,
		&ticket.SLAResolutionTimeHours,
		&ticket.ResponseSLAMet,
		&ticket.ResolutionSLAMet,
		&ticket.SLABreachNotified,
		&ticket.ResponseBreachNotified,
		&ticket.ResolutionBreachNotified,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}
