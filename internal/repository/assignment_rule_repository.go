package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
)

// AssignmentRuleRepository persists routing rules. Conditions live in a JSONB column.
type AssignmentRuleRepository interface {
	// List returns rules ordered by priority descending, oldest first on ties.
	List(ctx context.Context, activeOnly bool) ([]domain.AssignmentRule, error)
	GetByID(ctx context.Context, id string) (*domain.AssignmentRule, error)
	Create(ctx context.Context, rule *domain.AssignmentRule) error
	Update(ctx context.Context, rule *domain.AssignmentRule) error
	SetActive(ctx context.Context, id string, active bool) error
}

type assignmentRuleRepository struct {
	pool *pgxpool.Pool
}

// NewAssignmentRuleRepository builds repository.
func NewAssignmentRuleRepository(pool *pgxpool.Pool) AssignmentRuleRepository {
	return &assignmentRuleRepository{pool: pool}
}

const ruleColumns = `id, name, priority, conditions, assign_to_user_id, assign_to_role, is_active, created_at, updated_at`

func (r *assignmentRuleRepository) List(ctx context.Context, activeOnly bool) ([]domain.AssignmentRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM assignment_rules
        WHERE ($1 = FALSE OR is_active = TRUE)
        ORDER BY priority DESC, created_at ASC`
	rows, err := r.pool.Query(ctx, query, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.AssignmentRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *rule)
	}
	return result, rows.Err()
}

func (r *assignmentRuleRepository) GetByID(ctx context.Context, id string) (*domain.AssignmentRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM assignment_rules WHERE id=$1`
	return scanRule(r.pool.QueryRow(ctx, query, id))
}

func (r *assignmentRuleRepository) Create(ctx context.Context, rule *domain.AssignmentRule) error {
	conditions, err := json.Marshal(rule.Conditions)
	if err != nil {
		return fmt.Errorf("encode conditions: %w", err)
	}
	const query = `
        INSERT INTO assignment_rules (name, priority, conditions, assign_to_user_id, assign_to_role, is_active)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		rule.Name,
		rule.Priority,
		conditions,
		rule.AssignToUserID,
		rule.AssignToRole,
		rule.IsActive,
	).Scan(&rule.ID, &rule.CreatedAt, &rule.UpdatedAt)
}

func (r *assignmentRuleRepository) Update(ctx context.Context, rule *domain.AssignmentRule) error {
	conditions, err := json.Marshal(rule.Conditions)
	if err != nil {
		return fmt.Errorf("encode conditions: %w", err)
	}
	const query = `
        UPDATE assignment_rules SET name=$1, priority=$2, conditions=$3, assign_to_user_id=$4,
            assign_to_role=$5, is_active=$6, updated_at=NOW()
        WHERE id=$7
        RETURNING updated_at`
	return r.pool.QueryRow(ctx, query,
		rule.Name,
		rule.Priority,
		conditions,
		rule.AssignToUserID,
		rule.AssignToRole,
		rule.IsActive,
		rule.ID,
	).Scan(&rule.UpdatedAt)
}

func (r *assignmentRuleRepository) SetActive(ctx context.Context, id string, active bool) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE assignment_rules SET is_active=$1, updated_at=NOW() WHERE id=$2`, active, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func scanRule(row pgx.Row) (*domain.AssignmentRule, error) {
	var (
		rule       domain.AssignmentRule
		conditions []byte
	)
	if err := row.Scan(
		&rule.ID,
		&rule.Name,
		&rule.Priority,
		&conditions,
		&rule.AssignToUserID,
		&rule.AssignToRole,
		&rule.IsActive,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if len(conditions) > 0 {
		if err := json.Unmarshal(conditions, &rule.Conditions); err != nil {
			return nil, fmt.Errorf("decode conditions for rule %s: %w", rule.ID, err)
		}
	}
	return &rule, nil
}
