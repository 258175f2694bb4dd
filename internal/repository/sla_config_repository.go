package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
)

// SLAConfigRepository persists SLA policies. Policies are deactivated, never deleted.
type SLAConfigRepository interface {
	List(ctx context.Context, activeOnly bool) ([]domain.SLAConfiguration, error)
	GetByID(ctx context.Context, id string) (*domain.SLAConfiguration, error)
	// Upsert inserts the policy or updates the row sharing its (category, priority).
	Upsert(ctx context.Context, cfg *domain.SLAConfiguration) error
	SetActive(ctx context.Context, id string, active bool) error
}

type slaConfigRepository struct {
	pool *pgxpool.Pool
}

// NewSLAConfigRepository builds repository.
func NewSLAConfigRepository(pool *pgxpool.Pool) SLAConfigRepository {
	return &slaConfigRepository{pool: pool}
}

const slaConfigColumns = `id, name, category, priority, response_time_hours, resolution_time_hours,
               auto_assign_to_role, is_active, created_at, updated_at`

func (r *slaConfigRepository) List(ctx context.Context, activeOnly bool) ([]domain.SLAConfiguration, error) {
	query := `SELECT ` + slaConfigColumns + ` FROM sla_configurations
        WHERE ($1 = FALSE OR is_active = TRUE)
        ORDER BY priority, category, created_at`
	rows, err := r.pool.Query(ctx, query, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.SLAConfiguration
	for rows.Next() {
		cfg, err := scanSLAConfig(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *cfg)
	}
	return result, rows.Err()
}

func (r *slaConfigRepository) GetByID(ctx context.Context, id string) (*domain.SLAConfiguration, error) {
	query := `SELECT ` + slaConfigColumns + ` FROM sla_configurations WHERE id=$1`
	return scanSLAConfig(r.pool.QueryRow(ctx, query, id))
}

func (r *slaConfigRepository) Upsert(ctx context.Context, cfg *domain.SLAConfiguration) error {
	const query = `
        INSERT INTO sla_configurations (name, category, priority, response_time_hours, resolution_time_hours,
            auto_assign_to_role, is_active)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        ON CONFLICT (category, priority) DO UPDATE SET
            name=EXCLUDED.name,
            response_time_hours=EXCLUDED.response_time_hours,
            resolution_time_hours=EXCLUDED.resolution_time_hours,
            auto_assign_to_role=EXCLUDED.auto_assign_to_role,
            is_active=EXCLUDED.is_active,
            updated_at=NOW()
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		cfg.Name,
		cfg.Category,
		cfg.Priority,
		cfg.ResponseTimeHours,
		cfg.ResolutionTimeHours,
		cfg.AutoAssignToRole,
		cfg.IsActive,
	).Scan(&cfg.ID, &cfg.CreatedAt, &cfg.UpdatedAt)
}

func (r *slaConfigRepository) SetActive(ctx context.Context, id string, active bool) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE sla_configurations SET is_active=$1, updated_at=NOW() WHERE id=$2`, active, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func scanSLAConfig(row pgx.Row) (*domain.SLAConfiguration, error) {
	var cfg domain.SLAConfiguration
	if err := row.Scan(
		&cfg.ID,
		&cfg.Name,
		&cfg.Category,
		&cfg.Priority,
		&cfg.ResponseTimeHours,
		&cfg.ResolutionTimeHours,
		&cfg.AutoAssignToRole,
		&cfg.IsActive,
		&cfg.CreatedAt,
		&cfg.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &cfg, nil
}
