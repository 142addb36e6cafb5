package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"HoneyHubUsers/internal/domain"
)

func (s *Store) GetPlanByID(ctx context.Context, id int64) (domain.SubscriptionPlan, error) {
	const q = `
		SELECT id, name, display_name, is_active, is_default, created_by, created_at, updated_by, updated_at
		FROM subscription_plans
		WHERE id = ?
	`

	var (
		p         domain.SubscriptionPlan
		createdAt int64
		updatedAt int64
	)
	err := s.sqlDB.QueryRowContext(ctx, q, id).Scan(
		&p.ID,
		&p.Name,
		&p.DisplayName,
		&p.IsActive,
		&p.IsDefault,
		&p.CreatedBy,
		&createdAt,
		&p.UpdatedBy,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.SubscriptionPlan{}, domain.ErrNotFound
		}
		return domain.SubscriptionPlan{}, fmt.Errorf("get plan by id: %w", err)
	}
	p.CreatedAt = fromMillis(createdAt)
	p.UpdatedAt = fromMillis(updatedAt)
	return p, nil
}

// PutPlan inserts or replaces a plan row.
func (s *Store) PutPlan(ctx context.Context, p domain.SubscriptionPlan) error {
	const q = `
		INSERT INTO subscription_plans (id, name, display_name, is_active, is_default, created_by, created_at, updated_by, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			display_name = excluded.display_name,
			is_active = excluded.is_active,
			is_default = excluded.is_default,
			updated_by = excluded.updated_by,
			updated_at = excluded.updated_at
	`
	_, err := s.sqlDB.ExecContext(ctx, q,
		p.ID, p.Name, p.DisplayName, p.IsActive, p.IsDefault,
		p.CreatedBy, toMillis(p.CreatedAt), p.UpdatedBy, toMillis(p.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put plan: %w", err)
	}
	return nil
}
