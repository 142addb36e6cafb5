package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"HoneyHubUsers/internal/domain"
)

type PlansStore struct {
	pool *pgxpool.Pool
}

func NewPlansStore(pool *pgxpool.Pool) *PlansStore {
	return &PlansStore{pool: pool}
}

func (s *PlansStore) GetPlanByID(ctx context.Context, id int64) (domain.SubscriptionPlan, error) {
	const q = `
		SELECT id, name, display_name, is_active, is_default, created_by, created_at, updated_by, updated_at
		FROM subscription_plans
		WHERE id = $1
	`

	var p domain.SubscriptionPlan
	err := s.pool.QueryRow(ctx, q, id).Scan(
		&p.ID,
		&p.Name,
		&p.DisplayName,
		&p.IsActive,
		&p.IsDefault,
		&p.CreatedBy,
		&p.CreatedAt,
		&p.UpdatedBy,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.SubscriptionPlan{}, domain.ErrNotFound
		}
		return domain.SubscriptionPlan{}, fmt.Errorf("get plan by id: %w", err)
	}
	return p, nil
}
