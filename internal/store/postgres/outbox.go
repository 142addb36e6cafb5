package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"HoneyHubUsers/internal/domain"
)

func (t *pgTx) InsertOutboxMessage(ctx context.Context, msg domain.OutboxMessage) error {
	const q = `
		INSERT INTO outbox_messages (
			public_id, aggregate_type, aggregate_public_id, event_type, payload, headers,
			status, attempts, occurred_at, available_at, correlation_id, causation_id, created_by
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	headers, err := headersJSON(msg.Headers)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx, q,
		msg.PublicID,
		msg.AggregateType,
		msg.AggregatePublicID,
		msg.EventType,
		[]byte(msg.Payload),
		headers,
		int16(msg.Status),
		msg.Attempts,
		msg.OccurredAt,
		msg.AvailableAt,
		nullUUID(msg.CorrelationID),
		nullUUID(msg.CausationID),
		msg.CreatedBy,
	)
	if err != nil {
		return fmt.Errorf("insert outbox message: %w", err)
	}
	return nil
}

type OutboxStore struct {
	pool *pgxpool.Pool
}

func NewOutboxStore(pool *pgxpool.Pool) *OutboxStore {
	return &OutboxStore{pool: pool}
}

func (s *OutboxStore) ListOutboxByAggregate(ctx context.Context, aggregateType string, aggregateID uuid.UUID) ([]domain.OutboxMessage, error) {
	const q = `
		SELECT id, public_id, aggregate_type, aggregate_public_id, event_type, payload, headers,
		       status, attempts, occurred_at, available_at, correlation_id, causation_id, created_by
		FROM outbox_messages
		WHERE aggregate_type = $1 AND aggregate_public_id = $2
		ORDER BY id
	`

	rows, err := s.pool.Query(ctx, q, aggregateType, aggregateID)
	if err != nil {
		return nil, fmt.Errorf("list outbox: %w", err)
	}
	defer rows.Close()

	var out []domain.OutboxMessage
	for rows.Next() {
		var (
			m             domain.OutboxMessage
			publicID      pgtype.UUID
			aggregatePub  pgtype.UUID
			payload       []byte
			headers       []byte
			status        int16
			correlationID pgtype.UUID
			causationID   pgtype.UUID
		)
		if err := rows.Scan(
			&m.ID,
			&publicID,
			&m.AggregateType,
			&aggregatePub,
			&m.EventType,
			&payload,
			&headers,
			&status,
			&m.Attempts,
			&m.OccurredAt,
			&m.AvailableAt,
			&correlationID,
			&causationID,
			&m.CreatedBy,
		); err != nil {
			return nil, fmt.Errorf("scan outbox: %w", err)
		}
		m.PublicID = uuidOrNil(publicID)
		m.AggregatePublicID = uuidOrNil(aggregatePub)
		m.Payload = payload
		m.Status = domain.OutboxStatus(status)
		m.OccurredAt = m.OccurredAt.UTC()
		m.AvailableAt = m.AvailableAt.UTC()
		m.CorrelationID = uuidPtr(correlationID)
		m.CausationID = uuidPtr(causationID)
		if m.Headers, err = headersFromJSON(headers); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list outbox: %w", err)
	}
	return out, nil
}
