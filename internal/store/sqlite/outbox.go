package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"HoneyHubUsers/internal/domain"
)

func (t *sqliteTx) InsertOutboxMessage(ctx context.Context, msg domain.OutboxMessage) error {
	const q = `
		INSERT INTO outbox_messages (
			public_id, aggregate_type, aggregate_public_id, event_type, payload, headers,
			status, attempts, occurred_at, available_at, correlation_id, causation_id,
			created_by, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var headers any
	if len(msg.Headers) > 0 {
		b, err := json.Marshal(msg.Headers)
		if err != nil {
			return fmt.Errorf("marshal headers: %w", err)
		}
		headers = string(b)
	}

	_, err := t.tx.ExecContext(ctx, q,
		msg.PublicID.String(),
		msg.AggregateType,
		msg.AggregatePublicID.String(),
		msg.EventType,
		string(msg.Payload),
		headers,
		int(msg.Status),
		msg.Attempts,
		toMillis(msg.OccurredAt),
		toMillis(msg.AvailableAt),
		uuidString(msg.CorrelationID),
		uuidString(msg.CausationID),
		msg.CreatedBy,
		toMillis(msg.OccurredAt),
	)
	if err != nil {
		return fmt.Errorf("insert outbox message: %w", err)
	}
	return nil
}

func (s *Store) ListOutboxByAggregate(ctx context.Context, aggregateType string, aggregateID uuid.UUID) ([]domain.OutboxMessage, error) {
	const q = `
		SELECT id, public_id, aggregate_type, aggregate_public_id, event_type, payload, headers,
		       status, attempts, occurred_at, available_at, correlation_id, causation_id, created_by
		FROM outbox_messages
		WHERE aggregate_type = ? AND aggregate_public_id = ?
		ORDER BY id
	`

	rows, err := s.sqlDB.QueryContext(ctx, q, aggregateType, aggregateID.String())
	if err != nil {
		return nil, fmt.Errorf("list outbox: %w", err)
	}
	defer rows.Close()

	var out []domain.OutboxMessage
	for rows.Next() {
		var (
			m             domain.OutboxMessage
			publicID      string
			aggregatePub  string
			payload       string
			headers       sql.NullString
			status        int
			occurredAt    int64
			availableAt   int64
			correlationID sql.NullString
			causationID   sql.NullString
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
			&occurredAt,
			&availableAt,
			&correlationID,
			&causationID,
			&m.CreatedBy,
		); err != nil {
			return nil, fmt.Errorf("scan outbox: %w", err)
		}

		if m.PublicID, err = uuid.Parse(publicID); err != nil {
			return nil, fmt.Errorf("parse outbox id: %w", err)
		}
		if m.AggregatePublicID, err = uuid.Parse(aggregatePub); err != nil {
			return nil, fmt.Errorf("parse aggregate id: %w", err)
		}
		m.Payload = json.RawMessage(payload)
		m.Status = domain.OutboxStatus(status)
		m.OccurredAt = fromMillis(occurredAt)
		m.AvailableAt = fromMillis(availableAt)
		if m.CorrelationID, err = parseUUIDPtr(correlationID); err != nil {
			return nil, err
		}
		if m.CausationID, err = parseUUIDPtr(causationID); err != nil {
			return nil, err
		}
		if headers.Valid && headers.String != "" {
			if err := json.Unmarshal([]byte(headers.String), &m.Headers); err != nil {
				return nil, fmt.Errorf("unmarshal headers: %w", err)
			}
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list outbox: %w", err)
	}
	return out, nil
}

func uuidString(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return id.String()
}

func parseUUIDPtr(v sql.NullString) (*uuid.UUID, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	id, err := uuid.Parse(v.String)
	if err != nil {
		return nil, fmt.Errorf("parse uuid %q: %w", v.String, err)
	}
	return &id, nil
}
