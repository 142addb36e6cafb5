// Package outbox stages integration events inside the caller's transaction.
// Nothing here commits or publishes; a separate relay drains pending rows.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"HoneyHubUsers/internal/domain"
)

const SystemActor = "System"

// Sink is the open transaction an event is staged into.
type Sink interface {
	InsertOutboxMessage(ctx context.Context, msg domain.OutboxMessage) error
}

type Event struct {
	EventType         string
	AggregateType     string
	AggregatePublicID uuid.UUID
	Payload           any
	Headers           map[string]string
	CorrelationID     *uuid.UUID
	CausationID       *uuid.UUID
	// AvailableAt defers delivery; nil means immediately.
	AvailableAt *time.Time
}

type Writer struct {
	Now   func() time.Time
	NewID func() uuid.UUID
}

// Enqueue serializes ev.Payload and stages exactly one pending record in sink.
// A serialization failure stages nothing.
func (w *Writer) Enqueue(ctx context.Context, sink Sink, ev Event) (domain.OutboxMessage, error) {
	if sink == nil {
		return domain.OutboxMessage{}, fmt.Errorf("outbox: nil sink: %w", domain.ErrInvalidArgument)
	}
	if strings.TrimSpace(ev.EventType) == "" {
		return domain.OutboxMessage{}, fmt.Errorf("outbox: event type required: %w", domain.ErrInvalidArgument)
	}
	if strings.TrimSpace(ev.AggregateType) == "" {
		return domain.OutboxMessage{}, fmt.Errorf("outbox: aggregate type required: %w", domain.ErrInvalidArgument)
	}
	if ev.AggregatePublicID == uuid.Nil {
		return domain.OutboxMessage{}, fmt.Errorf("outbox: aggregate id required: %w", domain.ErrInvalidArgument)
	}

	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return domain.OutboxMessage{}, fmt.Errorf("outbox: marshal %s payload: %w", ev.EventType, err)
	}

	now := w.now()
	availableAt := now
	if ev.AvailableAt != nil {
		availableAt = ev.AvailableAt.UTC()
	}

	msg := domain.OutboxMessage{
		PublicID:          w.newID(),
		AggregateType:     ev.AggregateType,
		AggregatePublicID: ev.AggregatePublicID,
		EventType:         ev.EventType,
		Payload:           payload,
		Headers:           cloneHeaders(ev.Headers),
		Status:            domain.OutboxPending,
		Attempts:          0,
		OccurredAt:        now,
		AvailableAt:       availableAt,
		CorrelationID:     ev.CorrelationID,
		CausationID:       ev.CausationID,
		CreatedBy:         SystemActor,
	}

	if err := sink.InsertOutboxMessage(ctx, msg); err != nil {
		return domain.OutboxMessage{}, fmt.Errorf("outbox: stage %s: %w", ev.EventType, err)
	}
	return msg, nil
}

func (w *Writer) now() time.Time {
	if w.Now != nil {
		return w.Now().UTC()
	}
	return time.Now().UTC()
}

func (w *Writer) newID() uuid.UUID {
	if w.NewID != nil {
		return w.NewID()
	}
	return uuid.New()
}

func cloneHeaders(h map[string]string) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}
