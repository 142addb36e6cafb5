package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type OutboxStatus int

const (
	OutboxPending OutboxStatus = iota
	OutboxProcessing
	OutboxDone
	OutboxFailed
)

func (s OutboxStatus) String() string {
	switch s {
	case OutboxPending:
		return "pending"
	case OutboxProcessing:
		return "processing"
	case OutboxDone:
		return "done"
	case OutboxFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// OutboxMessage is an integration event staged in the same transaction as
// the state change it describes. PublicID is the consumer dedup key.
type OutboxMessage struct {
	ID                int64
	PublicID          uuid.UUID
	AggregateType     string
	AggregatePublicID uuid.UUID
	EventType         string
	Payload           json.RawMessage
	Headers           map[string]string
	Status            OutboxStatus
	Attempts          int
	OccurredAt        time.Time
	AvailableAt       time.Time
	CorrelationID     *uuid.UUID
	CausationID       *uuid.UUID
	CreatedBy         string
}
