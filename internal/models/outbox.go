package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventTypeOrderCreated tags the single event type this service emits.
const EventTypeOrderCreated = "OrderCreated"

// OutboxEvent is a pending broker notification. It is always inserted in the
// same transaction as the order that caused it, and only the relay flips it
// to processed.
type OutboxEvent struct {
	ID          uuid.UUID       `db:"id"`
	EventType   string          `db:"event_type"`
	Payload     json.RawMessage `db:"payload"`
	Processed   bool            `db:"processed"`
	CreatedAt   time.Time       `db:"created_at"`
	ProcessedAt *time.Time      `db:"processed_at"`
}

// MarkProcessed records a successful delivery. The transition is one-way and
// the processed timestamp is set exactly once.
func (e *OutboxEvent) MarkProcessed(at time.Time) {
	if e.Processed {
		return
	}
	e.Processed = true
	e.ProcessedAt = &at
}
