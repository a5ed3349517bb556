package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// NotifyChannel is the Postgres channel that carries new outbox ids.
const NotifyChannel = "session_outbox_events"

var ErrEventNotFound = errors.New("outbox event not found or already sent")

// Event is a session lifecycle event waiting to be relayed downstream.
type Event struct {
	ID        uuid.UUID       `json:"id" db:"id"`
	SessionID uuid.UUID       `json:"session_id" db:"session_id"`
	EventType string          `json:"event_type" db:"event_type"`
	Payload   json.RawMessage `json:"payload" db:"payload"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	SentAt    *time.Time      `json:"sent_at,omitempty" db:"sent_at"`
}

// Publisher delivers an outbox event to the event bus.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}
