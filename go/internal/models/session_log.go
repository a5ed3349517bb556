package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// SessionAction names an entry in a session's audit trail.
type SessionAction string

const (
	ActionCreated        SessionAction = "CREATED"
	ActionStarted        SessionAction = "STARTED"
	ActionPaused         SessionAction = "PAUSED"
	ActionResumed        SessionAction = "RESUMED"
	ActionEnded          SessionAction = "ENDED"
	ActionIdeasSubmitted SessionAction = "IDEAS_SUBMITTED"
	ActionRoundClosed    SessionAction = "ROUND_CLOSED"
	ActionCompleted      SessionAction = "COMPLETED"
)

// SessionLog is one audit entry.
type SessionLog struct {
	ID        uuid.UUID       `json:"id"`
	SessionID uuid.UUID       `json:"session_id"`
	ActorID   *uuid.UUID      `json:"actor_id,omitempty"`
	Action    SessionAction   `json:"action"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}
