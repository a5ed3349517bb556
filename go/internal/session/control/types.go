package control

import (
	"github.com/google/uuid"
	"github.com/mcdev12/brainstorm/go/internal/models"
	"github.com/mcdev12/brainstorm/go/internal/session/coordinator"
)

type CreateSessionRequest struct {
	TeamID           uuid.UUID `json:"team_id"`
	TopicID          uuid.UUID `json:"topic_id"`
	RoundCount       int       `json:"round_count"`
	RoundDurationSec int       `json:"round_duration_sec,omitempty"`
}

type CreateSessionResponse struct {
	Session models.Session `json:"session"`
}

type ControlSessionRequest struct {
	SessionID uuid.UUID `json:"session_id"`
	Action    string    `json:"action"`
}

type ControlSessionResponse struct {
	Status models.SessionStatus `json:"status"`
}

// SessionRequest addresses a session for the read calls.
type SessionRequest struct {
	SessionID uuid.UUID `json:"session_id"`
}

type SessionStateResponse struct {
	State coordinator.Snapshot `json:"state"`
}

type ListRoundsResponse struct {
	Rounds []models.Round `json:"rounds"`
}

type SessionIdeasResponse struct {
	Rounds []coordinator.RoundIdeas `json:"rounds"`
}

type SessionLogResponse struct {
	Entries []models.SessionLog `json:"entries"`
}
