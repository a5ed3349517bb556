package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus defines the lifecycle status of a brainstorming session.
type SessionStatus string

const (
	SessionStatusPending   SessionStatus = "PENDING"
	SessionStatusRunning   SessionStatus = "RUNNING"
	SessionStatusPaused    SessionStatus = "PAUSED"
	SessionStatusCompleted SessionStatus = "COMPLETED"
)

// Active reports whether the session still blocks its team from starting another one.
func (s SessionStatus) Active() bool {
	return s != SessionStatusCompleted
}

const (
	MinRoundCount = 2
	MaxRoundCount = 10

	DefaultRoundDurationSec = 300
)

// Session represents one 6-3-5 brainstorming run of a team against a topic.
type Session struct {
	ID               uuid.UUID     `json:"id"`
	TeamID           uuid.UUID     `json:"team_id"`
	TopicID          uuid.UUID     `json:"topic_id"`
	Status           SessionStatus `json:"status"`
	CurrentRound     int           `json:"current_round"`
	RoundCount       int           `json:"round_count"`
	RoundDurationSec int           `json:"round_duration_sec"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}
