package events

import (
	"time"

	"github.com/mcdev12/brainstorm/go/internal/models"
)

// Event payload types shared between the coordinator, gateway and outbox.

// SessionStartedPayload is the payload for a SESSION_STARTED event
type SessionStartedPayload struct {
	SessionID   string    `json:"session_id"`
	TeamID      string    `json:"team_id"`
	TopicID     string    `json:"topic_id"`
	RoundCount  int       `json:"round_count"`
	DurationSec int       `json:"round_duration_sec"`
	StartedAt   time.Time `json:"started_at"`
}

// TimerTickPayload is sent once per second while a round runs
type TimerTickPayload struct {
	RoundNumber      int               `json:"round_number"`
	RemainingSeconds int               `json:"remaining_seconds"`
	TimerState       models.TimerState `json:"timer_state"`
}

// RoundStartPayload announces a newly opened round
type RoundStartPayload struct {
	Round                 models.Round `json:"round"`
	TimerRemainingSeconds int          `json:"timer_remaining_seconds"`
}

// RoundEndPayload announces a closed round
type RoundEndPayload struct {
	RoundNumber int                `json:"round_number"`
	Reason      models.CloseReason `json:"reason"`
	EndedAt     time.Time          `json:"ended_at"`
	Submitted   int                `json:"submitted"`
	RosterSize  int                `json:"roster_size"`
}

// MemberSubmittedPayload tells the session a member handed in their ideas
type MemberSubmittedPayload struct {
	UserID      string    `json:"user_id"`
	UserName    string    `json:"user_name"`
	RoundNumber int       `json:"round_number"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// SessionPausedPayload is the payload for a SESSION_PAUSED event
type SessionPausedPayload struct {
	SessionID        string    `json:"session_id"`
	RoundNumber      int       `json:"round_number"`
	RemainingSeconds int       `json:"remaining_seconds"`
	PausedAt         time.Time `json:"paused_at"`
	PausedBy         string    `json:"paused_by"`
}

// SessionResumedPayload is the payload for a SESSION_RESUMED event
type SessionResumedPayload struct {
	SessionID        string    `json:"session_id"`
	RoundNumber      int       `json:"round_number"`
	RemainingSeconds int       `json:"remaining_seconds"`
	ResumedAt        time.Time `json:"resumed_at"`
}

// SessionCompletedPayload is the payload for a SESSION_COMPLETED event
type SessionCompletedPayload struct {
	SessionID    string    `json:"session_id"`
	CompletedAt  time.Time `json:"completed_at"`
	RoundsPlayed int       `json:"rounds_played"`
	EndedEarly   bool      `json:"ended_early"`
}

// PresencePayload is the payload for USER_JOINED and USER_LEFT
type PresencePayload struct {
	UserID string `json:"user_id"`
}

// ErrorPayload reports a rejected client action. RoundNumber and Ideas echo
// a rejected submission so the client can restore what the user typed.
type ErrorPayload struct {
	Code        string   `json:"code"`
	Message     string   `json:"message"`
	RoundNumber int      `json:"round_number,omitempty"`
	Ideas       []string `json:"ideas,omitempty"`
}

// SubmitIdeasPayload is the client payload for SUBMIT_IDEAS
type SubmitIdeasPayload struct {
	RoundNumber int      `json:"round_number"`
	Ideas       []string `json:"ideas"`
}
