package models

import (
	"time"

	"github.com/google/uuid"
)

// TimerState is the externally visible state of a round's timer.
type TimerState string

const (
	TimerStateRunning  TimerState = "RUNNING"
	TimerStatePaused   TimerState = "PAUSED"
	TimerStateFinished TimerState = "FINISHED"
)

// CloseReason records which trigger closed a round.
type CloseReason string

const (
	CloseReasonAllSubmitted CloseReason = "ALL_SUBMITTED"
	CloseReasonTimerExpired CloseReason = "TIMER_EXPIRED"
	CloseReasonSessionEnded CloseReason = "SESSION_ENDED"
)

// Round is one timed writing round of a session. Only the round whose number
// equals the session's current round is mutable.
type Round struct {
	ID            uuid.UUID   `json:"id"`
	SessionID     uuid.UUID   `json:"session_id"`
	RoundNumber   int         `json:"round_number"`
	TimerState    TimerState  `json:"timer_state"`
	StartTime     time.Time   `json:"start_time"`
	EndTime       *time.Time  `json:"end_time,omitempty"`
	PausedAt      *time.Time  `json:"paused_at,omitempty"`
	PausedSeconds int         `json:"paused_seconds"`
	CloseReason   CloseReason `json:"close_reason,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
}

// Closed reports whether the round has ended.
func (r Round) Closed() bool {
	return r.EndTime != nil
}
