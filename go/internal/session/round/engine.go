package round

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/brainstorm/go/internal/models"
	"github.com/mcdev12/brainstorm/go/internal/session/clock"
	"github.com/mcdev12/brainstorm/go/internal/session/submission"
	"github.com/rs/zerolog/log"
)

// State is the lifecycle state of a round.
type State string

const (
	StatePendingStart State = "PENDING_START"
	StateRunning      State = "RUNNING"
	StatePaused       State = "PAUSED"
	StateClosed       State = "CLOSED"
)

var (
	ErrInvalidTransition = errors.New("invalid round transition")
	ErrRoundClosed       = errors.New("round is closed")
)

// Config describes one round.
type Config struct {
	ID           uuid.UUID
	SessionID    uuid.UUID
	Number       int
	DurationSec  int
	Tracker      *submission.Tracker
	Clock        clockwork.Clock
	TickInterval time.Duration

	// OnTick and OnExpire run on the countdown goroutine.
	OnTick   func(number, remaining int)
	OnExpire func(number int)
}

// Engine owns one round: its timer and its submissions. It is not safe for
// concurrent use; the session coordinator is its only caller.
type Engine struct {
	id          uuid.UUID
	sessionID   uuid.UUID
	number      int
	durationSec int
	clk         clockwork.Clock

	state     State
	tracker   *submission.Tracker
	countdown *clock.Countdown

	createdAt   time.Time
	startedAt   time.Time
	endedAt     time.Time
	pausedAt    time.Time
	pausedTotal time.Duration
	reason      models.CloseReason
}

// NewEngine creates a round in PENDING_START.
func NewEngine(cfg Config) *Engine {
	if cfg.ID == uuid.Nil {
		cfg.ID = uuid.New()
	}
	e := &Engine{
		id:          cfg.ID,
		sessionID:   cfg.SessionID,
		number:      cfg.Number,
		durationSec: cfg.DurationSec,
		clk:         cfg.Clock,
		state:       StatePendingStart,
		tracker:     cfg.Tracker,
		createdAt:   cfg.Clock.Now(),
	}

	number := cfg.Number
	e.countdown = clock.NewCountdown(cfg.Clock, cfg.TickInterval, clock.Hooks{
		OnTick: func(remaining int) {
			if cfg.OnTick != nil {
				cfg.OnTick(number, remaining)
			}
		},
		OnExpire: func() {
			if cfg.OnExpire != nil {
				cfg.OnExpire(number)
			}
		},
	})
	return e
}

// Start moves the round to RUNNING and starts its timer.
func (e *Engine) Start() error {
	if e.state != StatePendingStart {
		return ErrInvalidTransition
	}
	if err := e.countdown.Start(e.durationSec); err != nil {
		return err
	}
	e.startedAt = e.clk.Now()
	e.state = StateRunning

	log.Info().
		Str("session_id", e.sessionID.String()).
		Int("round", e.number).
		Int("duration_sec", e.durationSec).
		Msg("round started")
	return nil
}

// Restore rebuilds an open round from its stored record. It reports true
// when the stored timer has already run out and the round must be closed.
func (e *Engine) Restore(r models.Round) (expired bool, err error) {
	if e.state != StatePendingStart {
		return false, ErrInvalidTransition
	}
	e.createdAt = r.CreatedAt
	e.startedAt = r.StartTime
	e.pausedTotal = time.Duration(r.PausedSeconds) * time.Second

	ref := e.clk.Now()
	paused := r.TimerState == models.TimerStatePaused && r.PausedAt != nil
	if paused {
		ref = *r.PausedAt
	}
	elapsed := ref.Sub(e.startedAt) - e.pausedTotal
	remaining := e.durationSec - int(elapsed/time.Second)

	if paused {
		e.pausedAt = *r.PausedAt
		e.state = StatePaused
		// a paused round always keeps at least a second to write in
		return false, e.countdown.StartPaused(max(remaining, 1))
	}

	e.state = StateRunning
	if remaining <= 0 {
		return true, nil
	}
	return false, e.countdown.Start(remaining)
}

// Pause freezes the round timer.
func (e *Engine) Pause() error {
	if e.state != StateRunning {
		return ErrInvalidTransition
	}
	if err := e.countdown.Pause(); err != nil {
		return err
	}
	e.pausedAt = e.clk.Now()
	e.state = StatePaused
	return nil
}

// Resume restarts the timer from the frozen remaining time.
func (e *Engine) Resume() error {
	if e.state != StatePaused {
		return ErrInvalidTransition
	}
	if err := e.countdown.Resume(); err != nil {
		return err
	}
	e.pausedTotal += e.clk.Now().Sub(e.pausedAt)
	e.pausedAt = time.Time{}
	e.state = StateRunning
	return nil
}

// CheckSubmission validates a submission against the round without recording it.
func (e *Engine) CheckSubmission(member uuid.UUID, ideas []string) ([]string, error) {
	if e.state == StateClosed {
		return nil, ErrRoundClosed
	}
	return e.tracker.Check(member, ideas)
}

// RecordSubmission stores a member's ideas and closes the round when it
// completes the roster. It reports whether the round closed.
func (e *Engine) RecordSubmission(member uuid.UUID, ideas []models.Idea) (bool, error) {
	if e.state == StateClosed {
		return false, ErrRoundClosed
	}
	if err := e.tracker.Record(member, ideas, e.clk.Now()); err != nil {
		return false, err
	}
	if e.tracker.IsComplete() {
		e.close(models.CloseReasonAllSubmitted)
		return true, nil
	}
	return false, nil
}

// Expired reports whether the timer ran out while the round is still open.
func (e *Engine) Expired() bool {
	return e.state != StateClosed && e.countdown.State() == clock.StateFinished
}

// Expire closes the round on timer expiry. It reports false when the round
// was already closed.
func (e *Engine) Expire() bool {
	if e.state == StateClosed {
		return false
	}
	e.close(models.CloseReasonTimerExpired)
	return true
}

// Close ends the round for reason. Closing twice fails with ErrRoundClosed.
func (e *Engine) Close(reason models.CloseReason) error {
	if e.state == StateClosed {
		return ErrRoundClosed
	}
	e.close(reason)
	return nil
}

// Abort stops the timer without closing the round. Used on shutdown so a
// restart can pick the round up again.
func (e *Engine) Abort() {
	e.countdown.Stop()
}

func (e *Engine) close(reason models.CloseReason) {
	e.countdown.Stop()
	if e.state == StatePaused {
		e.pausedTotal += e.clk.Now().Sub(e.pausedAt)
		e.pausedAt = time.Time{}
	}
	e.state = StateClosed
	e.endedAt = e.clk.Now()
	e.reason = reason

	log.Info().
		Str("session_id", e.sessionID.String()).
		Int("round", e.number).
		Str("reason", string(reason)).
		Msg("round closed")
}

func (e *Engine) ID() uuid.UUID { return e.id }
func (e *Engine) Number() int { return e.number }
func (e *Engine) State() State { return e.state }
func (e *Engine) Tracker() *submission.Tracker { return e.tracker }
func (e *Engine) CloseReason() models.CloseReason { return e.reason }

// Remaining returns the seconds left on the round timer; zero once closed.
func (e *Engine) Remaining() int {
	if e.state == StateClosed {
		return 0
	}
	return e.countdown.Remaining()
}

// TimerState maps the round state onto the persisted timer state.
func (e *Engine) TimerState() models.TimerState {
	switch e.state {
	case StatePaused:
		return models.TimerStatePaused
	case StateClosed:
		return models.TimerStateFinished
	default:
		return models.TimerStateRunning
	}
}

// Model returns the persisted view of the round.
func (e *Engine) Model() models.Round {
	r := models.Round{
		ID:            e.id,
		SessionID:     e.sessionID,
		RoundNumber:   e.number,
		TimerState:    e.TimerState(),
		StartTime:     e.startedAt,
		PausedSeconds: int(e.pausedTotal / time.Second),
		CloseReason:   e.reason,
		CreatedAt:     e.createdAt,
	}
	if e.state == StatePaused {
		at := e.pausedAt
		r.PausedAt = &at
	}
	if e.state == StateClosed {
		at := e.endedAt
		r.EndTime = &at
	}
	return r
}

// NewClosed rebuilds a finished round from storage. Its timer never runs.
func NewClosed(cfg Config, r models.Round) *Engine {
	e := NewEngine(cfg)
	e.countdown.Stop()
	e.state = StateClosed
	e.createdAt = r.CreatedAt
	e.startedAt = r.StartTime
	e.pausedTotal = time.Duration(r.PausedSeconds) * time.Second
	e.reason = r.CloseReason
	if r.EndTime != nil {
		e.endedAt = *r.EndTime
	}
	return e
}
