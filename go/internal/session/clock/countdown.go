package clock

import (
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// State is the lifecycle state of a Countdown.
type State int

const (
	StateIdle State = iota
	StateRunning
	StatePaused
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRunning:
		return "RUNNING"
	case StatePaused:
		return "PAUSED"
	case StateFinished:
		return "FINISHED"
	default:
		return "UNKNOWN"
	}
}

var (
	ErrInvalidState    = errors.New("countdown: invalid state transition")
	ErrInvalidDuration = errors.New("countdown: duration must be positive")
)

// Hooks are invoked from the countdown's ticker goroutine, never while the
// countdown's lock is held.
type Hooks struct {
	OnTick   func(remaining int)
	OnExpire func()
}

// Countdown counts whole seconds down to zero on a clockwork.Clock. It fires
// OnExpire exactly once, when remaining reaches zero while running.
type Countdown struct {
	clock    clockwork.Clock
	interval time.Duration
	hooks    Hooks

	mu        sync.Mutex
	state     State
	remaining int
	ticker    clockwork.Ticker
	stop      chan struct{}
}

// NewCountdown creates an idle countdown. interval is the wall time of one
// second of countdown; callers pass time.Second outside of tests.
func NewCountdown(clk clockwork.Clock, interval time.Duration, hooks Hooks) *Countdown {
	if interval <= 0 {
		interval = time.Second
	}
	return &Countdown{
		clock:    clk,
		interval: interval,
		hooks:    hooks,
		state:    StateIdle,
	}
}

// Start begins counting down from seconds.
func (c *Countdown) Start(seconds int) error {
	if seconds <= 0 {
		return ErrInvalidDuration
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateIdle {
		return ErrInvalidState
	}
	c.remaining = seconds
	c.state = StateRunning
	c.startTicker()
	return nil
}

// StartPaused primes an idle countdown in the paused state. Used when a
// paused round is rebuilt from storage.
func (c *Countdown) StartPaused(seconds int) error {
	if seconds <= 0 {
		return ErrInvalidDuration
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateIdle {
		return ErrInvalidState
	}
	c.remaining = seconds
	c.state = StatePaused
	return nil
}

// Pause freezes the remaining time.
func (c *Countdown) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateRunning {
		return ErrInvalidState
	}
	c.halt()
	c.state = StatePaused
	return nil
}

// Resume continues from the frozen remaining time.
func (c *Countdown) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StatePaused {
		return ErrInvalidState
	}
	c.state = StateRunning
	c.startTicker()
	return nil
}

// Stop finishes the countdown without firing OnExpire. Repeated calls are no-ops.
func (c *Countdown) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.halt()
	c.state = StateFinished
}

// Remaining returns the whole seconds left. It is never negative.
func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

// State returns the current state.
func (c *Countdown) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// startTicker must be called with c.mu held.
func (c *Countdown) startTicker() {
	c.ticker = c.clock.NewTicker(c.interval)
	c.stop = make(chan struct{})
	go c.run(c.ticker, c.stop)
}

// halt must be called with c.mu held.
func (c *Countdown) halt() {
	if c.ticker != nil {
		c.ticker.Stop()
		c.ticker = nil
	}
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
}

func (c *Countdown) run(ticker clockwork.Ticker, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-ticker.Chan():
			if c.step(stop) {
				return
			}
		}
	}
}

// step applies one tick and reports whether the ticker goroutine should exit.
func (c *Countdown) step(stop <-chan struct{}) bool {
	c.mu.Lock()
	select {
	case <-stop:
		// paused or stopped between the tick firing and taking the lock
		c.mu.Unlock()
		return true
	default:
	}

	if c.remaining > 0 {
		c.remaining--
	}
	remaining := c.remaining
	expired := remaining == 0
	if expired {
		c.halt()
		c.state = StateFinished
	}
	c.mu.Unlock()

	if c.hooks.OnTick != nil {
		c.hooks.OnTick(remaining)
	}
	if expired && c.hooks.OnExpire != nil {
		c.hooks.OnExpire()
	}
	return expired
}
