package client

import "time"

// State is the connection state a client shows its user.
type State string

const (
	StateConnecting     State = "CONNECTING"
	StateConnected      State = "CONNECTED"
	StateReconnecting   State = "RECONNECTING"
	StateConnectionLost State = "CONNECTION_LOST"
	StateClosed         State = "CLOSED"
)

// Policy is a fixed-interval retry with a capped number of attempts.
type Policy struct {
	Interval    time.Duration
	MaxAttempts int
}

func DefaultPolicy() Policy {
	return Policy{Interval: 3 * time.Second, MaxAttempts: 5}
}

// Reconnector tracks retry attempts across transport losses. It is not safe
// for concurrent use.
type Reconnector struct {
	policy   Policy
	attempts int
	state    State
}

func NewReconnector(policy Policy) *Reconnector {
	if policy.Interval <= 0 {
		policy.Interval = DefaultPolicy().Interval
	}
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = DefaultPolicy().MaxAttempts
	}
	return &Reconnector{policy: policy, state: StateConnecting}
}

func (r *Reconnector) State() State  { return r.state }
func (r *Reconnector) Attempts() int { return r.attempts }

// Connected resets the attempt count after a successful dial.
func (r *Reconnector) Connected() {
	r.attempts = 0
	r.state = StateConnected
}

// Disconnected records a lost or failed connection. It returns how long to
// wait before the next dial, or retry=false once the attempts are used up.
func (r *Reconnector) Disconnected() (delay time.Duration, retry bool) {
	switch {
	case r.state == StateClosed:
		return 0, false
	case r.attempts >= r.policy.MaxAttempts:
		r.state = StateConnectionLost
		return 0, false
	}
	r.attempts++
	r.state = StateReconnecting
	return r.policy.Interval, true
}

// Reset starts over after the user asks to retry a lost connection.
func (r *Reconnector) Reset() {
	r.attempts = 0
	r.state = StateConnecting
}

func (r *Reconnector) Close() {
	r.state = StateClosed
}
