package events

import (
	"time"

	"github.com/google/uuid"
)

// Type is the wire name of a session event.
type Type string

const (
	// Client to server
	TypeSubmitIdeas  Type = "SUBMIT_IDEAS"
	TypeSyncRequest  Type = "SYNC_REQUEST"
	TypeLeaveSession Type = "LEAVE_SESSION"

	// Server to client
	TypeSessionState     Type = "SESSION_STATE"
	TypeTimerTick        Type = "TIMER_TICK"
	TypeMemberSubmitted  Type = "MEMBER_SUBMITTED"
	TypeSessionPaused    Type = "SESSION_PAUSED"
	TypeSessionResumed   Type = "SESSION_RESUMED"
	TypeSessionCompleted Type = "SESSION_COMPLETED"
	TypeRoundStart       Type = "ROUND_START"
	TypeRoundEnd         Type = "ROUND_END"
	TypeUserJoined       Type = "USER_JOINED"
	TypeUserLeft         Type = "USER_LEFT"
	TypeError            Type = "ERROR"

	// TypeSessionStarted goes to the outbox only. Sockets learn about the
	// start from the per-member SESSION_STATE that follows it.
	TypeSessionStarted Type = "SESSION_STARTED"
)

// Socket reports whether the event is delivered to connected clients.
func (t Type) Socket() bool {
	return t != TypeSessionStarted
}

// Durable reports whether the event belongs in the outbox for downstream consumers.
func (t Type) Durable() bool {
	switch t {
	case TypeSessionStarted, TypeRoundStart, TypeRoundEnd, TypeMemberSubmitted,
		TypeSessionPaused, TypeSessionResumed, TypeSessionCompleted:
		return true
	}
	return false
}

// Event is a state change emitted by a session coordinator. A zero UserID
// addresses every connection of the session.
type Event struct {
	Type      Type
	SessionID uuid.UUID
	UserID    uuid.UUID
	Payload   any
	Timestamp time.Time
}

// Sink receives coordinator events. Publish must not block on network I/O.
type Sink interface {
	Publish(event Event)
}

// Fanout delivers each event to every sink in order.
type Fanout []Sink

func (f Fanout) Publish(event Event) {
	for _, s := range f {
		if s != nil {
			s.Publish(event)
		}
	}
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

func (f SinkFunc) Publish(event Event) { f(event) }
