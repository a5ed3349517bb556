package gateway

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/brainstorm/go/internal/models"
	"github.com/mcdev12/brainstorm/go/internal/session/coordinator"
	"github.com/mcdev12/brainstorm/go/internal/session/events"
	"github.com/rs/zerolog/log"
)

// Sessions is what the hub needs from the session registry.
type Sessions interface {
	Snapshot(ctx context.Context, sessionID, viewer uuid.UUID) (coordinator.Snapshot, error)
	SubmitIdeas(ctx context.Context, sessionID, member uuid.UUID, roundNumber int, ideas []string) ([]models.Idea, error)
}

// Config holds configuration for WebSocket connections
type Config struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	RequestTimeout  time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int
	BroadcastBuffer int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConfig returns default WebSocket configuration
func DefaultConfig() Config {
	return Config{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		RequestTimeout:  10 * time.Second,
		MaxMessageSize:  32 * 1024, // three 500-character ideas, every character escaped as a surrogate pair
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBufferSize:  256,
		BroadcastBuffer: 1000,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// Hub tracks the sockets of every session, at most one per member, and fans
// coordinator events out to them. It implements events.Sink.
type Hub struct {
	sessions Sessions
	clock    clockwork.Clock
	upgrader websocket.Upgrader
	config   Config

	mu    sync.RWMutex
	pools map[uuid.UUID]map[uuid.UUID]*Connection

	broadcastCh chan events.Event

	// onDrained runs when the last socket of a session goes away.
	onDrained func(sessionID uuid.UUID)
}

// NewHub creates a hub. Call Start to begin delivering events.
func NewHub(sessions Sessions, clock clockwork.Clock, config Config) *Hub {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Hub{
		sessions: sessions,
		clock:    clock,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		pools:       make(map[uuid.UUID]map[uuid.UUID]*Connection),
		broadcastCh: make(chan events.Event, config.BroadcastBuffer),
	}
}

// OnDrained registers fn to run, on its own goroutine, whenever a session
// loses its last connection.
func (h *Hub) OnDrained(fn func(sessionID uuid.UUID)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onDrained = fn
}

// Start delivers queued events until ctx is done.
func (h *Hub) Start(ctx context.Context) {
	log.Info().Msg("session hub started")

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			log.Info().Msg("session hub shutting down")
			return
		case event := <-h.broadcastCh:
			h.deliver(event)
		}
	}
}

// Publish queues an event for delivery. It never blocks: when the queue is
// full the event is dropped and clients recover through a resync.
func (h *Hub) Publish(event events.Event) {
	if !event.Type.Socket() {
		return
	}
	select {
	case h.broadcastCh <- event:
	default:
		log.Warn().
			Str("session_id", event.SessionID.String()).
			Str("event_type", string(event.Type)).
			Msg("broadcast channel full, dropping event")
	}
}

// ConnectionCount returns the number of sockets attached to a session.
func (h *Hub) ConnectionCount(sessionID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.pools[sessionID])
}

// Stats is a point-in-time view of the hub.
type Stats struct {
	TotalConnections   int            `json:"total_connections"`
	ActiveSessions     int            `json:"active_sessions"`
	SessionConnections map[string]int `json:"session_connections"`
}

// Stats returns statistics about active connections
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	stats := Stats{
		ActiveSessions:     len(h.pools),
		SessionConnections: make(map[string]int, len(h.pools)),
	}
	for sessionID, pool := range h.pools {
		stats.TotalConnections += len(pool)
		stats.SessionConnections[sessionID.String()] = len(pool)
	}
	return stats
}

func (h *Hub) deliver(event events.Event) {
	h.mu.RLock()
	pool, ok := h.pools[event.SessionID]
	if !ok {
		h.mu.RUnlock()
		return
	}
	var targets []*Connection
	if event.UserID != uuid.Nil {
		if conn, ok := pool[event.UserID]; ok {
			targets = append(targets, conn)
		}
	} else {
		targets = make([]*Connection, 0, len(pool))
		for _, conn := range pool {
			targets = append(targets, conn)
		}
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		return
	}

	data, err := events.Encode(event.Type, event.Payload, event.Timestamp)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(event.Type)).Msg("failed to encode event for broadcast")
		return
	}

	for _, conn := range targets {
		if !conn.enqueue(data) {
			// slow or dead; the client resyncs when it reconnects
			log.Warn().
				Str("connection_id", conn.ID).
				Str("user_id", conn.UserID.String()).
				Msg("connection send buffer full, closing connection")
			h.unregister(conn)
		}
	}

	log.Debug().
		Str("event_type", string(event.Type)).
		Str("session_id", event.SessionID.String()).
		Int("connections", len(targets)).
		Msg("event delivered")
}

// register adds conn, replacing any earlier socket of the same member.
func (h *Hub) register(conn *Connection) {
	h.mu.Lock()
	pool := h.pools[conn.SessionID]
	if pool == nil {
		pool = make(map[uuid.UUID]*Connection)
		h.pools[conn.SessionID] = pool
	}
	replaced := pool[conn.UserID]
	pool[conn.UserID] = conn
	size := len(pool)
	h.mu.Unlock()

	if replaced != nil {
		replaced.close()
		log.Info().
			Str("connection_id", replaced.ID).
			Str("user_id", conn.UserID.String()).
			Str("session_id", conn.SessionID.String()).
			Msg("connection replaced by a newer one")
	}

	log.Debug().
		Str("connection_id", conn.ID).
		Str("session_id", conn.SessionID.String()).
		Int("total_connections", size).
		Msg("connection registered")
}

// unregister removes conn if it is still the member's live socket. It
// reports whether it did.
func (h *Hub) unregister(conn *Connection) bool {
	h.mu.Lock()
	pool := h.pools[conn.SessionID]
	current, ok := pool[conn.UserID]
	removed := ok && current == conn
	drained := false
	if removed {
		delete(pool, conn.UserID)
		if len(pool) == 0 {
			delete(h.pools, conn.SessionID)
			drained = true
		}
	}
	onDrained := h.onDrained
	h.mu.Unlock()

	conn.close()
	if !removed {
		return false
	}

	log.Info().
		Str("connection_id", conn.ID).
		Str("user_id", conn.UserID.String()).
		Str("session_id", conn.SessionID.String()).
		Msg("connection unregistered")

	h.Publish(events.Event{
		Type:      events.TypeUserLeft,
		SessionID: conn.SessionID,
		Payload:   events.PresencePayload{UserID: conn.UserID.String()},
		Timestamp: h.clock.Now(),
	})
	if drained && onDrained != nil {
		go onDrained(conn.SessionID)
	}
	return true
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	pools := h.pools
	h.pools = make(map[uuid.UUID]map[uuid.UUID]*Connection)
	h.mu.Unlock()

	for _, pool := range pools {
		for _, conn := range pool {
			conn.close()
		}
	}
}
