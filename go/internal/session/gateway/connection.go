package gateway

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mcdev12/brainstorm/go/internal/session/coordinator"
	"github.com/mcdev12/brainstorm/go/internal/session/events"
	"github.com/rs/zerolog/log"
)

// Connection is one member's socket in one session.
type Connection struct {
	ID          string
	UserID      uuid.UUID
	SessionID   uuid.UUID
	ConnectedAt time.Time

	ws  *websocket.Conn
	hub *Hub

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

// Attach upgrades the request and joins the socket to the session. The
// caller has already checked that userID may see the session.
func (h *Hub) Attach(w http.ResponseWriter, r *http.Request, sessionID, userID uuid.UUID) error {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	conn := &Connection{
		ID:          uuid.New().String(),
		UserID:      userID,
		SessionID:   sessionID,
		ConnectedAt: h.clock.Now(),
		ws:          ws,
		hub:         h,
		send:        make(chan []byte, h.config.SendBufferSize),
	}
	h.register(conn)

	go conn.writePump()
	go conn.readPump()

	log.Info().
		Str("connection_id", conn.ID).
		Str("user_id", userID.String()).
		Str("session_id", sessionID.String()).
		Msg("WebSocket connection established")

	// the snapshot is the client's whole bootstrap
	h.pushSnapshot(conn)
	h.Publish(events.Event{
		Type:      events.TypeUserJoined,
		SessionID: sessionID,
		Payload:   events.PresencePayload{UserID: userID.String()},
		Timestamp: h.clock.Now(),
	})
	return nil
}

func (h *Hub) pushSnapshot(conn *Connection) {
	ctx, cancel := context.WithTimeout(context.Background(), h.config.RequestTimeout)
	defer cancel()

	snap, err := h.sessions.Snapshot(ctx, conn.SessionID, conn.UserID)
	if err != nil {
		conn.sendError(err, nil)
		return
	}
	conn.sendFrame(events.TypeSessionState, snap)
}

// enqueue hands a frame to the write pump. It reports false when the
// connection is closed or its buffer is full.
func (c *Connection) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// close stops the write pump, which then closes the socket. Safe to repeat.
func (c *Connection) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Connection) sendFrame(t events.Type, payload any) {
	data, err := events.Encode(t, payload, c.hub.clock.Now())
	if err != nil {
		log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to encode frame")
		return
	}
	if !c.enqueue(data) {
		log.Warn().Str("connection_id", c.ID).Str("event_type", string(t)).Msg("dropping frame for closed connection")
	}
}

// sendError reports a rejected action. rejected, when set, is echoed back.
func (c *Connection) sendError(err error, rejected *events.SubmitIdeasPayload) {
	kind := coordinator.KindOf(err)
	msg := err.Error()
	if kind == coordinator.KindInternal {
		log.Error().Err(err).Str("connection_id", c.ID).Msg("session request failed")
		msg = "internal error"
	}
	payload := events.ErrorPayload{Code: kind.String(), Message: msg}
	if rejected != nil {
		payload.RoundNumber = rejected.RoundNumber
		payload.Ideas = rejected.Ideas
	}
	c.sendFrame(events.TypeError, payload)
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	ticker := c.hub.clock.NewTicker(c.hub.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.ws.Close()
		c.hub.unregister(c)
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.Chan():
			c.ws.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump handles reading messages from the WebSocket connection
func (c *Connection) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.ws.Close()
	}()

	c.ws.SetReadLimit(c.hub.config.MaxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			return
		}

		if leave := c.handleClientMessage(message); leave {
			log.Info().
				Str("connection_id", c.ID).
				Str("user_id", c.UserID.String()).
				Msg("client left session")
			return
		}
		c.ws.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
	}
}

// handleClientMessage processes one client frame. It reports true when the
// client asked to leave.
func (c *Connection) handleClientMessage(message []byte) bool {
	env, err := events.Decode(message)
	if err != nil {
		c.sendFrame(events.TypeError, events.ErrorPayload{Code: coordinator.KindValidation.String(), Message: err.Error()})
		return false
	}

	switch env.Type {
	case events.TypeSubmitIdeas:
		var p events.SubmitIdeasPayload
		if err := events.DecodePayload(env, &p); err != nil {
			c.sendFrame(events.TypeError, events.ErrorPayload{Code: coordinator.KindValidation.String(), Message: err.Error()})
			return false
		}
		ctx, cancel := context.WithTimeout(context.Background(), c.hub.config.RequestTimeout)
		defer cancel()
		// success is confirmed by the coordinator's own SESSION_STATE push
		if _, err := c.hub.sessions.SubmitIdeas(ctx, c.SessionID, c.UserID, p.RoundNumber, p.Ideas); err != nil {
			c.sendError(err, &p)
		}

	case events.TypeSyncRequest:
		c.hub.pushSnapshot(c)

	case events.TypeLeaveSession:
		return true

	default:
		c.sendFrame(events.TypeError, events.ErrorPayload{
			Code:    coordinator.KindValidation.String(),
			Message: fmt.Sprintf("unsupported message type %q", env.Type),
		})
	}
	return false
}
