package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/brainstorm/go/internal/session/events"
	"github.com/rs/zerolog/log"
)

var (
	ErrConnectionLost = errors.New("connection lost")
	ErrNotConnected   = errors.New("not connected")
)

// Options configures a Client. BaseURL is the socket root, for example
// ws://localhost:8080/ws/sessions.
type Options struct {
	BaseURL   string
	Token     string
	SessionID uuid.UUID
	Policy    Policy
	Clock     clockwork.Clock
	Dialer    *websocket.Dialer

	// OnEvent and OnState run on the Run goroutine.
	OnEvent func(events.Envelope)
	OnState func(State)
}

// Client is a session participant's connection. It redials on transport
// loss and asks for a full resync after every reconnect, since events sent
// during the gap are gone.
type Client struct {
	opts   Options
	clock  clockwork.Clock
	dialer *websocket.Dialer

	mu      sync.Mutex
	rc      *Reconnector
	ws      *websocket.Conn
	draft   *events.SubmitIdeasPayload
	leaving bool
}

func New(opts Options) *Client {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	return &Client{
		opts:   opts,
		clock:  opts.Clock,
		dialer: opts.Dialer,
		rc:     NewReconnector(opts.Policy),
	}
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rc.State()
}

// Draft returns ideas that have not been confirmed by the server yet.
func (c *Client) Draft() (events.SubmitIdeasPayload, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.draft == nil {
		return events.SubmitIdeasPayload{}, false
	}
	return *c.draft, true
}

// Run connects and keeps the connection alive until ctx is done, Leave is
// called or the retry policy gives up, in which case it returns
// ErrConnectionLost. Calling Run again after that is a manual retry.
func (c *Client) Run(ctx context.Context) error {
	c.mu.Lock()
	c.leaving = false
	c.rc.Reset()
	c.mu.Unlock()
	c.notify()

	resync := false
	for {
		c.mu.Lock()
		leaving := c.leaving
		c.mu.Unlock()
		if leaving {
			c.close()
			return nil
		}

		ws, err := c.dial(ctx)
		if err == nil {
			c.mu.Lock()
			c.ws = ws
			c.rc.Connected()
			c.mu.Unlock()
			c.notify()

			if resync {
				if err := c.write(events.TypeSyncRequest, nil); err != nil {
					log.Warn().Err(err).Msg("failed to request resync")
				}
			}
			err = c.read(ctx, ws)

			c.mu.Lock()
			c.ws = nil
			c.mu.Unlock()
			ws.Close()
		}

		if ctx.Err() != nil {
			c.close()
			return ctx.Err()
		}

		c.mu.Lock()
		if c.leaving {
			c.rc.Close()
			c.mu.Unlock()
			c.notify()
			return nil
		}
		delay, retry := c.rc.Disconnected()
		attempt := c.rc.Attempts()
		c.mu.Unlock()
		c.notify()

		if !retry {
			log.Warn().Err(err).Str("session_id", c.opts.SessionID.String()).Msg("giving up on session connection")
			return ErrConnectionLost
		}
		log.Info().
			Err(err).
			Str("session_id", c.opts.SessionID.String()).
			Int("attempt", attempt).
			Dur("delay", delay).
			Msg("reconnecting to session")

		select {
		case <-ctx.Done():
			c.close()
			return ctx.Err()
		case <-c.clock.After(delay):
		}
		resync = true
	}
}

// Submit sends ideas for a round. The ideas are kept as the draft until the
// server confirms them, so nothing typed is lost to a dropped connection.
func (c *Client) Submit(roundNumber int, ideas []string) error {
	p := events.SubmitIdeasPayload{RoundNumber: roundNumber, Ideas: append([]string(nil), ideas...)}
	c.mu.Lock()
	c.draft = &p
	c.mu.Unlock()
	return c.write(events.TypeSubmitIdeas, p)
}

// Sync asks the server for a fresh SESSION_STATE.
func (c *Client) Sync() error {
	return c.write(events.TypeSyncRequest, nil)
}

// Leave tells the server the user left and stops Run without retrying.
func (c *Client) Leave() error {
	c.mu.Lock()
	c.leaving = true
	ws := c.ws
	c.mu.Unlock()
	if ws == nil {
		return nil
	}

	err := c.write(events.TypeLeaveSession, nil)
	ws.Close()
	return err
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	url := fmt.Sprintf("%s/%s", strings.TrimSuffix(c.opts.BaseURL, "/"), c.opts.SessionID)
	header := http.Header{}
	if c.opts.Token != "" {
		header.Set("Authorization", "Bearer "+c.opts.Token)
	}

	ws, resp, err := c.dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to dial %s: %s: %w", url, resp.Status, err)
		}
		return nil, fmt.Errorf("failed to dial %s: %w", url, err)
	}
	return ws, nil
}

func (c *Client) read(ctx context.Context, ws *websocket.Conn) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			ws.Close()
		case <-stop:
		}
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return err
		}
		env, err := events.Decode(data)
		if err != nil {
			log.Warn().Err(err).Msg("dropping malformed frame")
			continue
		}
		c.track(env)
		if c.opts.OnEvent != nil {
			c.opts.OnEvent(env)
		}
	}
}

// track clears the draft once a snapshot shows the ideas were stored and
// restores it from an ERROR echo.
func (c *Client) track(env events.Envelope) {
	switch env.Type {
	case events.TypeSessionState:
		var s struct {
			CurrentRound *struct {
				RoundNumber int `json:"round_number"`
			} `json:"current_round"`
			MyIdeas []json.RawMessage `json:"my_ideas"`
		}
		if events.DecodePayload(env, &s) != nil || s.CurrentRound == nil || len(s.MyIdeas) == 0 {
			return
		}
		c.mu.Lock()
		if c.draft != nil && c.draft.RoundNumber == s.CurrentRound.RoundNumber {
			c.draft = nil
		}
		c.mu.Unlock()

	case events.TypeError:
		var p events.ErrorPayload
		if events.DecodePayload(env, &p) != nil || len(p.Ideas) == 0 {
			return
		}
		c.mu.Lock()
		if c.draft == nil {
			c.draft = &events.SubmitIdeasPayload{RoundNumber: p.RoundNumber, Ideas: p.Ideas}
		}
		c.mu.Unlock()
	}
}

func (c *Client) write(t events.Type, payload any) error {
	data, err := events.Encode(t, payload, c.clock.Now())
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ws == nil {
		return ErrNotConnected
	}
	c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) close() {
	c.mu.Lock()
	c.rc.Close()
	c.mu.Unlock()
	c.notify()
}

func (c *Client) notify() {
	if c.opts.OnState != nil {
		c.opts.OnState(c.State())
	}
}
