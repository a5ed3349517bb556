package outbox

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

type ListenerConfig struct {
	DatabaseURL      string        // Postgres DSN for LISTEN/NOTIFY
	FallbackInterval time.Duration // how often to sweep for missed events
	MaxRetries       int
	RetryDelay       time.Duration
	PingInterval     time.Duration
	BatchSize        int
}

func DefaultListenerConfig() ListenerConfig {
	return ListenerConfig{
		FallbackInterval: 30 * time.Second,
		MaxRetries:       5,
		RetryDelay:       200 * time.Millisecond,
		PingInterval:     90 * time.Second,
		BatchSize:        100,
	}
}

// Source is what the relay needs from the repository
type Source interface {
	FetchUnsent(ctx context.Context, limit int) ([]Event, error)
	FetchByID(ctx context.Context, id uuid.UUID) (Event, error)
	MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error
}

// Relay publishes outbox rows and marks them sent. A row is marked only
// after the bus acknowledged it; the bus dedupes replays by event id.
type Relay struct {
	source    Source
	publisher Publisher
	clock     clockwork.Clock
	cfg       ListenerConfig

	processed atomic.Uint64
	lastSent  atomic.Int64 // unix nanos
	running   atomic.Bool
}

// Stats reports how many events were relayed and when the last one was.
func (r *Relay) Stats() (uint64, time.Time) {
	var last time.Time
	if ns := r.lastSent.Load(); ns != 0 {
		last = time.Unix(0, ns)
	}
	return r.processed.Load(), last
}

func NewRelay(source Source, publisher Publisher, clock clockwork.Clock, cfg ListenerConfig) *Relay {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Relay{source: source, publisher: publisher, clock: clock, cfg: cfg}
}

// HandleNotification relays the event named by a NOTIFY payload.
func (r *Relay) HandleNotification(ctx context.Context, extra string) error {
	id, err := uuid.Parse(extra)
	if err != nil {
		return fmt.Errorf("invalid event ID in notification: %w", err)
	}

	event, err := r.source.FetchByID(ctx, id)
	if errors.Is(err, ErrEventNotFound) {
		// the fallback sweep got there first
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to fetch outbox event: %w", err)
	}
	return r.relay(ctx, event)
}

// ProcessUnsent relays one batch of unsent events, oldest first. It returns
// the number relayed.
func (r *Relay) ProcessUnsent(ctx context.Context) (int, error) {
	unsent, err := r.source.FetchUnsent(ctx, r.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, event := range unsent {
		if err := r.relay(ctx, event); err != nil {
			log.Error().Err(err).Str("event_id", event.ID.String()).Msg("failed to relay event")
			continue
		}
		sent++
	}
	return sent, nil
}

func (r *Relay) relay(ctx context.Context, event Event) error {
	if err := r.publishWithRetry(ctx, event); err != nil {
		return err
	}
	now := r.clock.Now()
	if err := r.source.MarkSent(ctx, event.ID, now); err != nil {
		return err
	}
	r.processed.Add(1)
	r.lastSent.Store(now.UnixNano())

	log.Info().
		Str("event_id", event.ID.String()).
		Str("event_type", event.EventType).
		Str("session_id", event.SessionID.String()).
		Msg("published and marked event as sent")
	return nil
}

func (r *Relay) publishWithRetry(ctx context.Context, event Event) error {
	var lastErr error

	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-r.clock.After(r.cfg.RetryDelay * time.Duration(attempt)):
			}
		}

		if err := r.publisher.Publish(ctx, event); err != nil {
			lastErr = err
			log.Warn().
				Err(err).
				Int("attempt", attempt+1).
				Str("event_id", event.ID.String()).
				Msg("failed to publish, retrying")
			continue
		}

		if attempt > 0 {
			log.Info().
				Int("attempt", attempt+1).
				Str("event_id", event.ID.String()).
				Msg("publish succeeded after retry")
		}
		return nil
	}

	return fmt.Errorf("publish failed after %d attempts: %w", r.cfg.MaxRetries+1, lastErr)
}

// Listener wakes the relay on NOTIFY and sweeps periodically for anything a
// dropped notification missed.
type Listener struct {
	relay    *Relay
	listener *pq.Listener
	cfg      ListenerConfig
}

func NewListener(relay *Relay, cfg ListenerConfig) (*Listener, error) {
	l := pq.NewListener(
		cfg.DatabaseURL,
		10*time.Second,
		time.Minute,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				log.Error().Err(err).Msg("listener event")
			}
		},
	)
	if err := l.Listen(NotifyChannel); err != nil {
		l.Close()
		return nil, fmt.Errorf("failed to listen to channel: %w", err)
	}

	log.Info().Str("channel", NotifyChannel).Msg("listening for notifications")
	return &Listener{relay: relay, listener: l, cfg: cfg}, nil
}

func (l *Listener) Start(ctx context.Context) error {
	log.Info().
		Dur("ping_interval", l.cfg.PingInterval).
		Dur("fallback_interval", l.cfg.FallbackInterval).
		Msg("listener started")
	l.relay.running.Store(true)
	defer l.relay.running.Store(false)

	pingTicker := l.relay.clock.NewTicker(l.cfg.PingInterval)
	fallbackTicker := l.relay.clock.NewTicker(l.cfg.FallbackInterval)
	defer pingTicker.Stop()
	defer fallbackTicker.Stop()

	// catch up on anything written while no relay was running
	if _, err := l.relay.ProcessUnsent(ctx); err != nil {
		log.Error().Err(err).Msg("failed to process unsent events")
	}

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("listener shutting down")
			return l.listener.Close()
		case note := <-l.listener.Notify:
			if note == nil {
				// connection was re-established; notifications may have been lost
				if _, err := l.relay.ProcessUnsent(ctx); err != nil {
					log.Error().Err(err).Msg("failed to process unsent events")
				}
				continue
			}
			if err := l.relay.HandleNotification(ctx, note.Extra); err != nil {
				log.Error().Err(err).Msg("failed to handle notification")
			}
		case <-fallbackTicker.Chan():
			if _, err := l.relay.ProcessUnsent(ctx); err != nil {
				log.Error().Err(err).Msg("failed to process unsent events")
			}
		case <-pingTicker.Chan():
			if err := l.listener.Ping(); err != nil {
				log.Error().Err(err).Msg("failed to ping listener")
			}
		}
	}
}
