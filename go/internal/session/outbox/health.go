package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

type HealthStatus struct {
	Healthy           bool      `json:"healthy"`
	EventsProcessed   uint64    `json:"events_processed"`
	LastEventTime     time.Time `json:"last_event_time"`
	PendingEvents     int       `json:"pending_events"`
	DatabaseConnected bool      `json:"database_connected"`
	BusConnected      bool      `json:"bus_connected"`
	ListenerActive    bool      `json:"listener_active"`
	Errors            []string  `json:"errors"`
}

// Pending counts rows not yet relayed.
type Pending interface {
	CountUnsent(ctx context.Context) (int, error)
}

type Pinger interface {
	PingContext(ctx context.Context) error
}

type Bus interface {
	Connected() bool
}

type HealthConfig struct {
	// StallAfter is how long pending events may sit with nothing relayed
	// before the relay counts as stalled.
	StallAfter time.Duration
	// PendingWarn adds a warning, without failing the check, once this many
	// rows are waiting.
	PendingWarn int
}

func DefaultHealthConfig() HealthConfig {
	return HealthConfig{StallAfter: 5 * time.Minute, PendingWarn: 1000}
}

// HealthChecker reports on a running relay. db and bus may be nil.
type HealthChecker struct {
	relay   *Relay
	db      Pinger
	pending Pending
	bus     Bus
	cfg     HealthConfig
}

func NewHealthChecker(relay *Relay, db Pinger, pending Pending, bus Bus, cfg HealthConfig) *HealthChecker {
	return &HealthChecker{relay: relay, db: db, pending: pending, bus: bus, cfg: cfg}
}

func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{Healthy: true, Errors: []string{}}
	fail := func(format string, args ...any) {
		status.Healthy = false
		status.Errors = append(status.Errors, fmt.Sprintf(format, args...))
	}

	status.EventsProcessed, status.LastEventTime = h.relay.Stats()

	status.ListenerActive = h.relay.running.Load()
	if !status.ListenerActive {
		fail("listener not active")
	}

	status.DatabaseConnected = true
	if h.db != nil {
		if err := h.db.PingContext(ctx); err != nil {
			status.DatabaseConnected = false
			fail("database ping failed: %v", err)
		}
	}

	if h.bus != nil {
		status.BusConnected = h.bus.Connected()
		if !status.BusConnected {
			fail("NATS disconnected")
		}
	}

	if status.DatabaseConnected && h.pending != nil {
		pending, err := h.pending.CountUnsent(ctx)
		if err != nil {
			status.Errors = append(status.Errors, fmt.Sprintf("failed to count pending events: %v", err))
		} else {
			status.PendingEvents = pending
			if h.cfg.PendingWarn > 0 && pending > h.cfg.PendingWarn {
				status.Errors = append(status.Errors, fmt.Sprintf("high pending event count: %d", pending))
			}
		}
	}

	if status.PendingEvents > 0 && !status.LastEventTime.IsZero() {
		if idle := h.relay.clock.Since(status.LastEventTime); idle > h.cfg.StallAfter {
			fail("no events processed for %s", idle.Round(time.Second))
		}
	}
	return status
}

func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := h.Check(ctx)

	w.Header().Set("Content-Type", "application/json")
	if !status.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(status); err != nil {
		log.Error().Err(err).Msg("failed to write health response")
	}
}
