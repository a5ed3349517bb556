package main

import (
	"context"
	"net/http"
	"slices"

	"github.com/jmoiron/sqlx"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/mcdev12/brainstorm/go/internal/auth"
	"github.com/mcdev12/brainstorm/go/internal/config"
	"github.com/mcdev12/brainstorm/go/internal/session/coordinator"
	"github.com/mcdev12/brainstorm/go/internal/session/events"
	"github.com/mcdev12/brainstorm/go/internal/session/gateway"
	"github.com/mcdev12/brainstorm/go/internal/session/outbox"
	"github.com/mcdev12/brainstorm/go/internal/store"
)

type Services struct {
	Registry *coordinator.Registry
	Hub      *gateway.Hub
	Verifier *auth.Verifier
	// Recorder is nil unless the outbox is enabled.
	Recorder *outbox.Recorder
}

func setupServices(cfg *config.Config, st store.Store, db *sqlx.DB) *Services {
	// Wire up dependency injection chain
	// Store → Registry → events.Sink (hub, outbox) → transports
	clock := clockwork.NewRealClock()

	var hub *gateway.Hub
	sinks := events.Fanout{events.SinkFunc(func(ev events.Event) { hub.Publish(ev) })}

	var recorder *outbox.Recorder
	if cfg.Outbox.Enabled && db != nil {
		recorder = outbox.NewRecorder(outbox.NewApp(outbox.NewRepository(db)), cfg.WebSocket.BroadcastBuffer)
		sinks = append(sinks, recorder)
	}

	registry := coordinator.NewRegistry(coordinator.Config{
		Store:            st,
		Sink:             sinks,
		Clock:            clock,
		TickInterval:     cfg.Session.TickInterval,
		RoundDurationSec: cfg.Session.RoundDurationSec,
	})

	wsCfg := gateway.DefaultConfig()
	wsCfg.WriteTimeout = cfg.WebSocket.WriteTimeout
	wsCfg.ReadTimeout = cfg.WebSocket.ReadTimeout
	wsCfg.PingInterval = cfg.WebSocket.PingInterval
	wsCfg.MaxMessageSize = cfg.WebSocket.MaxMessageSize
	wsCfg.SendBufferSize = cfg.WebSocket.SendBufferSize
	wsCfg.BroadcastBuffer = cfg.WebSocket.BroadcastBuffer
	wsCfg.CheckOrigin = checkOrigin(cfg.Server.AllowedOrigins)
	hub = gateway.NewHub(registry, clock, wsCfg)

	registry.SetPresence(hub)
	hub.OnDrained(registry.Release)

	return &Services{
		Registry: registry,
		Hub:      hub,
		Verifier: auth.NewVerifier(cfg.Auth.JWTSecret, clock),
		Recorder: recorder,
	}
}

// Run drives the background loops until ctx is done.
func (s *Services) Run(ctx context.Context, g *errgroup.Group) {
	g.Go(func() error {
		s.Hub.Start(ctx)
		return nil
	})
	if s.Recorder != nil {
		g.Go(func() error {
			s.Recorder.Start(ctx)
			return nil
		})
	}
}

func checkOrigin(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 || slices.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(allowed, origin)
	}
}
