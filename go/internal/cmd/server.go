package main

import (
	"fmt"
	"net/http"

	"connectrpc.com/connect"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mcdev12/brainstorm/go/internal/config"
	"github.com/mcdev12/brainstorm/go/internal/session/control"
	"github.com/mcdev12/brainstorm/go/internal/session/gateway"
)

func setupServer(cfg *config.Config, services *Services) *http.Server {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)

	// Setup CORS middleware
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedHeaders: []string{"*"},
	})

	registerServices(router, services)
	setupHealthCheck(router)

	handler := c.Handler(router)

	// Setup HTTP/2 server
	return &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: h2c.NewHandler(handler, &http2.Server{}),
	}
}

func registerServices(router chi.Router, services *Services) {
	// Connect service
	path, handler := control.NewService(services.Registry).Handler(
		connect.WithInterceptors(services.Verifier.Interceptor()),
	)
	router.Mount(path, handler)

	// REST mirror of the control operations
	control.NewRESTHandler(services.Registry).RegisterRoutes(router, services.Verifier.Middleware)

	// Session sockets
	gateway.NewWebSocketHandler(services.Hub).RegisterRoutes(router, services.Verifier.Middleware)
}

func setupHealthCheck(router chi.Router) {
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Error().Err(err).Msg("failed to write health check response")
		}
	})
}
