package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	cfg, err := loadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	setupLogging(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, db, err := setupStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("setup store")
	}
	if db != nil {
		defer db.Close()
	}

	services := setupServices(cfg, st, db)
	srv := setupServer(cfg, services)

	g, gctx := errgroup.WithContext(ctx)
	services.Run(gctx, g)

	g.Go(func() error {
		log.Info().
			Str("addr", srv.Addr).
			Str("store", cfg.Store.Driver).
			Bool("outbox", services.Recorder != nil).
			Msg("brainstorm server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		services.Registry.Close()
		return err
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server exited")
		os.Exit(1)
	}
	log.Info().Msg("graceful shutdown complete")
}
