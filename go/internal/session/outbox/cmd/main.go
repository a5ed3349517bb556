package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/mcdev12/brainstorm/go/internal/config"
	"github.com/mcdev12/brainstorm/go/internal/dbconfig"
	"github.com/mcdev12/brainstorm/go/internal/session/outbox"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	dbCfg := dbconfig.NewConfigFromEnv()
	dsn := dbCfg.DSN()
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("ping database")
	}
	log.Info().
		Str("target", dbCfg.String()).
		Msg("connected to database")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	jsCfg := outbox.DefaultJetStreamConfig()
	jsCfg.URL = cfg.Outbox.NATSURL
	jsCfg.StreamName = cfg.Outbox.Stream
	jsCfg.SubjectPrefix = cfg.Outbox.SubjectPrefix
	publisher, err := outbox.NewJetStreamPublisher(ctx, jsCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("create JetStream publisher")
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Error().Err(err).Msg("close publisher")
		}
	}()

	ltCfg := outbox.DefaultListenerConfig()
	ltCfg.DatabaseURL = dsn
	ltCfg.BatchSize = cfg.Outbox.BatchSize
	ltCfg.FallbackInterval = cfg.Outbox.PollInterval

	repo := outbox.NewRepository(db)
	relay := outbox.NewRelay(repo, publisher, nil, ltCfg)
	listener, err := outbox.NewListener(relay, ltCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("create outbox listener")
	}

	health := outbox.NewHealthChecker(relay, db, repo, publisher, outbox.DefaultHealthConfig())
	mux := http.NewServeMux()
	mux.Handle("/health", health)
	srv := &http.Server{Addr: ":" + getEnv("HEALTH_PORT", "8081"), Handler: mux}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Msg("starting outbox relay")
		return listener.Start(gctx)
	})
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return srv.Shutdown(context.Background())
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("outbox relay exited")
		os.Exit(1)
	}
	log.Info().Msg("graceful shutdown complete")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
