package main

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/brainstorm/go/internal/config"
	"github.com/mcdev12/brainstorm/go/internal/dbconfig"
	"github.com/mcdev12/brainstorm/go/internal/store"
)

// setupStore opens the configured store. db is nil for the memory driver.
func setupStore(ctx context.Context, cfg *config.Config) (store.Store, *sqlx.DB, error) {
	if cfg.Store.Driver == config.StoreMemory {
		mem := store.NewMemory()
		if cfg.Store.SeedFile != "" {
			seed, err := store.LoadSeed(cfg.Store.SeedFile)
			if err != nil {
				return nil, nil, err
			}
			mem.Load(seed)
			log.Info().
				Int("teams", len(seed.Teams)).
				Int("topics", len(seed.Topics)).
				Msg("seeded in-memory directory")
		}
		return mem, nil, nil
	}

	dbCfg := dbconfig.NewConfigFromEnv()
	db, err := sqlx.Open("postgres", dbCfg.DSN())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create database connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	pg := store.NewPostgres(db)
	if err := pg.Migrate(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to migrate: %w", err)
	}

	log.Info().
		Str("target", dbCfg.String()).
		Msg("connected to database")
	return pg, db, nil
}
