package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mcdev12/brainstorm/go/internal/dbconfig"
	"github.com/mcdev12/brainstorm/go/internal/models"
	"github.com/mcdev12/brainstorm/go/internal/store"
)

func main() {
	// 1) Load the JSON snapshot
	path := os.Getenv("SEED_FILE")
	if path == "" {
		path = "go/internal/assets/teams.json"
	}
	seed, err := store.LoadSeed(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	// 2) Connect using shared dbconfig
	ctx := context.Background()
	cfg := dbconfig.NewConfigFromEnv()
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	// 3) Insert and count
	var inserted, skipped, errs int
	for _, t := range seed.Teams {
		ok, err := insertTeam(ctx, pool, t)
		switch {
		case err != nil:
			fmt.Fprintf(os.Stderr, "error inserting team %s: %v\n", t.ID, err)
			errs++
		case ok:
			inserted++
		default:
			skipped++
		}
	}
	for _, t := range seed.Topics {
		cmdTag, err := pool.Exec(ctx, `
            INSERT INTO topics (id, title, description)
            VALUES ($1, $2, NULLIF($3, ''))
            ON CONFLICT (id) DO NOTHING
        `, t.ID, t.Title, t.Description)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error inserting topic %s: %v\n", t.ID, err)
			errs++
			continue
		}
		if cmdTag.RowsAffected() == 1 {
			inserted++
		} else {
			skipped++
		}
	}

	// 4) Print summary
	fmt.Printf(
		"Seed complete: %d teams, %d topics, %d inserted, %d skipped, %d errors\n",
		len(seed.Teams), len(seed.Topics), inserted, skipped, errs,
	)
	if errs > 0 {
		os.Exit(1)
	}
}

// insertTeam writes a team and its members in one transaction. It reports
// false when the team already exists.
func insertTeam(ctx context.Context, pool *pgxpool.Pool, t models.Team) (bool, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	var managerID, managerName any
	if t.Manager != nil {
		managerID, managerName = t.Manager.UserID, t.Manager.DisplayName
	}
	cmdTag, err := tx.Exec(ctx, `
        INSERT INTO teams (id, name, leader_id, leader_name, manager_id, manager_name, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, now()))
        ON CONFLICT (id) DO NOTHING
    `, t.ID, t.Name, t.Leader.UserID, t.Leader.DisplayName, managerID, managerName, createdAt(t))
	if err != nil {
		return false, err
	}
	if cmdTag.RowsAffected() == 0 {
		return false, nil
	}

	batch := &pgx.Batch{}
	for i, m := range t.Members {
		batch.Queue(`
            INSERT INTO team_members (team_id, user_id, display_name, position)
            VALUES ($1, $2, $3, $4)
            ON CONFLICT (team_id, user_id) DO NOTHING
        `, t.ID, m.UserID, m.DisplayName, i)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return false, fmt.Errorf("members: %w", err)
	}
	return true, tx.Commit(ctx)
}

func createdAt(t models.Team) any {
	if t.CreatedAt.IsZero() {
		return nil
	}
	return t.CreatedAt
}
