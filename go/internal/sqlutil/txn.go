package sqlutil

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// Run executes fn inside a *sqlx.Tx.
// If fn returns an error the tx rolls back, else it commits.
func Run[T any](
	ctx context.Context,
	db *sqlx.DB,
	bind func(*sqlx.Tx) T,
	fn func(q T) error,
) error {
	tx, err := db.BeginTxx(ctx, nil) // BEGIN
	if err != nil {
		return err
	}
	q := bind(tx) // bind queries to this tx
	if err := fn(q); err != nil {
		_ = tx.Rollback() // ROLLBACK
		return err
	}
	return tx.Commit() // COMMIT
}
