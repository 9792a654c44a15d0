package repository

import (
	"context"
	"fmt"
)

// WithinTx runs fn inside a single transaction. The transaction is committed
// only if fn returns nil and is rolled back on every other exit path,
// including panics.
func (r *Repository) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := r.db.BeginTx(ctx, r.txOpts)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	bound := &Repository{db: r.db, q: tx, dialect: r.dialect, txOpts: r.txOpts}
	if err := fn(bound); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	committed = true
	return nil
}
