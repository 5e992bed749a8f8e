package db

import (
	"context"
	"fmt"
	"time"
)

const lockTimeout = 5 * time.Second

// TryLock takes a transaction level advisory lock without waiting. The lock
// lives as long as the transaction, which pins one pooled connection until
// release is called. A failed rollback closes that connection, and the server
// drops the lock with it.
func (s *Store) TryLock(ctx context.Context, lockID int64) (func(), bool, error) {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire lock: %w", err)
	}

	var acquired bool
	if err := tx.QueryRow(ctx, "SELECT pg_try_advisory_xact_lock($1)", lockID).Scan(&acquired); err != nil {
		_ = tx.Rollback(ctx)
		return nil, false, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !acquired {
		_ = tx.Rollback(ctx)
		return nil, false, nil
	}

	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), lockTimeout)
		defer cancel()
		_ = tx.Rollback(ctx)
	}

	return release, true, nil
}
