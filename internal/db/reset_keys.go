package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"AnemoneDB/internal/models"
)

// UpsertResetKey keeps a single outstanding reset key per user.
func (s *Store) UpsertResetKey(ctx context.Context, key models.ResetKey) error {
	_, err := s.Pool.Exec(ctx,
		`INSERT INTO anemonedb_reset_keys (user_id, key_hash, issued_at)
		 VALUES ($1,$2,$3)
		 ON CONFLICT (user_id) DO UPDATE SET
		     key_hash = EXCLUDED.key_hash,
		     issued_at = EXCLUDED.issued_at`,
		key.UserID,
		key.KeyHash,
		key.IssuedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert reset key: %w", err)
	}
	return nil
}

// GetResetKey returns nil when the user has no outstanding key.
func (s *Store) GetResetKey(ctx context.Context, userID int64) (*models.ResetKey, error) {
	var key models.ResetKey
	err := s.Pool.QueryRow(ctx,
		`SELECT user_id, key_hash, issued_at FROM anemonedb_reset_keys WHERE user_id = $1`,
		userID,
	).Scan(&key.UserID, &key.KeyHash, &key.IssuedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get reset key: %w", err)
	}
	return &key, nil
}

func (s *Store) DeleteResetKey(ctx context.Context, userID int64) error {
	if _, err := s.Pool.Exec(ctx, `DELETE FROM anemonedb_reset_keys WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("delete reset key: %w", err)
	}
	return nil
}
