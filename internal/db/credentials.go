package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"AnemoneDB/internal/models"
)

// UpsertCredential stores the credential, replacing any previous one for the login.
func (s *Store) UpsertCredential(ctx context.Context, cred models.Credential) error {
	_, err := s.Pool.Exec(ctx,
		`INSERT INTO anemonedb_dd_users (user_login, dd_pass, dd_pass_expiry)
		 VALUES ($1,$2,$3)
		 ON CONFLICT (user_login) DO UPDATE SET
		     dd_pass = EXCLUDED.dd_pass,
		     dd_pass_expiry = EXCLUDED.dd_pass_expiry`,
		cred.UserLogin,
		cred.PassHash,
		cred.ExpiresAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert credential: %w", err)
	}
	return nil
}

// GetCredential returns nil when the login has no credential.
func (s *Store) GetCredential(ctx context.Context, login string) (*models.Credential, error) {
	var (
		cred   models.Credential
		expiry int64
	)

	err := s.Pool.QueryRow(ctx,
		`SELECT user_login, dd_pass, dd_pass_expiry
		 FROM anemonedb_dd_users
		 WHERE user_login = $1`,
		login,
	).Scan(&cred.UserLogin, &cred.PassHash, &expiry)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get credential: %w", err)
	}

	cred.ExpiresAt = time.Unix(expiry, 0)
	return &cred, nil
}

// DeleteExpiredCredentials removes credentials whose expiry is at or before now.
func (s *Store) DeleteExpiredCredentials(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.Pool.Exec(ctx,
		`DELETE FROM anemonedb_dd_users WHERE dd_pass_expiry <= $1`,
		now.Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("delete expired credentials: %w", err)
	}
	return tag.RowsAffected(), nil
}
