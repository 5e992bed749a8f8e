package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"AnemoneDB/internal/models"
)

// ListUserIDs pages through users holding any of filter.Roles using a keyset
// cursor on id, so rows inserted during enumeration never shift later pages.
func (s *Store) ListUserIDs(ctx context.Context, filter models.UserFilter) ([]int64, error) {
	if len(filter.Roles) == 0 {
		return nil, nil
	}

	args := make([]any, 0, len(filter.Roles)+2)
	for _, role := range filter.Roles {
		args = append(args, role)
	}
	n := len(args)
	args = append(args, filter.AfterID, filter.Limit)

	query := `SELECT DISTINCT u.id
		 FROM users u
		 JOIN user_roles r ON r.user_id = u.id
		 WHERE r.role IN (` + placeholders(1, n) + `)
		   AND u.id > $` + fmt.Sprint(n+1)
	if filter.UnloggedOnly {
		query += `
		   AND u.last_login IS NULL`
	}
	query += `
		 ORDER BY u.id
		 LIMIT $` + fmt.Sprint(n+2)

	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// GetUser returns nil when the user no longer exists.
func (s *Store) GetUser(ctx context.Context, id int64) (*models.User, error) {
	return s.getUser(ctx, `WHERE id = $1`, id)
}

// GetUserByLogin returns nil when no user has the login.
func (s *Store) GetUserByLogin(ctx context.Context, login string) (*models.User, error) {
	return s.getUser(ctx, `WHERE user_login = $1`, login)
}

func (s *Store) getUser(ctx context.Context, where string, arg any) (*models.User, error) {
	var user models.User

	err := s.Pool.QueryRow(ctx,
		`SELECT id, user_login, user_email, user_nicename, last_login FROM users `+where,
		arg,
	).Scan(&user.ID, &user.Login, &user.Email, &user.Nicename, &user.LastLogin)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}

	return &user, nil
}

// RecordLogin stamps the user's last successful login.
func (s *Store) RecordLogin(ctx context.Context, login string, at time.Time) error {
	_, err := s.Pool.Exec(ctx,
		`UPDATE users SET last_login=$1 WHERE user_login=$2`,
		at,
		login,
	)
	if err != nil {
		return fmt.Errorf("record login: %w", err)
	}
	return nil
}

// ListRoles returns the role names known to the site.
func (s *Store) ListRoles(ctx context.Context) ([]string, error) {
	rows, err := s.Pool.Query(ctx, `SELECT name FROM roles ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	defer rows.Close()

	var roles []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		roles = append(roles, name)
	}

	return roles, rows.Err()
}
