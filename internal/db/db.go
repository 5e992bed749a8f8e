package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	tableContent     = "anemonedb_email_content"
	tableRecipients  = "anemonedb_email_recipients"
	tableCredentials = "anemonedb_dd_users"
	tableResetKeys   = "anemonedb_reset_keys"
	tableTriggers    = "anemonedb_triggers"

	insertChunk = 1000

	pingTimeout = 5 * time.Second
)

// hostSchema holds the tables owned by the community site. They are created
// only when missing and are never dropped by this service.
const hostSchema = `
CREATE TABLE IF NOT EXISTS users (
	id BIGSERIAL PRIMARY KEY,
	user_login VARCHAR(60) NOT NULL UNIQUE,
	user_email VARCHAR(100) NOT NULL,
	user_nicename VARCHAR(50) NOT NULL DEFAULT '',
	last_login TIMESTAMPTZ
);
CREATE TABLE IF NOT EXISTS roles (
	name VARCHAR(60) PRIMARY KEY,
	display_name TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS user_roles (
	user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	role VARCHAR(60) NOT NULL REFERENCES roles(name) ON DELETE CASCADE,
	PRIMARY KEY (user_id, role)
);
`

const serviceSchema = `
CREATE TABLE IF NOT EXISTS anemonedb_email_content (
	id SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
	subject TEXT NOT NULL,
	body TEXT NOT NULL,
	status VARCHAR(16) NOT NULL DEFAULT 'completed' CHECK (status IN ('active', 'paused', 'completed')),
	batch_size INTEGER NOT NULL DEFAULT 1000 CHECK (batch_size BETWEEN 10 AND 10000),
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS anemonedb_email_recipients (
	user_id BIGINT PRIMARY KEY
);
CREATE TABLE IF NOT EXISTS anemonedb_dd_users (
	user_login VARCHAR(60) PRIMARY KEY,
	dd_pass VARCHAR(255) NOT NULL,
	dd_pass_expiry BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS anemonedb_dd_users_expiry ON anemonedb_dd_users (dd_pass_expiry);
CREATE TABLE IF NOT EXISTS anemonedb_reset_keys (
	user_id BIGINT PRIMARY KEY,
	key_hash VARCHAR(255) NOT NULL,
	issued_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS anemonedb_triggers (
	name VARCHAR(64) PRIMARY KEY,
	period_seconds BIGINT NOT NULL,
	armed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// Pool is the part of *pgxpool.Pool the store uses.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

type Store struct {
	Pool Pool
}

func New(conn string) (*Store, error) {
	pool, err := pgxpool.New(context.Background(), conn)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{Pool: pool}, nil
}

func NewWithPool(pool Pool) *Store {
	return &Store{Pool: pool}
}

func (s *Store) Close() {
	s.Pool.Close()
}

// inTx runs fn in a transaction and commits when it succeeds.
func (s *Store) inTx(ctx context.Context, name string, fn func(pgx.Tx) error) error {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin %s: %w", name, err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit %s: %w", name, err)
	}
	return nil
}

// InitSchema creates the host tables when missing and the service tables.
func (s *Store) InitSchema(ctx context.Context) error {
	if _, err := s.Pool.Exec(ctx, hostSchema); err != nil {
		return fmt.Errorf("create host schema: %w", err)
	}
	if _, err := s.Pool.Exec(ctx, serviceSchema); err != nil {
		return fmt.Errorf("create service schema: %w", err)
	}
	return nil
}

// DropSchema removes every table owned by this service.
func (s *Store) DropSchema(ctx context.Context) error {
	query := "DROP TABLE IF EXISTS " + strings.Join([]string{
		tableContent, tableRecipients, tableCredentials, tableResetKeys, tableTriggers,
	}, ", ")
	if _, err := s.Pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("drop service schema: %w", err)
	}
	return nil
}

// placeholders returns "$start, $start+1, ..." for n arguments.
func placeholders(start, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("$%d", start+i)
	}
	return strings.Join(parts, ", ")
}
