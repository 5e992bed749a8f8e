// Package credential issues the time limited data download password. Only a
// bcrypt hash is stored; the plaintext is returned once at issue time.
package credential

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"AnemoneDB/internal/metrics"
	"AnemoneDB/internal/models"
	"AnemoneDB/internal/secret"
)

const (
	PasswordLength = 12
	DefaultTTL     = 10 * 24 * time.Hour
)

var (
	ErrNotFound     = errors.New("no valid data download password")
	ErrInvalid      = errors.New("data download password does not match")
	ErrLoginMissing = errors.New("user login required")
)

type Store interface {
	UpsertCredential(ctx context.Context, cred models.Credential) error
	GetCredential(ctx context.Context, login string) (*models.Credential, error)
	DeleteExpiredCredentials(ctx context.Context, now time.Time) (int64, error)
}

type Service struct {
	store Store
	ttl   time.Duration
	log   *zap.Logger
	now   func() time.Time
}

func New(store Store, ttl time.Duration, logger *zap.Logger) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{store: store, ttl: ttl, log: logger, now: time.Now}
}

// Issued carries the plaintext password. It is never persisted.
type Issued struct {
	Login     string    `json:"user_login"`
	Password  string    `json:"password"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Issue generates a new password for login, replacing any previous one.
func (s *Service) Issue(ctx context.Context, login string) (Issued, error) {
	if login == "" {
		return Issued{}, ErrLoginMissing
	}

	password, err := secret.Alnum(PasswordLength)
	if err != nil {
		return Issued{}, err
	}
	hash, err := secret.Hash(password)
	if err != nil {
		return Issued{}, err
	}

	expires := s.now().Add(s.ttl).Truncate(time.Second)
	if err := s.store.UpsertCredential(ctx, models.Credential{
		UserLogin: login,
		PassHash:  hash,
		ExpiresAt: expires,
	}); err != nil {
		return Issued{}, fmt.Errorf("issue data download password: %w", err)
	}

	metrics.CredentialsIssued.Inc()
	s.log.Info("data download password issued",
		zap.String("user_login", login),
		zap.Time("expires_at", expires),
	)

	return Issued{Login: login, Password: password, ExpiresAt: expires}, nil
}

// Status returns the expiry of the login's unexpired password.
func (s *Service) Status(ctx context.Context, login string) (time.Time, error) {
	cred, err := s.valid(ctx, login)
	if err != nil {
		return time.Time{}, err
	}
	return cred.ExpiresAt, nil
}

// Verify checks password against the login's unexpired credential.
func (s *Service) Verify(ctx context.Context, login, password string) error {
	cred, err := s.valid(ctx, login)
	if err != nil {
		return err
	}
	if !secret.Matches(cred.PassHash, password) {
		return ErrInvalid
	}
	return nil
}

func (s *Service) valid(ctx context.Context, login string) (*models.Credential, error) {
	if login == "" {
		return nil, ErrLoginMissing
	}
	cred, err := s.store.GetCredential(ctx, login)
	if err != nil {
		return nil, err
	}
	if cred == nil || !cred.ExpiresAt.After(s.now()) {
		return nil, ErrNotFound
	}
	return cred, nil
}

// Sweep deletes expired credentials. It runs on its own trigger, independent
// of the bulk mail job.
func (s *Service) Sweep(ctx context.Context) (int64, error) {
	n, err := s.store.DeleteExpiredCredentials(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("sweep data download passwords: %w", err)
	}
	if n > 0 {
		metrics.CredentialsSwept.Add(float64(n))
		s.log.Info("expired data download passwords removed", zap.Int64("count", n))
	}
	return n, nil
}
