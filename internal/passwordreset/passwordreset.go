package passwordreset

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"AnemoneDB/internal/models"
	"AnemoneDB/internal/secret"
)

const (
	KeyLength  = 20
	DefaultTTL = 24 * time.Hour
)

var (
	ErrInvalidKey = errors.New("invalid password reset key")
	ErrExpiredKey = errors.New("expired password reset key")
)

type Store interface {
	UpsertResetKey(ctx context.Context, key models.ResetKey) error
	GetResetKey(ctx context.Context, userID int64) (*models.ResetKey, error)
	DeleteResetKey(ctx context.Context, userID int64) error
}

type Users interface {
	GetUserByLogin(ctx context.Context, login string) (*models.User, error)
}

// Keys issues and checks one time password reset keys. A user holds at most
// one key; issuing again invalidates the previous one.
type Keys struct {
	store Store
	users Users
	ttl   time.Duration
	log   *zap.Logger
	now   func() time.Time
}

func New(store Store, users Users, ttl time.Duration, logger *zap.Logger) *Keys {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Keys{store: store, users: users, ttl: ttl, log: logger, now: time.Now}
}

// Issue stores a fresh key for user and returns its plaintext.
func (k *Keys) Issue(ctx context.Context, user *models.User) (string, error) {
	key, err := secret.Alnum(KeyLength)
	if err != nil {
		return "", err
	}
	hash, err := secret.Hash(key)
	if err != nil {
		return "", err
	}

	if err := k.store.UpsertResetKey(ctx, models.ResetKey{
		UserID:   user.ID,
		KeyHash:  hash,
		IssuedAt: k.now(),
	}); err != nil {
		return "", fmt.Errorf("issue reset key for %s: %w", user.Login, err)
	}

	k.log.Debug("password reset key issued", zap.String("user_login", user.Login))
	return key, nil
}

// Verify checks key for login and consumes it on success.
func (k *Keys) Verify(ctx context.Context, login, key string) (*models.User, error) {
	user, err := k.users.GetUserByLogin(ctx, login)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidKey
	}

	stored, err := k.store.GetResetKey(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if stored == nil || !secret.Matches(stored.KeyHash, key) {
		return nil, ErrInvalidKey
	}
	if k.now().Sub(stored.IssuedAt) > k.ttl {
		return nil, ErrExpiredKey
	}

	if err := k.store.DeleteResetKey(ctx, user.ID); err != nil {
		return nil, fmt.Errorf("consume reset key: %w", err)
	}
	return user, nil
}
