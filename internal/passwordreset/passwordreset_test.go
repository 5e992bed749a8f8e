package passwordreset

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"AnemoneDB/internal/models"
)

type memStore struct {
	keys  map[int64]models.ResetKey
	users map[string]*models.User
}

func newMemStore(users ...*models.User) *memStore {
	m := &memStore{keys: make(map[int64]models.ResetKey), users: make(map[string]*models.User)}
	for _, u := range users {
		m.users[u.Login] = u
	}
	return m
}

func (m *memStore) UpsertResetKey(_ context.Context, key models.ResetKey) error {
	m.keys[key.UserID] = key
	return nil
}

func (m *memStore) GetResetKey(_ context.Context, userID int64) (*models.ResetKey, error) {
	k, ok := m.keys[userID]
	if !ok {
		return nil, nil
	}
	return &k, nil
}

func (m *memStore) DeleteResetKey(_ context.Context, userID int64) error {
	delete(m.keys, userID)
	return nil
}

func (m *memStore) GetUserByLogin(_ context.Context, login string) (*models.User, error) {
	return m.users[login], nil
}

func TestKeys_IssueAndVerify(t *testing.T) {
	alice := &models.User{ID: 7, Login: "alice", Email: "alice@example.org"}
	store := newMemStore(alice)
	k := New(store, store, 0, zap.NewNop())
	ctx := context.Background()

	key, err := k.Issue(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, key, KeyLength)
	assert.NotEqual(t, key, store.keys[7].KeyHash)

	user, err := k.Verify(ctx, "alice", key)
	require.NoError(t, err)
	assert.Equal(t, int64(7), user.ID)

	// consumed
	_, err = k.Verify(ctx, "alice", key)
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestKeys_ReissueInvalidatesPrevious(t *testing.T) {
	alice := &models.User{ID: 7, Login: "alice"}
	store := newMemStore(alice)
	k := New(store, store, 0, zap.NewNop())
	ctx := context.Background()

	first, err := k.Issue(ctx, alice)
	require.NoError(t, err)
	second, err := k.Issue(ctx, alice)
	require.NoError(t, err)

	_, err = k.Verify(ctx, "alice", first)
	assert.ErrorIs(t, err, ErrInvalidKey)
	_, err = k.Verify(ctx, "alice", second)
	assert.NoError(t, err)
}

func TestKeys_Expired(t *testing.T) {
	alice := &models.User{ID: 7, Login: "alice"}
	store := newMemStore(alice)
	k := New(store, store, time.Hour, zap.NewNop())
	issued := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	k.now = func() time.Time { return issued }

	key, err := k.Issue(context.Background(), alice)
	require.NoError(t, err)

	k.now = func() time.Time { return issued.Add(time.Hour + time.Second) }
	_, err = k.Verify(context.Background(), "alice", key)
	assert.ErrorIs(t, err, ErrExpiredKey)
}

func TestKeys_UnknownLogin(t *testing.T) {
	store := newMemStore()
	k := New(store, store, 0, zap.NewNop())

	_, err := k.Verify(context.Background(), "nobody", "whatever")
	assert.ErrorIs(t, err, ErrInvalidKey)
}
