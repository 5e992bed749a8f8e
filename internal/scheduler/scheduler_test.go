package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type memStore struct {
	mu        sync.Mutex
	armed     map[string]time.Duration
	disarmErr error
}

func newMemStore() *memStore {
	return &memStore{armed: make(map[string]time.Duration)}
}

func (m *memStore) ArmTrigger(_ context.Context, name string, period time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.armed[name] = period
	return nil
}

func (m *memStore) DisarmTrigger(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.disarmErr != nil {
		return m.disarmErr
	}
	delete(m.armed, name)
	return nil
}

func (m *memStore) TriggerArmed(_ context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.armed[name]
	return ok, nil
}

func TestTrigger_ArmDisarm(t *testing.T) {
	store := newMemStore()
	s := New(store, zaptest.NewLogger(t))
	ctx := context.Background()

	trig := s.Trigger("anemonedb_email_send", 10*time.Minute, func(context.Context) {})

	armed, err := trig.IsArmed(ctx)
	require.NoError(t, err)
	assert.False(t, armed)

	require.NoError(t, trig.Arm(ctx))
	require.NoError(t, trig.Arm(ctx))

	armed, err = trig.IsArmed(ctx)
	require.NoError(t, err)
	assert.True(t, armed)
	assert.True(t, trig.scheduled())
	assert.Len(t, s.cron.Entries(), 1)
	assert.Equal(t, 10*time.Minute, store.armed["anemonedb_email_send"])

	require.NoError(t, trig.Disarm(ctx))
	armed, err = trig.IsArmed(ctx)
	require.NoError(t, err)
	assert.False(t, armed)
	assert.False(t, trig.scheduled())
	assert.Empty(t, s.cron.Entries())
}

func TestTrigger_DisarmStoreFailureKeepsSchedule(t *testing.T) {
	store := newMemStore()
	s := New(store, zaptest.NewLogger(t))
	ctx := context.Background()

	trig := s.Trigger("anemonedb_email_send", time.Second, func(context.Context) {})
	require.NoError(t, trig.Arm(ctx))

	store.disarmErr = errors.New("connection reset")
	require.Error(t, trig.Disarm(ctx))

	armed, err := trig.IsArmed(ctx)
	require.NoError(t, err)
	assert.True(t, armed)
	assert.True(t, trig.scheduled())

	// A later arm for a new campaign finds the entry still in place.
	store.disarmErr = nil
	require.NoError(t, trig.Arm(ctx))
	assert.Len(t, s.cron.Entries(), 1)

	require.NoError(t, trig.Disarm(ctx))
	assert.False(t, trig.scheduled())
	assert.Empty(t, s.cron.Entries())
}

func TestTrigger_Restore(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()
	require.NoError(t, store.ArmTrigger(ctx, "persisted", time.Minute))

	s := New(store, zaptest.NewLogger(t))
	persisted := s.Trigger("persisted", time.Minute, func(context.Context) {})
	fresh := s.Trigger("fresh", time.Minute, func(context.Context) {})

	require.NoError(t, persisted.Restore(ctx))
	require.NoError(t, fresh.Restore(ctx))

	assert.True(t, persisted.scheduled())
	assert.False(t, fresh.scheduled())
}

func TestTrigger_FiresAfterArm(t *testing.T) {
	s := New(newMemStore(), zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fired := make(chan struct{}, 1)
	trig := s.Trigger("tick", time.Hour, func(context.Context) {
		select {
		case fired <- struct{}{}:
		default:
		}
	})

	s.Start(ctx)
	defer s.Stop()

	require.NoError(t, trig.Arm(ctx))

	select {
	case <-fired:
	case <-time.After(5 * time.Second):
		t.Fatal("trigger did not fire")
	}
}

func TestEveryFrom(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	e := everyFrom{start: start, period: 10 * time.Minute}

	assert.Equal(t, start, e.Next(start.Add(-time.Minute)))
	assert.Equal(t, start.Add(10*time.Minute), e.Next(start))
}
