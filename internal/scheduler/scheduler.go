// Package scheduler runs named recurring triggers on robfig/cron. Whether a
// trigger is armed is persisted, so armed triggers survive restarts and are
// re-registered by Restore.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type Store interface {
	ArmTrigger(ctx context.Context, name string, period time.Duration) error
	DisarmTrigger(ctx context.Context, name string) error
	TriggerArmed(ctx context.Context, name string) (bool, error)
}

type Scheduler struct {
	cron  *cron.Cron
	store Store
	log   *zap.Logger

	mu      sync.Mutex
	ctx     context.Context
	entries map[string]cron.EntryID
}

func New(store Store, logger *zap.Logger) *Scheduler {
	cl := cronLogger{logger.Sugar()}
	return &Scheduler{
		cron:    cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		store:   store,
		log:     logger,
		ctx:     context.Background(),
		entries: make(map[string]cron.EntryID),
	}
}

// Start runs the cron loop. Jobs receive ctx, so cancelling it stops
// in-flight ticks at their next context check.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()
	s.cron.Start()
}

// Stop halts scheduling and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Trigger declares a named recurring trigger. Nothing is scheduled until Arm or Restore.
func (s *Scheduler) Trigger(name string, period time.Duration, fn func(context.Context)) *Trigger {
	return &Trigger{s: s, name: name, period: period, fn: fn}
}

type Trigger struct {
	s      *Scheduler
	name   string
	period time.Duration
	fn     func(context.Context)
}

func (t *Trigger) Name() string { return t.name }

// Arm persists the trigger and schedules it when not already scheduled. The
// first run fires shortly after arming, then every period.
func (t *Trigger) Arm(ctx context.Context) error {
	if err := t.s.store.ArmTrigger(ctx, t.name, t.period); err != nil {
		return err
	}
	t.schedule()
	return nil
}

// Disarm removes the persisted trigger, then unschedules it. When the delete
// fails the trigger stays scheduled, so memory never lags the stored state.
func (t *Trigger) Disarm(ctx context.Context) error {
	if err := t.s.store.DisarmTrigger(ctx, t.name); err != nil {
		return err
	}
	t.unschedule()
	return nil
}

// IsArmed reports the persisted state.
func (t *Trigger) IsArmed(ctx context.Context) (bool, error) {
	return t.s.store.TriggerArmed(ctx, t.name)
}

// Restore schedules the trigger if it was armed before a restart.
func (t *Trigger) Restore(ctx context.Context) error {
	armed, err := t.IsArmed(ctx)
	if err != nil {
		return fmt.Errorf("restore trigger %s: %w", t.name, err)
	}
	if armed {
		t.schedule()
	}
	return nil
}

func (t *Trigger) schedule() {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[t.name]; ok {
		return
	}

	sched := everyFrom{start: time.Now().Add(time.Second), period: t.period}
	id := s.cron.Schedule(sched, cron.FuncJob(func() {
		s.mu.Lock()
		ctx := s.ctx
		s.mu.Unlock()
		t.fn(ctx)
	}))
	s.entries[t.name] = id

	s.log.Info("trigger armed",
		zap.String("trigger", t.name),
		zap.Duration("period", t.period),
	)
}

func (t *Trigger) unschedule() {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.entries[t.name]
	if !ok {
		return
	}
	s.cron.Remove(id)
	delete(s.entries, t.name)

	s.log.Info("trigger disarmed", zap.String("trigger", t.name))
}

// scheduled reports whether the trigger has a live cron entry.
func (t *Trigger) scheduled() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	_, ok := t.s.entries[t.name]
	return ok
}

// everyFrom fires once at start and then every period.
type everyFrom struct {
	start  time.Time
	period time.Duration
}

func (e everyFrom) Next(t time.Time) time.Time {
	if t.Before(e.start) {
		return e.start
	}
	return cron.Every(e.period).Next(t)
}

type cronLogger struct {
	l *zap.SugaredLogger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Errorw(msg, append(keysAndValues, "error", err)...)
}
