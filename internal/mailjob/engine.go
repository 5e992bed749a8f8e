// Package mailjob runs the singleton bulk mail campaign: a job row plus a
// queue of recipient ids drained one batch per tick.
package mailjob

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"AnemoneDB/internal/mailtmpl"
	"AnemoneDB/internal/models"
)

const (
	DefaultPageSize   = 1000
	DefaultSendBudget = 60 * time.Second

	// cleanupTimeout bounds the bookkeeping done after the tick context is
	// cancelled mid batch.
	cleanupTimeout = 10 * time.Second
)

type Store interface {
	GetJob(ctx context.Context) (*models.Job, error)
	CreateJob(ctx context.Context, job models.Job, userIDs []int64) (int, error)
	UpdateJobStatus(ctx context.Context, from, to models.JobStatus) (bool, error)
	DeleteJob(ctx context.Context) error
	PurgeJob(ctx context.Context) error
	PeekRecipients(ctx context.Context, limit int) ([]int64, error)
	DeleteRecipients(ctx context.Context, userIDs []int64) error
	CountRecipients(ctx context.Context) (int, error)
	HasPendingRows(ctx context.Context) (bool, error)
	TryLock(ctx context.Context, lockID int64) (func(), bool, error)
}

type Users interface {
	ListUserIDs(ctx context.Context, filter models.UserFilter) ([]int64, error)
	GetUser(ctx context.Context, id int64) (*models.User, error)
	ListRoles(ctx context.Context) ([]string, error)
}

type Mailer interface {
	Send(ctx context.Context, msg mailtmpl.Message) error
}

type ResetKeys interface {
	Issue(ctx context.Context, user *models.User) (string, error)
}

// Trigger is the recurring schedule that calls Tick.
type Trigger interface {
	Arm(ctx context.Context) error
	Disarm(ctx context.Context) error
	IsArmed(ctx context.Context) (bool, error)
}

type Config struct {
	Site   mailtmpl.Site
	LockID int64
	// SendBudget is spread evenly over a batch. Zero disables pacing.
	SendBudget time.Duration
	PageSize   int
}

type Engine struct {
	store   Store
	users   Users
	mailer  Mailer
	keys    ResetKeys
	trigger Trigger
	cfg     Config
	log     *zap.Logger

	mu       sync.RWMutex
	onChange []func(models.JobView)
}

func New(
	store Store,
	users Users,
	mailer Mailer,
	keys ResetKeys,
	trigger Trigger,
	cfg Config,
	logger *zap.Logger,
) *Engine {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	return &Engine{
		store:   store,
		users:   users,
		mailer:  mailer,
		keys:    keys,
		trigger: trigger,
		cfg:     cfg,
		log:     logger,
	}
}

// OnChange registers fn to receive the job view after every state change.
func (e *Engine) OnChange(fn func(models.JobView)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onChange = append(e.onChange, fn)
}

func (e *Engine) changed(ctx context.Context) {
	e.mu.RLock()
	fns := e.onChange
	e.mu.RUnlock()
	if len(fns) == 0 {
		return
	}

	view, err := e.Status(ctx)
	if err != nil {
		e.log.Warn("failed to load job view", zap.Error(err))
		return
	}
	for _, fn := range fns {
		fn(view)
	}
}

// Status returns the operator view of the current campaign.
func (e *Engine) Status(ctx context.Context) (models.JobView, error) {
	armed, err := e.trigger.IsArmed(ctx)
	if err != nil {
		return models.JobView{}, err
	}
	view := models.JobView{Status: "none", TriggerArmed: armed}

	job, err := e.store.GetJob(ctx)
	if err != nil {
		return models.JobView{}, err
	}
	if job == nil {
		return view, nil
	}

	remaining, err := e.store.CountRecipients(ctx)
	if err != nil {
		return models.JobView{}, err
	}

	view.Status = job.Status.String()
	view.Subject = job.Subject
	view.BatchSize = job.BatchSize
	view.Remaining = remaining
	return view, nil
}

// HasPendingWork reports whether a job row, queued recipients or an armed
// trigger remain. Storage must not be torn down while it is true.
func (e *Engine) HasPendingWork(ctx context.Context) (bool, error) {
	pending, err := e.store.HasPendingRows(ctx)
	if err != nil {
		return false, fmt.Errorf("check pending rows: %w", err)
	}
	if pending {
		return true, nil
	}
	return e.trigger.IsArmed(ctx)
}

func (e *Engine) pacing(batchSize int) *rate.Limiter {
	if e.cfg.SendBudget <= 0 || batchSize <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(e.cfg.SendBudget/time.Duration(batchSize)), 1)
}
