package mailjob

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"

	"AnemoneDB/internal/metrics"
	"AnemoneDB/internal/models"
)

// Preview is what the operator confirms before a campaign starts.
type Preview struct {
	Request    models.StartRequest `json:"request"`
	Recipients int                 `json:"recipients"`
}

// Validate checks req against the known roles without touching the queue.
func (e *Engine) Validate(ctx context.Context, req models.StartRequest) error {
	verr := &ValidationError{}

	if strings.TrimSpace(req.Subject) == "" {
		verr.Add(fmt.Errorf("email subject is required"))
	}
	if strings.TrimSpace(req.Body) == "" {
		verr.Add(fmt.Errorf("email body is required"))
	}
	if req.BatchSize < models.MinBatchSize || req.BatchSize > models.MaxBatchSize {
		verr.Add(fmt.Errorf("batch size must be between %d and %d", models.MinBatchSize, models.MaxBatchSize))
	}

	if len(req.Roles) == 0 {
		verr.Add(fmt.Errorf("at least one recipient role is required"))
	} else {
		known, err := e.users.ListRoles(ctx)
		if err != nil {
			return fmt.Errorf("list roles: %w", err)
		}
		for _, role := range req.Roles {
			if !slices.Contains(known, role) {
				verr.Add(fmt.Errorf("recipient role %q is invalid", role))
			}
		}
	}

	if verr.HasError() {
		return verr
	}
	return nil
}

// Confirm validates req and counts the users it would reach.
func (e *Engine) Confirm(ctx context.Context, req models.StartRequest) (Preview, error) {
	if err := e.Validate(ctx, req); err != nil {
		return Preview{}, err
	}
	ids, err := e.recipients(ctx, req)
	if err != nil {
		return Preview{}, err
	}
	if len(ids) == 0 {
		return Preview{}, ErrNoRecipients
	}
	return Preview{Request: req, Recipients: len(ids)}, nil
}

// Start replaces any existing campaign with req and arms the trigger. Nothing
// is written unless req is valid and matches at least one user.
func (e *Engine) Start(ctx context.Context, req models.StartRequest) (int, error) {
	if err := e.Validate(ctx, req); err != nil {
		return 0, err
	}

	ids, err := e.recipients(ctx, req)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, ErrNoRecipients
	}

	release, ok, err := e.store.TryLock(ctx, e.cfg.LockID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrTickInProgress
	}
	defer release()

	n, err := e.store.CreateJob(ctx, models.Job{
		Subject:   req.Subject,
		Body:      req.Body,
		Status:    models.StatusActive,
		BatchSize: req.BatchSize,
	}, ids)
	if err != nil {
		return 0, err
	}

	if err := e.arm(ctx); err != nil {
		return n, err
	}

	metrics.RecipientsPending.Set(float64(n))
	e.log.Info("bulk mail job started",
		zap.Int("recipients", n),
		zap.Int("batch_size", req.BatchSize),
		zap.Strings("roles", req.Roles),
		zap.Bool("unlogged_only", req.UnloggedOnly),
	)

	e.changed(ctx)
	return n, nil
}

// recipients pages through the matching users by id.
func (e *Engine) recipients(ctx context.Context, req models.StartRequest) ([]int64, error) {
	var (
		ids   []int64
		after int64
	)
	for {
		page, err := e.users.ListUserIDs(ctx, models.UserFilter{
			Roles:        req.Roles,
			UnloggedOnly: req.UnloggedOnly,
			AfterID:      after,
			Limit:        e.cfg.PageSize,
		})
		if err != nil {
			return nil, fmt.Errorf("list recipients: %w", err)
		}
		ids = append(ids, page...)
		if len(page) < e.cfg.PageSize {
			return ids, nil
		}
		after = page[len(page)-1]
	}
}

func (e *Engine) Pause(ctx context.Context) error {
	if err := e.transition(ctx, models.StatusActive, models.StatusPaused, ErrNotActive); err != nil {
		return err
	}
	e.log.Info("bulk mail job paused")
	e.changed(ctx)
	return nil
}

// Resume reactivates a paused job, re-arming the trigger if it was cleared.
func (e *Engine) Resume(ctx context.Context) error {
	if err := e.transition(ctx, models.StatusPaused, models.StatusActive, ErrNotPaused); err != nil {
		return err
	}
	if err := e.arm(ctx); err != nil {
		return err
	}
	e.log.Info("bulk mail job resumed")
	e.changed(ctx)
	return nil
}

func (e *Engine) transition(ctx context.Context, from, to models.JobStatus, wrong error) error {
	if !models.IsValidTransition(from, to) {
		return fmt.Errorf("invalid job transition %s -> %s", from, to)
	}

	ok, err := e.store.UpdateJobStatus(ctx, from, to)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	job, err := e.store.GetJob(ctx)
	if err != nil {
		return err
	}
	if job == nil {
		return ErrNoJob
	}
	return wrong
}

// Cancel purges the job, its queue and the trigger whatever state they are
// in. The cleanup also runs when no job row exists, so recipients or an armed
// trigger left behind by a failed completion are cleared; ErrNoJob is then
// returned to report that there was nothing to cancel.
func (e *Engine) Cancel(ctx context.Context) error {
	job, err := e.store.GetJob(ctx)
	if err != nil {
		return err
	}

	if err := e.store.PurgeJob(ctx); err != nil {
		return err
	}
	if err := e.trigger.Disarm(ctx); err != nil {
		return fmt.Errorf("disarm trigger: %w", err)
	}

	metrics.RecipientsPending.Set(0)
	e.changed(ctx)

	if job == nil {
		e.log.Info("bulk mail state cleared, no job to cancel")
		return ErrNoJob
	}
	e.log.Info("bulk mail job cancelled", zap.String("status", job.Status.String()))
	return nil
}

// arm always goes through Trigger.Arm: the persisted flag can be set while
// nothing is scheduled in this process, and Arm is idempotent.
func (e *Engine) arm(ctx context.Context) error {
	if err := e.trigger.Arm(ctx); err != nil {
		return fmt.Errorf("arm trigger: %w", err)
	}
	return nil
}
