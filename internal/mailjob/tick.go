package mailjob

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"AnemoneDB/internal/mailtmpl"
	"AnemoneDB/internal/metrics"
	"AnemoneDB/internal/models"
)

// TickResult summarises one batch.
type TickResult struct {
	Sent      int
	Failed    int
	Skipped   int
	Removed   int
	Remaining int
	Completed bool
}

// Tick sends the next batch of the active job. Only one tick runs at a time
// across every process sharing the database; an overlapping call returns
// ErrTickInProgress without doing anything.
func (e *Engine) Tick(ctx context.Context) (TickResult, error) {
	release, ok, err := e.store.TryLock(ctx, e.cfg.LockID)
	if err != nil {
		metrics.Ticks.WithLabelValues("error").Inc()
		return TickResult{}, err
	}
	if !ok {
		metrics.Ticks.WithLabelValues("skipped").Inc()
		e.log.Warn("bulk mail tick skipped, previous batch still running")
		return TickResult{}, ErrTickInProgress
	}
	defer release()

	res, outcome, err := e.tick(ctx)
	metrics.Ticks.WithLabelValues(outcome).Inc()
	return res, err
}

func (e *Engine) tick(ctx context.Context) (TickResult, string, error) {
	var res TickResult

	job, err := e.store.GetJob(ctx)
	if err != nil {
		return res, "error", err
	}
	if job == nil {
		if err := e.clearOrphans(ctx); err != nil {
			return res, "error", err
		}
		return res, "idle", nil
	}
	if job.Status == models.StatusPaused {
		return res, "paused", nil
	}

	ids, err := e.store.PeekRecipients(ctx, job.BatchSize)
	if err != nil {
		return res, "error", err
	}
	if len(ids) == 0 {
		if err := e.complete(ctx); err != nil {
			return res, "error", err
		}
		res.Completed = true
		return res, "completed", nil
	}

	done, sendErr := e.sendBatch(ctx, job, ids, &res)

	// Recipients already handled are dequeued even when the batch was cut
	// short, so they are not mailed again.
	cleanupCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		cleanupCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
		defer cancel()
	}

	if err := e.store.DeleteRecipients(cleanupCtx, done); err != nil {
		return res, "error", err
	}
	res.Removed = len(done)

	remaining, err := e.store.CountRecipients(cleanupCtx)
	if err != nil {
		return res, "error", err
	}
	res.Remaining = remaining
	metrics.RecipientsPending.Set(float64(remaining))

	outcome := "sent"
	if remaining == 0 {
		if err := e.complete(cleanupCtx); err != nil {
			return res, "error", err
		}
		res.Completed = true
		outcome = "completed"
	} else {
		e.changed(cleanupCtx)
	}

	e.log.Info("bulk mail batch finished",
		zap.Int("sent", res.Sent),
		zap.Int("failed", res.Failed),
		zap.Int("skipped", res.Skipped),
		zap.Int("remaining", remaining),
	)

	if sendErr != nil {
		return res, "interrupted", sendErr
	}
	return res, outcome, nil
}

// sendBatch mails every recipient in ids, pacing sends over the configured
// budget. It returns the ids that were handled, which excludes anything left
// unsent when ctx ends.
func (e *Engine) sendBatch(ctx context.Context, job *models.Job, ids []int64, res *TickResult) ([]int64, error) {
	limiter := e.pacing(job.BatchSize)
	withKey := mailtmpl.NeedsResetKey(job.Subject, job.Body)
	done := make([]int64, 0, len(ids))

	for _, id := range ids {

		// ----------------------------
		// Rate Limit
		// ----------------------------
		if err := limiter.Wait(ctx); err != nil {
			e.log.Warn("bulk mail pacing stopped by context", zap.Error(err))
			return done, fmt.Errorf("batch interrupted: %w", err)
		}

		// ----------------------------
		// Resolve User
		// ----------------------------
		user, err := e.users.GetUser(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return done, fmt.Errorf("batch interrupted: %w", ctx.Err())
			}
			e.log.Error("failed to load recipient", zap.Int64("user_id", id), zap.Error(err))
			res.Failed++
			done = append(done, id)
			continue
		}
		if user == nil {
			res.Skipped++
			done = append(done, id)
			continue
		}

		// ----------------------------
		// Render
		// ----------------------------
		msg, err := e.render(ctx, job, user, withKey)
		if err != nil {
			e.log.Error("failed to render email",
				zap.Int64("user_id", id),
				zap.Error(err),
			)
			res.Failed++
			done = append(done, id)
			continue
		}

		// ----------------------------
		// Send Email
		// ----------------------------
		if err := e.mailer.Send(ctx, msg); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return done, fmt.Errorf("batch interrupted: %w", err)
			}
			e.log.Error("email send failed",
				zap.Int64("user_id", id),
				zap.String("to", user.Email),
				zap.Error(err),
			)
			metrics.EmailFailures.Inc()
			res.Failed++
			done = append(done, id)
			continue
		}

		e.log.Debug("email sent successfully",
			zap.Int64("user_id", id),
			zap.String("to", user.Email),
		)
		metrics.EmailsSent.Inc()
		res.Sent++
		done = append(done, id)
	}

	return done, nil
}

func (e *Engine) render(ctx context.Context, job *models.Job, user *models.User, withKey bool) (mailtmpl.Message, error) {
	vars := mailtmpl.Vars{
		UserLogin: user.Login,
		UserEmail: user.Email,
		Nicename:  user.Nicename,
	}
	if withKey {
		key, err := e.keys.Issue(ctx, user)
		if err != nil {
			return mailtmpl.Message{}, err
		}
		vars.ResetPassURL = e.cfg.Site.ResetPassURL(user.Login, key)
	}

	return mailtmpl.Message{
		To:      user.Email,
		Subject: e.cfg.Site.Render(job.Subject, vars),
		Body:    e.cfg.Site.Render(job.Body, vars),
	}, nil
}

// complete removes the finished job and stops the trigger.
func (e *Engine) complete(ctx context.Context) error {
	if err := e.store.DeleteJob(ctx); err != nil {
		return err
	}
	if err := e.trigger.Disarm(ctx); err != nil {
		return fmt.Errorf("disarm trigger: %w", err)
	}
	metrics.RecipientsPending.Set(0)
	e.log.Info("bulk mail job completed")
	e.changed(ctx)
	return nil
}

// clearOrphans removes recipients and disarms the trigger when no job row
// exists. A completion whose disarm failed is finished here by the next tick.
func (e *Engine) clearOrphans(ctx context.Context) error {
	if err := e.store.PurgeJob(ctx); err != nil {
		return err
	}
	if err := e.trigger.Disarm(ctx); err != nil {
		return fmt.Errorf("disarm trigger: %w", err)
	}
	metrics.RecipientsPending.Set(0)
	return nil
}
