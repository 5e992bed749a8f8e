// Package plugin wires the service components behind the lifecycle and action
// hooks the HTTP layer and the scheduler call into.
package plugin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"AnemoneDB/internal/credential"
	"AnemoneDB/internal/mailjob"
	"AnemoneDB/internal/models"
)

const (
	HookEmailSend     = "anemonedb_email_send"
	HookDDPassCleanup = "anemonedb_dd_pass_cleanup"
)

type Action string

const (
	ActionMailConfirm   Action = "mail_confirm"
	ActionMailStart     Action = "mail_start"
	ActionMailPause     Action = "mail_pause"
	ActionMailResume    Action = "mail_resume"
	ActionMailCancel    Action = "mail_cancel"
	ActionMailStatus    Action = "mail_status"
	ActionMailPending   Action = "mail_pending"
	ActionDDPassIssue   Action = "dd_pass_issue"
	ActionDDPassStatus  Action = "dd_pass_status"
	ActionDDPassVerify  Action = "dd_pass_verify"
	ActionWelcome       Action = "user_welcome"
	ActionPasswordReset Action = "password_reset"
	ActionAuthFailure   Action = "auth_failure"
)

var (
	ErrUnknownAction = errors.New("unknown action")
	ErrUnknownHook   = errors.New("unknown hook")
	ErrBadPayload    = errors.New("malformed payload")
)

// Host is the surface the rest of the service talks to.
type Host interface {
	OnActivate(ctx context.Context, req *Request) error
	OnDeactivate(ctx context.Context, req *Request) error
	OnTick(ctx context.Context, hook string) error
	OnUserAction(ctx context.Context, req *Request, action Action, payload json.RawMessage) (any, error)
}

type Schema interface {
	InitSchema(ctx context.Context) error
	DropSchema(ctx context.Context) error
}

type Trigger interface {
	Arm(ctx context.Context) error
	Disarm(ctx context.Context) error
	Restore(ctx context.Context) error
}

type MailJobs interface {
	Confirm(ctx context.Context, req models.StartRequest) (mailjob.Preview, error)
	Start(ctx context.Context, req models.StartRequest) (int, error)
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Cancel(ctx context.Context) error
	Tick(ctx context.Context) (mailjob.TickResult, error)
	Status(ctx context.Context) (models.JobView, error)
	HasPendingWork(ctx context.Context) (bool, error)
}

type Credentials interface {
	Issue(ctx context.Context, login string) (credential.Issued, error)
	Status(ctx context.Context, login string) (time.Time, error)
	Verify(ctx context.Context, login, password string) error
	Sweep(ctx context.Context) (int64, error)
}

type Notifier interface {
	SendWelcome(ctx context.Context, userID int64) error
	SendPasswordReset(ctx context.Context, login, clientIP string) error
}

type AuthLog interface {
	Check() error
	Failure(ip, login string) error
}

type Components struct {
	Schema      Schema
	Mail        MailJobs
	MailTrigger Trigger
	Credentials Credentials
	SweepTrig   Trigger
	Notifier    Notifier
	AuthLog     AuthLog
}

type App struct {
	c   Components
	log *zap.Logger
}

var _ Host = (*App)(nil)

func New(c Components, logger *zap.Logger) *App {
	return &App{c: c, log: logger}
}

// OnActivate prepares storage and schedules. A missing auth log is reported
// as a notice and does not block activation.
func (a *App) OnActivate(ctx context.Context, req *Request) error {
	if err := a.c.AuthLog.Check(); err != nil {
		a.log.Warn("auth failure log unavailable", zap.Error(err))
		req.Error(err.Error())
	}

	if err := a.c.Schema.InitSchema(ctx); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	if err := a.c.MailTrigger.Restore(ctx); err != nil {
		return fmt.Errorf("restore mail trigger: %w", err)
	}
	if err := a.c.SweepTrig.Arm(ctx); err != nil {
		return fmt.Errorf("arm credential sweep: %w", err)
	}

	a.log.Info("service activated")
	return nil
}

// OnDeactivate tears storage down unless a bulk mail job is pending.
func (a *App) OnDeactivate(ctx context.Context, req *Request) error {
	pending, err := a.c.Mail.HasPendingWork(ctx)
	if err != nil {
		return err
	}
	if pending {
		req.Error("There are pending email jobs. Please cancel them before deactivating.")
		return mailjob.ErrPendingWork
	}

	if err := a.c.SweepTrig.Disarm(ctx); err != nil {
		return fmt.Errorf("disarm credential sweep: %w", err)
	}
	if err := a.c.Schema.DropSchema(ctx); err != nil {
		return fmt.Errorf("drop schema: %w", err)
	}

	a.log.Info("service deactivated")
	req.Success("Service deactivated.")
	return nil
}

// OnTick runs the recurring job registered under hook.
func (a *App) OnTick(ctx context.Context, hook string) error {
	switch hook {
	case HookEmailSend:
		_, err := a.c.Mail.Tick(ctx)
		if errors.Is(err, mailjob.ErrTickInProgress) {
			return nil
		}
		return err
	case HookDDPassCleanup:
		_, err := a.c.Credentials.Sweep(ctx)
		return err
	default:
		return fmt.Errorf("%w: %s", ErrUnknownHook, hook)
	}
}

// Tick adapts OnTick to a scheduler callback, logging failures.
func (a *App) Tick(hook string) func(context.Context) {
	return func(ctx context.Context) {
		if err := a.OnTick(ctx, hook); err != nil {
			a.log.Error("scheduled hook failed", zap.String("hook", hook), zap.Error(err))
		}
	}
}
