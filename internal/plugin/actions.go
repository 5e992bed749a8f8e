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
	"AnemoneDB/internal/notify"
)

type LoginPayload struct {
	Login string `json:"user_login"`
}

type VerifyPayload struct {
	Login    string `json:"user_login"`
	Password string `json:"password"`
}

type UserPayload struct {
	UserID int64 `json:"user_id"`
}

type DDPassStatus struct {
	Login     string    `json:"user_login"`
	Valid     bool      `json:"valid"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

type Pending struct {
	Pending bool `json:"pending"`
}

// OnUserAction runs action with its JSON payload. User facing outcomes are
// recorded as notices on req; the returned value is the action's result.
func (a *App) OnUserAction(ctx context.Context, req *Request, action Action, payload json.RawMessage) (any, error) {
	switch action {
	case ActionMailConfirm:
		var in models.StartRequest
		if err := decode(payload, &in); err != nil {
			return nil, err
		}
		preview, err := a.c.Mail.Confirm(ctx, in)
		if err != nil {
			return nil, a.fail(req, err)
		}
		req.Info(fmt.Sprintf("The email will be sent to %d users. Confirm to start sending.", preview.Recipients))
		return preview, nil

	case ActionMailStart:
		var in models.StartRequest
		if err := decode(payload, &in); err != nil {
			return nil, err
		}
		n, err := a.c.Mail.Start(ctx, in)
		if err != nil {
			return nil, a.fail(req, err)
		}
		req.Success(fmt.Sprintf("Email sending started for %d users.", n))
		return a.c.Mail.Status(ctx)

	case ActionMailPause:
		return a.mailControl(ctx, req, a.c.Mail.Pause, "Email sending paused.")
	case ActionMailResume:
		return a.mailControl(ctx, req, a.c.Mail.Resume, "Email sending resumed.")
	case ActionMailCancel:
		return a.mailControl(ctx, req, a.c.Mail.Cancel, "Email sending cancelled.")

	case ActionMailStatus:
		return a.c.Mail.Status(ctx)

	case ActionMailPending:
		pending, err := a.c.Mail.HasPendingWork(ctx)
		if err != nil {
			return nil, err
		}
		return Pending{Pending: pending}, nil

	case ActionDDPassIssue:
		var in LoginPayload
		if err := decode(payload, &in); err != nil {
			return nil, err
		}
		issued, err := a.c.Credentials.Issue(ctx, in.Login)
		if err != nil {
			return nil, a.fail(req, err)
		}
		req.Success("Data download password generated. It is shown only once; copy it now.")
		return issued, nil

	case ActionDDPassStatus:
		var in LoginPayload
		if err := decode(payload, &in); err != nil {
			return nil, err
		}
		exp, err := a.c.Credentials.Status(ctx, in.Login)
		if errors.Is(err, credential.ErrNotFound) {
			req.Info("No valid data download password.")
			return DDPassStatus{Login: in.Login}, nil
		}
		if err != nil {
			return nil, a.fail(req, err)
		}
		req.Info("Your data download password will be expired at " + exp.Format("2006-01-02 15:04 MST") + ".")
		return DDPassStatus{Login: in.Login, Valid: true, ExpiresAt: exp}, nil

	case ActionDDPassVerify:
		var in VerifyPayload
		if err := decode(payload, &in); err != nil {
			return nil, err
		}
		if err := a.c.Credentials.Verify(ctx, in.Login, in.Password); err != nil {
			return nil, a.fail(req, err)
		}
		return DDPassStatus{Login: in.Login, Valid: true}, nil

	case ActionWelcome:
		var in UserPayload
		if err := decode(payload, &in); err != nil {
			return nil, err
		}
		if err := a.c.Notifier.SendWelcome(ctx, in.UserID); err != nil {
			return nil, a.fail(req, err)
		}
		req.Success("Welcome email sent.")
		return nil, nil

	case ActionPasswordReset:
		var in LoginPayload
		if err := decode(payload, &in); err != nil {
			return nil, err
		}
		if err := a.c.Notifier.SendPasswordReset(ctx, in.Login, req.ClientIP); err != nil {
			return nil, a.fail(req, err)
		}
		req.Success("Check your email for the confirmation link.")
		return nil, nil

	case ActionAuthFailure:
		var in LoginPayload
		if err := decode(payload, &in); err != nil {
			return nil, err
		}
		if err := a.c.AuthLog.Failure(req.ClientIP, in.Login); err != nil {
			return nil, err
		}
		return nil, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrUnknownAction, action)
}

func (a *App) mailControl(ctx context.Context, req *Request, fn func(context.Context) error, done string) (any, error) {
	if err := fn(ctx); err != nil {
		return nil, a.fail(req, err)
	}
	req.Success(done)
	return a.c.Mail.Status(ctx)
}

// userErrors are reported to the caller verbatim. Anything else is logged and
// replaced by a generic notice.
var userErrors = []error{
	mailjob.ErrNoJob,
	mailjob.ErrTickInProgress,
	mailjob.ErrNoRecipients,
	mailjob.ErrNotActive,
	mailjob.ErrNotPaused,
	credential.ErrNotFound,
	credential.ErrInvalid,
	credential.ErrLoginMissing,
	notify.ErrUnknownUser,
}

// fail records err as error notices, one per validation problem.
func (a *App) fail(req *Request, err error) error {
	var verr *mailjob.ValidationError
	if errors.As(err, &verr) {
		for _, e := range verr.Errors {
			req.Error(e.Error())
		}
		return err
	}
	for _, known := range userErrors {
		if errors.Is(err, known) {
			req.Error(known.Error())
			return err
		}
	}

	a.log.Error("action failed", zap.String("request_id", req.ID), zap.Error(err))
	req.Error("The request could not be completed. Please try again later.")
	return err
}

func decode(payload json.RawMessage, v any) error {
	if len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return nil
}
