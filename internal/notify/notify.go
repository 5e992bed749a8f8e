// Package notify sends the per user account emails: the welcome message on
// registration and the password reset message.
package notify

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"AnemoneDB/internal/mailtmpl"
	"AnemoneDB/internal/models"
)

var ErrUnknownUser = errors.New("unknown user")

type Users interface {
	GetUser(ctx context.Context, id int64) (*models.User, error)
	GetUserByLogin(ctx context.Context, login string) (*models.User, error)
}

type Mailer interface {
	Send(ctx context.Context, msg mailtmpl.Message) error
}

type ResetKeys interface {
	Issue(ctx context.Context, user *models.User) (string, error)
}

type Templates struct {
	WelcomeSubject string
	WelcomeBody    string
	ResetSubject   string
	ResetBody      string
}

type Notifier struct {
	users  Users
	mailer Mailer
	keys   ResetKeys
	site   mailtmpl.Site
	tpl    Templates
	log    *zap.Logger
}

func New(users Users, mailer Mailer, keys ResetKeys, site mailtmpl.Site, tpl Templates, logger *zap.Logger) *Notifier {
	return &Notifier{
		users:  users,
		mailer: mailer,
		keys:   keys,
		site:   site,
		tpl:    tpl,
		log:    logger,
	}
}

func (n *Notifier) SendWelcome(ctx context.Context, userID int64) error {
	user, err := n.users.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUnknownUser
	}

	vars := mailtmpl.Vars{UserLogin: user.Login, UserEmail: user.Email, Nicename: user.Nicename}
	if err := n.send(ctx, user, n.tpl.WelcomeSubject, n.tpl.WelcomeBody, vars); err != nil {
		return fmt.Errorf("send welcome email: %w", err)
	}

	n.log.Info("welcome email sent", zap.String("user_login", user.Login))
	return nil
}

// SendPasswordReset issues a reset key for login and mails the link. clientIP
// is the address the request came from.
func (n *Notifier) SendPasswordReset(ctx context.Context, login, clientIP string) error {
	user, err := n.users.GetUserByLogin(ctx, login)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUnknownUser
	}

	key, err := n.keys.Issue(ctx, user)
	if err != nil {
		return err
	}

	vars := mailtmpl.Vars{
		UserLogin:    user.Login,
		UserEmail:    user.Email,
		Nicename:     user.Nicename,
		ResetPassURL: n.site.ResetPassURL(user.Login, key),
		UserIP:       clientIP,
	}
	if err := n.send(ctx, user, n.tpl.ResetSubject, n.tpl.ResetBody, vars); err != nil {
		return fmt.Errorf("send password reset email: %w", err)
	}

	n.log.Info("password reset email sent",
		zap.String("user_login", user.Login),
		zap.String("client_ip", clientIP),
	)
	return nil
}

func (n *Notifier) send(ctx context.Context, user *models.User, subject, body string, vars mailtmpl.Vars) error {
	return n.mailer.Send(ctx, mailtmpl.Message{
		To:      user.Email,
		Subject: n.site.Render(subject, vars),
		Body:    n.site.Render(body, vars),
	})
}
