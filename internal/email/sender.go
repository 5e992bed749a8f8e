package email

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"time"

	"github.com/cenkalti/backoff/v4"
	"gopkg.in/gomail.v2"

	"AnemoneDB/internal/mailtmpl"
)

var ErrInvalidAddress = errors.New("invalid recipient address")

type Sender struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	Retries  int

	// deliver replaces the SMTP dial in tests.
	deliver func(*gomail.Message) error
}

// Send delivers msg as plain text, retrying transient failures.
func (s *Sender) Send(ctx context.Context, msg mailtmpl.Message) error {
	return s.SendWithRetry(ctx, msg, s.Retries)
}

// NewMessage builds the plain text message for msg.
func (s *Sender) NewMessage(msg mailtmpl.Message) (*gomail.Message, error) {
	if _, err := mail.ParseAddress(msg.To); err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidAddress, msg.To, err)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.From)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Body)

	return m, nil
}

func (s *Sender) send(m *gomail.Message) error {
	if s.deliver != nil {
		return s.deliver(m)
	}

	d := gomail.NewDialer(s.Host, s.Port, s.User, s.Password)

	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("smtp send error: %w", err)
	}

	return nil
}

// SendWithRetry retries email sending with exponential backoff
func (s *Sender) SendWithRetry(
	ctx context.Context,
	msg mailtmpl.Message,
	retries int,
) error {

	m, err := s.NewMessage(msg)
	if err != nil {
		return err
	}

	operation := func() error {
		return s.send(m)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxElapsedTime = 30 * time.Second

	if retries < 0 {
		retries = 0
	}

	return backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx))
}
