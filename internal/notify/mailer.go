// Package notify delivers outbound messages over email, SMS and webhooks.
package notify

import (
	"context"
	"errors"
	"fmt"

	"gopkg.in/gomail.v2"

	"github.com/spec-kit/helpdesk/internal/config"
)

// ErrNotConfigured is returned by transports that have no provider settings.
var ErrNotConfigured = errors.New("notify: transport not configured")

// Message is a single outbound email.
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Mailer sends email.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPMailer delivers mail through an SMTP relay.
type SMTPMailer struct {
	from   string
	dialer *gomail.Dialer
}

// NewMailer returns an SMTP mailer, or a mailer that always fails with ErrNotConfigured.
func NewMailer(cfg config.SMTPConfig) Mailer {
	if !cfg.Enabled() {
		return disabledMailer{}
	}
	return &SMTPMailer{
		from:   cfg.From,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
	}
}

func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if msg.To == "" {
		return errors.New("notify: email recipient is empty")
	}

	gm := gomail.NewMessage()
	gm.SetHeader("From", m.from)
	gm.SetHeader("To", msg.To)
	gm.SetHeader("Subject", msg.Subject)
	switch {
	case msg.HTML != "" && msg.Text != "":
		gm.SetBody("text/plain", msg.Text)
		gm.AddAlternative("text/html", msg.HTML)
	case msg.HTML != "":
		gm.SetBody("text/html", msg.HTML)
	default:
		gm.SetBody("text/plain", msg.Text)
	}

	if err := m.dialer.DialAndSend(gm); err != nil {
		return fmt.Errorf("send email to %s: %w", msg.To, err)
	}
	return nil
}

type disabledMailer struct{}

func (disabledMailer) Send(context.Context, Message) error {
	return ErrNotConfigured
}
