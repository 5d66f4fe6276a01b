package mailer

import (
	"fmt"

	"gopkg.in/gomail.v2"

	"referral-api/internal/config"
)

// Mailer sends outbound mail over SMTP
type Mailer struct {
	from   string
	dialer *gomail.Dialer
}

// NewMailer creates a Mailer from SMTP configuration
func NewMailer(cfg *config.SMTPConfig) *Mailer {
	dialer := gomail.NewDialer(
		cfg.Host,
		cfg.Port,
		cfg.Username,
		cfg.Password,
	)

	return &Mailer{
		from:   cfg.From,
		dialer: dialer,
	}
}

// Send sends a plain-text email to a single recipient
func (m *Mailer) Send(to, subject, body string) error {
	if to == "" {
		return fmt.Errorf("no recipient specified")
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	return m.dialer.DialAndSend(msg)
}

// Sender is the mail delivery dependency used by services
type Sender interface {
	Send(to, subject, body string) error
}
