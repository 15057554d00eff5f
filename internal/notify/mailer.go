package notify

import (
	"crypto/tls"
	"fmt"

	mail "github.com/go-mail/mail/v2"
)

// Payload is one outbound notification email.
type Payload struct {
	Name    string // recipient display name
	Email   string
	Subject string
	Message string
	CC      []string
}

// Sender delivers notification emails. Callers treat delivery as
// fire-and-forget; errors are reported but never block review processing.
type Sender interface {
	Send(p Payload) error
}

// MailerConfig holds SMTP settings, read from the environment in main.
type MailerConfig struct {
	Host          string
	Port          int
	Username      string
	Password      string
	From          string // e.g. "Model Review <no-reply@your.org>"
	SkipTLSVerify bool   // dev only
}

// Mailer sends notification emails over SMTP with mandatory STARTTLS.
type Mailer struct {
	cfg MailerConfig
}

func NewMailer(cfg MailerConfig) *Mailer {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &Mailer{cfg: cfg}
}

func (m *Mailer) Send(p Payload) error {
	if p.Email == "" {
		return nil
	}
	if m.cfg.Host == "" || m.cfg.From == "" {
		return fmt.Errorf("smtp not configured (SMTP_HOST/SMTP_FROM)")
	}

	msg := mail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", fmt.Sprintf("%s <%s>", p.Name, p.Email))
	if len(p.CC) > 0 {
		msg.SetHeader("Cc", p.CC...)
	}
	msg.SetHeader("Subject", p.Subject)
	msg.SetBody("text/plain", p.Message)

	d := mail.NewDialer(m.cfg.Host, m.cfg.Port, m.cfg.Username, m.cfg.Password)
	d.StartTLSPolicy = mail.MandatoryStartTLS
	d.TLSConfig = &tls.Config{
		ServerName:         m.cfg.Host,
		InsecureSkipVerify: m.cfg.SkipTLSVerify,
	}

	return d.DialAndSend(msg)
}
