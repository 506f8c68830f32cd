package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/jordan-wright/email"

	"gmdaily/pkg/config"
	"gmdaily/pkg/report"
)

type sendFunc func(e *email.Email, addr string, auth smtp.Auth) error

func sendMail(e *email.Email, addr string, auth smtp.Auth) error {
	return e.Send(addr, auth)
}

// Email sends plain-text reports over SMTP. STARTTLS is used whenever the
// server offers it.
type Email struct {
	cfg  config.EmailConfig
	send sendFunc
}

// NewEmail validates cfg and creates an SMTP sender
func NewEmail(cfg config.EmailConfig) (*Email, error) {
	var missing []string
	if cfg.SMTPServer == "" {
		missing = append(missing, "smtp_server")
	}
	if cfg.From == "" {
		missing = append(missing, "from")
	}
	if cfg.To == "" {
		missing = append(missing, "to")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("email notifications need %s", strings.Join(missing, ", "))
	}
	if cfg.SMTPPort == 0 {
		cfg.SMTPPort = 587
	}
	return &Email{cfg: cfg, send: sendMail}, nil
}

func (e *Email) recipients() []string {
	var to []string
	for _, addr := range strings.Split(e.cfg.To, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			to = append(to, addr)
		}
	}
	return to
}

// Send implements Sender. Servers that do not offer AUTH get an
// unauthenticated retry.
func (e *Email) Send(ctx context.Context, title, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	mail := email.NewEmail()
	mail.From = e.cfg.From
	mail.To = e.recipients()
	mail.Subject = report.Plain(title)
	mail.Text = []byte(report.Plain(message))

	addr := fmt.Sprintf("%s:%d", e.cfg.SMTPServer, e.cfg.SMTPPort)
	var auth smtp.Auth
	if e.cfg.Username != "" {
		auth = smtp.PlainAuth("", e.cfg.Username, e.cfg.Password, e.cfg.SMTPServer)
	}

	err := e.send(mail, addr, auth)
	if err != nil && auth != nil && strings.Contains(err.Error(), "server doesn't support AUTH") {
		err = e.send(mail, addr, nil)
	}
	if err != nil {
		return fmt.Errorf("email: %w", err)
	}
	return nil
}
