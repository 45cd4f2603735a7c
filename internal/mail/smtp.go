package mail

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"gopkg.in/gomail.v2"

	"github.com/iliyamo/account-auth/internal/config"
)

// Dialer is the part of gomail.Dialer used for delivery.
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPSender renders templates and delivers them synchronously over SMTP.
type SMTPSender struct {
	from     string
	dialer   Dialer
	renderer *Renderer
	log      zerolog.Logger
}

// NewSMTPSender builds a sender from the SMTP configuration.
func NewSMTPSender(cfg config.SMTP, renderer *Renderer, log zerolog.Logger) *SMTPSender {
	return &SMTPSender{
		from:     cfg.From,
		dialer:   gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		renderer: renderer,
		log:      log.With().Str("component", "smtp_sender").Logger(),
	}
}

// SendTemplatedEmail renders and delivers one email.
func (s *SMTPSender) SendTemplatedEmail(ctx context.Context, to, templateName string, data map[string]string) error {
	msg, err := s.renderer.Render(to, templateName, data)
	if err != nil {
		return err
	}
	return s.Deliver(ctx, msg)
}

// Deliver sends an already rendered message.
func (s *SMTPSender) Deliver(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return fmt.Errorf("no recipient specified")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/html", msg.HTML)

	if err := s.dialer.DialAndSend(m); err != nil {
		s.log.Error().Err(err).Str("to", msg.To).Str("subject", msg.Subject).Msg("unable to send email")
		return fmt.Errorf("send email: %w", err)
	}
	s.log.Info().Str("to", msg.To).Str("subject", msg.Subject).Msg("email sent")
	return nil
}
