// Package smtp delivers tutorauth emails over SMTP using go-mail.
package smtp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"time"

	mail "github.com/go-mail/mail"

	ta "github.com/panyam/tutorauth"
)

// Config holds the SMTP connection settings
type Config struct {
	Host               string
	Port               int
	Username           string
	Password           string
	From               string
	TLSMode            string // "auto" | "starttls" | "ssl" | "none"
	InsecureSkipVerify bool
}

// Sender implements ta.EmailSender over SMTP
type Sender struct {
	cfg    Config
	logger *slog.Logger
}

// NewSender validates cfg and returns a sender. It does not dial; the first
// Send opens the connection.
func NewSender(cfg Config) (*Sender, error) {
	if cfg.Host == "" {
		return nil, errors.New("smtp: host is required")
	}
	if cfg.From == "" {
		return nil, errors.New("smtp: from address is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.TLSMode == "" {
		cfg.TLSMode = "auto"
	}
	return &Sender{cfg: cfg, logger: slog.Default().With("component", "smtp", "host", cfg.Host)}, nil
}

// Factory adapts NewSender to ta.SenderFactory for lazy construction
func Factory(cfg Config) ta.SenderFactory {
	return func(ctx context.Context) (ta.EmailSender, error) {
		return NewSender(cfg)
	}
}

func (s *Sender) message(msg ta.Message) *mail.Message {
	m := mail.NewMessage()
	m.SetHeader("From", s.cfg.From)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	if msg.Text != "" {
		m.SetBody("text/plain", msg.Text)
	}
	if msg.HTML != "" {
		if msg.Text == "" {
			m.SetBody("text/html", msg.HTML)
		} else {
			m.AddAlternative("text/html", msg.HTML)
		}
	}
	return m
}

func (s *Sender) dialer(ctx context.Context) *mail.Dialer {
	d := mail.NewDialer(s.cfg.Host, s.cfg.Port, s.cfg.Username, s.cfg.Password)
	d.TLSConfig = &tls.Config{
		ServerName:         s.cfg.Host,
		InsecureSkipVerify: s.cfg.InsecureSkipVerify,
	}
	switch s.cfg.TLSMode {
	case "ssl":
		d.SSL = true
	case "starttls":
		d.StartTLSPolicy = mail.MandatoryStartTLS
	case "none":
		d.StartTLSPolicy = mail.NoStartTLS
	}
	if deadline, ok := ctx.Deadline(); ok {
		d.Timeout = time.Until(deadline)
	}
	return d
}

// Send delivers msg. The dial timeout follows ctx's deadline, and Send
// returns as soon as ctx is done even if the SMTP exchange is still running.
func (s *Sender) Send(ctx context.Context, msg ta.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m := s.message(msg)
	d := s.dialer(ctx)

	done := make(chan error, 1)
	go func() { done <- d.DialAndSend(m) }()

	select {
	case err := <-done:
		if err != nil {
			s.logger.Error("smtp send failed", "error", err)
			return fmt.Errorf("smtp send: %w", err)
		}
		s.logger.Info("email sent", "subject", msg.Subject)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("smtp send: %w", ctx.Err())
	}
}
