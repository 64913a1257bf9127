package tutorauth

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"log"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"
)

// DefaultEmailTimeout bounds a single email dispatch
const DefaultEmailTimeout = 10 * time.Second

// Message is a rendered email ready for delivery
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// EmailSender delivers rendered messages. Implementations must honour ctx
// cancellation.
type EmailSender interface {
	Send(ctx context.Context, msg Message) error
}

// SenderFactory builds an EmailSender. It is called lazily on first use.
type SenderFactory func(ctx context.Context) (EmailSender, error)

// ConsoleEmailSender is a development implementation that logs emails to console
type ConsoleEmailSender struct{}

func (c *ConsoleEmailSender) Send(ctx context.Context, msg Message) error {
	log.Printf("\n=== EMAIL: %s ===", msg.Subject)
	log.Printf("To: %s", msg.To)
	log.Printf("Body: %s", msg.Text)
	log.Printf("===========================\n")
	return nil
}

// Mailer renders the verification and reset emails and owns the lazily
// initialized sender. A failed initialization is returned to the caller that
// triggered it and retried on the next send; it never takes the process down.
type Mailer struct {
	ClientURL string
	AppName   string
	Timeout   time.Duration
	Logger    *slog.Logger

	factory SenderFactory
	mu      sync.Mutex
	sender  EmailSender
}

// NewMailer creates a mailer whose sender is built by factory on first use
func NewMailer(clientURL string, factory SenderFactory) *Mailer {
	return &Mailer{
		ClientURL: strings.TrimRight(clientURL, "/"),
		AppName:   "3D Education App",
		Timeout:   DefaultEmailTimeout,
		factory:   factory,
	}
}

// NewMailerWithSender wraps an already constructed sender
func NewMailerWithSender(clientURL string, sender EmailSender) *Mailer {
	return NewMailer(clientURL, func(context.Context) (EmailSender, error) { return sender, nil })
}

func (m *Mailer) getSender(ctx context.Context) (EmailSender, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sender != nil {
		return m.sender, nil
	}
	if m.factory == nil {
		return nil, errors.New("mailer: no sender configured")
	}
	s, err := m.factory(ctx)
	if err != nil {
		return nil, fmt.Errorf("mailer: init sender: %w", err)
	}
	m.sender = s
	return s, nil
}

// Send delivers msg within the mailer's timeout
func (m *Mailer) Send(ctx context.Context, msg Message) error {
	timeout := m.Timeout
	if timeout <= 0 {
		timeout = DefaultEmailTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	sender, err := m.getSender(ctx)
	if err != nil {
		return err
	}
	if err := sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("mailer: send %q: %w", msg.Subject, err)
	}
	m.logger().Debug("email sent", "subject", msg.Subject)
	return nil
}

func (m *Mailer) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return slog.Default()
}

// VerificationURL is the link embedded in verification emails
func (m *Mailer) VerificationURL(token string) string {
	return m.ClientURL + "/verify-email?token=" + url.QueryEscape(token)
}

// ResetURL is the link embedded in password reset emails
func (m *Mailer) ResetURL(token string) string {
	return m.ClientURL + "/reset-password?token=" + url.QueryEscape(token)
}

// SendVerification emails the verification link for token to c
func (m *Mailer) SendVerification(ctx context.Context, c *Credential, token string) error {
	msg, err := m.render(verificationTemplate, c, "Verify Your Email Address", m.VerificationURL(token))
	if err != nil {
		return err
	}
	return m.Send(ctx, msg)
}

// SendPasswordReset emails the reset link for token to c
func (m *Mailer) SendPasswordReset(ctx context.Context, c *Credential, token string) error {
	msg, err := m.render(resetTemplate, c, "Reset Your Password", m.ResetURL(token))
	if err != nil {
		return err
	}
	return m.Send(ctx, msg)
}

type emailData struct {
	AppName   string
	FirstName string
	Link      string
}

func (m *Mailer) render(kind emailKind, c *Credential, subject, link string) (Message, error) {
	data := emailData{AppName: m.AppName, FirstName: c.FirstName, Link: link}
	var html bytes.Buffer
	if err := emailTemplates.ExecuteTemplate(&html, string(kind), data); err != nil {
		return Message{}, fmt.Errorf("mailer: render %s: %w", kind, err)
	}
	var text string
	switch kind {
	case verificationTemplate:
		text = fmt.Sprintf("Hi %s,\n\nWelcome to %s! Please verify your email address by opening:\n%s\n\nThis link expires in 24 hours.", c.FirstName, m.AppName, link)
	case resetTemplate:
		text = fmt.Sprintf("Hi %s,\n\nWe received a request to reset your password. Open this link to choose a new one:\n%s\n\nThis link expires in 1 hour. If you did not request it, you can ignore this email.", c.FirstName, link)
	}
	return Message{To: c.Email, Subject: subject, HTML: html.String(), Text: text}, nil
}

type emailKind string

const (
	verificationTemplate emailKind = "verification"
	resetTemplate        emailKind = "reset"
)

var emailTemplates = template.Must(template.New("emails").Parse(`
{{define "layout_head"}}<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>{{.AppName}}</title></head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
<div style="background: linear-gradient(135deg, #00C9A7 0%, #845EC2 100%); padding: 30px; text-align: center; border-radius: 10px 10px 0 0;">
<h1 style="color: white; margin: 0;">{{.AppName}}</h1>
</div>
<div style="background: #f9f9f9; padding: 30px; border-radius: 0 0 10px 10px;">{{end}}

{{define "layout_foot"}}</div></body></html>{{end}}

{{define "verification"}}{{template "layout_head" .}}
<h2>Hi {{.FirstName}}!</h2>
<p>Thanks for signing up. Please verify your email address to start learning.</p>
<p style="text-align: center;"><a href="{{.Link}}" style="background: #845EC2; color: white; padding: 12px 30px; text-decoration: none; border-radius: 5px;">Verify Email</a></p>
<p>Or copy this link into your browser:<br>{{.Link}}</p>
<p>This link expires in 24 hours.</p>
{{template "layout_foot" .}}{{end}}

{{define "reset"}}{{template "layout_head" .}}
<h2>Hi {{.FirstName}}!</h2>
<p>We received a request to reset your password.</p>
<p style="text-align: center;"><a href="{{.Link}}" style="background: #FF6B6B; color: white; padding: 12px 30px; text-decoration: none; border-radius: 5px;">Reset Password</a></p>
<p>Or copy this link into your browser:<br>{{.Link}}</p>
<p>This link expires in 1 hour. If you did not request a reset, you can ignore this email.</p>
{{template "layout_foot" .}}{{end}}
`))
