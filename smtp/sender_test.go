package smtp

import (
	"context"
	"strings"
	"testing"
	"time"

	mail "github.com/go-mail/mail"

	ta "github.com/panyam/tutorauth"
)

func TestNewSenderValidates(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"missing host", Config{From: "noreply@example.com"}, true},
		{"missing from", Config{Host: "smtp.example.com"}, true},
		{"defaults port", Config{Host: "smtp.example.com", From: "noreply@example.com"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewSender(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewSender() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && s.cfg.Port != 587 {
				t.Errorf("expected default port 587, got %d", s.cfg.Port)
			}
		})
	}
}

func TestDialerTLSModes(t *testing.T) {
	tests := []struct {
		mode       string
		wantSSL    bool
		wantPolicy mail.StartTLSPolicy
	}{
		{"auto", false, mail.OpportunisticStartTLS},
		{"ssl", true, mail.OpportunisticStartTLS},
		{"starttls", false, mail.MandatoryStartTLS},
		{"none", false, mail.NoStartTLS},
	}
	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			s, err := NewSender(Config{Host: "smtp.example.com", Port: 2525, From: "noreply@example.com", TLSMode: tt.mode})
			if err != nil {
				t.Fatal(err)
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			d := s.dialer(ctx)
			if d.SSL != tt.wantSSL {
				t.Errorf("SSL = %v, want %v", d.SSL, tt.wantSSL)
			}
			if d.StartTLSPolicy != tt.wantPolicy {
				t.Errorf("StartTLSPolicy = %v, want %v", d.StartTLSPolicy, tt.wantPolicy)
			}
			if d.Timeout <= 0 || d.Timeout > 5*time.Second {
				t.Errorf("unexpected dial timeout %v", d.Timeout)
			}
		})
	}
}

func TestMessageHeaders(t *testing.T) {
	s, _ := NewSender(Config{Host: "smtp.example.com", From: "noreply@example.com"})
	m := s.message(ta.Message{To: "ada@example.com", Subject: "Verify Your Email Address", HTML: "<p>hi</p>", Text: "hi"})

	if got := m.GetHeader("To"); len(got) != 1 || got[0] != "ada@example.com" {
		t.Errorf("To = %v", got)
	}
	if got := m.GetHeader("Subject"); len(got) != 1 || got[0] != "Verify Your Email Address" {
		t.Errorf("Subject = %v", got)
	}
	var sb strings.Builder
	if _, err := m.WriteTo(&sb); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(sb.String(), "multipart/alternative") {
		t.Error("expected multipart/alternative body")
	}
}

func TestSendHonoursCancelledContext(t *testing.T) {
	s, _ := NewSender(Config{Host: "127.0.0.1", Port: 1, From: "noreply@example.com"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Send(ctx, ta.Message{To: "ada@example.com", Subject: "x", Text: "y"}); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
