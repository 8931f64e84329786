// Package email delivers notification mail over SMTP.
package email

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
)

// Config locates the outbound SMTP relay.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	// From is the envelope sender; the display name varies per message.
	From string
}

// Sender submits mail to an SMTP relay. One connection per send; the
// relay queues and retries.
type Sender struct {
	cfg Config
}

func NewSender(cfg Config) *Sender {
	return &Sender{cfg: cfg}
}

func (s *Sender) Send(ctx context.Context, to, fromName, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var msg strings.Builder
	if fromName != "" {
		fmt.Fprintf(&msg, "From: %s <%s>\r\n", sanitizeHeader(fromName), s.cfg.From)
	} else {
		fmt.Fprintf(&msg, "From: %s\r\n", s.cfg.From)
	}
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", sanitizeHeader(subject))
	msg.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	msg.WriteString(body)

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	if err := smtp.SendMail(addr, auth, s.cfg.From, []string{to}, []byte(msg.String())); err != nil {
		return fmt.Errorf("smtp send to %s: %w", to, err)
	}
	return nil
}

// sanitizeHeader strips CR/LF so message text cannot inject headers.
func sanitizeHeader(v string) string {
	v = strings.ReplaceAll(v, "\r", " ")
	return strings.ReplaceAll(v, "\n", " ")
}

// LogSender writes mail to the log instead of sending it. Used in
// development and in environments without a relay.
type LogSender struct {
	Logger *slog.Logger
}

func (s *LogSender) Send(_ context.Context, to, fromName, subject, _ string) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("email suppressed", "to", to, "from_name", fromName, "subject", subject)
	return nil
}
