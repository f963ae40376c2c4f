// Package mailer delivers signing links by email.
package mailer

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pactline/backend/config"
)

// SigningLinkSubject is the subject line of signing-link emails.
const SigningLinkSubject = "Your link to review and sign"

// Sender delivers a magic link to a signer.
type Sender interface {
	SendMagicLink(ctx context.Context, email, redirectURL string) error
}

// New returns an SMTP sender when a relay is configured, otherwise a LogSender.
func New(cfg config.EmailConfig, logger *zap.Logger) Sender {
	if cfg.SMTPEnabled() {
		return NewSMTPSender(cfg)
	}
	return NewLogSender(logger)
}

// SMTPSender sends through an SMTP relay using PLAIN auth when credentials are set.
type SMTPSender struct {
	addr string
	auth smtp.Auth
	from mail.Address
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPSender creates an SMTP sender from cfg.
func NewSMTPSender(cfg config.EmailConfig) *SMTPSender {
	s := &SMTPSender{
		addr: net.JoinHostPort(cfg.SMTPHost, strconv.Itoa(cfg.SMTPPort)),
		from: mail.Address{Name: cfg.FromName, Address: cfg.FromAddress},
		send: smtp.SendMail,
	}
	if cfg.SMTPUser != "" {
		s.auth = smtp.PlainAuth("", cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPHost)
	}
	return s
}

// SendMagicLink implements Sender.
func (s *SMTPSender) SendMagicLink(ctx context.Context, email, redirectURL string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := Compose(s.from, email, SigningLinkSubject, MagicLinkBody(redirectURL), time.Now())
	if err := s.send(s.addr, s.auth, s.from.Address, []string{email}, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

// MagicLinkBody renders the plain-text body of a signing link email.
func MagicLinkBody(redirectURL string) string {
	var b strings.Builder
	b.WriteString("You have been asked to review and sign a contract.\r\n\r\n")
	b.WriteString("Open the link below to continue. It can be used once and expires shortly.\r\n\r\n")
	b.WriteString(redirectURL)
	b.WriteString("\r\n\r\nIf you did not expect this email you can ignore it.\r\n")
	return b.String()
}

// Compose builds an RFC 5322 plain-text message.
func Compose(from mail.Address, to, subject, body string, at time.Time) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", from.String())
	fmt.Fprintf(&buf, "To: %s\r\n", to)
	fmt.Fprintf(&buf, "Subject: %s\r\n", subject)
	fmt.Fprintf(&buf, "Date: %s\r\n", at.Format(time.RFC1123Z))
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	buf.WriteString(body)
	return buf.Bytes()
}

// LogSender logs deliveries instead of sending them. The link itself is not
// logged.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender creates a LogSender.
func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger}
}

// SendMagicLink implements Sender.
func (s *LogSender) SendMagicLink(_ context.Context, email, _ string) error {
	s.logger.Info("smtp not configured, signing link not delivered", zap.String("recipient", email))
	return nil
}
