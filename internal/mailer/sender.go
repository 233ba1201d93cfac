package mailer

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"regexp"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"github.com/capigrid/capigrid/internal/config"
)

// Sender delivers a single email
type Sender interface {
	Send(ctx context.Context, email *Email) error
}

// DeliveryError records whether a failed delivery is worth retrying
type DeliveryError struct {
	Temporary bool
	Message   string
}

func (e *DeliveryError) Error() string {
	return e.Message
}

// IsTemporaryError reports whether a delivery error is temporary.
// Unknown errors are treated as temporary.
func IsTemporaryError(err error) bool {
	var de *DeliveryError
	if errors.As(err, &de) {
		return de.Temporary
	}
	return true
}

// RelaySender delivers emails through an authenticated SMTP smarthost
type RelaySender struct {
	addr     string
	username string
	password string
	from     string
	timeout  time.Duration
	logger   *slog.Logger
}

func NewRelaySender(cfg *config.MailConfig, logger *slog.Logger) *RelaySender {
	return &RelaySender{
		addr:     cfg.RelayAddr,
		username: cfg.Username,
		password: cfg.Password,
		from:     cfg.From,
		timeout:  30 * time.Second,
		logger:   logger.With("component", "mailer"),
	}
}

// Send delivers the email via the relay using STARTTLS and PLAIN auth
func (s *RelaySender) Send(ctx context.Context, email *Email) error {
	host, _, err := net.SplitHostPort(s.addr)
	if err != nil {
		return &DeliveryError{Temporary: false, Message: fmt.Sprintf("invalid relay address %s: %v", s.addr, err)}
	}

	client, err := smtp.DialStartTLS(s.addr, &tls.Config{
		ServerName: host,
		MinVersion: tls.VersionTLS12,
	})
	if err != nil {
		return &DeliveryError{Temporary: true, Message: fmt.Sprintf("connection to relay %s failed: %v", s.addr, err)}
	}
	defer client.Close()

	if s.username != "" {
		if err := client.Auth(sasl.NewPlainClient("", s.username, s.password)); err != nil {
			return categorizeError(err, "AUTH")
		}
	}

	if err := client.Mail(s.from, nil); err != nil {
		return categorizeError(err, "MAIL FROM")
	}
	if err := client.Rcpt(email.To, nil); err != nil {
		return categorizeError(err, fmt.Sprintf("RCPT TO %s", email.To))
	}

	wc, err := client.Data()
	if err != nil {
		return categorizeError(err, "DATA")
	}
	if _, err := wc.Write(s.buildMessage(email)); err != nil {
		wc.Close()
		return &DeliveryError{Temporary: true, Message: fmt.Sprintf("failed to write message data: %v", err)}
	}
	if err := wc.Close(); err != nil {
		return categorizeError(err, "DATA close")
	}

	client.Quit()

	s.logger.Info("email delivered", "to", email.To, "subject", email.Subject)
	return nil
}

// buildMessage renders the email as an RFC 5322 message
func (s *RelaySender) buildMessage(email *Email) []byte {
	var b strings.Builder
	b.WriteString("From: " + s.from + "\r\n")
	b.WriteString("To: " + email.To + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", email.Subject) + "\r\n")
	b.WriteString("Date: " + time.Now().Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(email.Body, "\n", "\r\n"))
	return []byte(b.String())
}

// smtpCodePattern matches SMTP response codes at word boundaries
var smtpCodePattern = regexp.MustCompile(`\b(4\d{2}|5\d{2})\b`)

// categorizeError maps SMTP reply codes to temporary or permanent
// failures. 5xx is permanent, 4xx is temporary, unknown is temporary.
func categorizeError(err error, stage string) *DeliveryError {
	msg := fmt.Sprintf("%s failed: %v", stage, err)

	matches := smtpCodePattern.FindStringSubmatch(err.Error())
	if len(matches) > 1 && strings.HasPrefix(matches[1], "5") {
		return &DeliveryError{Temporary: false, Message: msg}
	}
	return &DeliveryError{Temporary: true, Message: msg}
}
