package provider

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net/smtp"
	"strings"

	"github.com/google/uuid"

	"github.com/courierd/courierd/config"
)

// SMTPSenderOptions groups dependencies for SMTPSender.
type SMTPSenderOptions struct {
	Config config.SMTPConfig // Required: SMTP connection settings
	Logger *slog.Logger      // Optional: structured logger
}

// SMTPSender delivers email through a plain SMTP relay.
type SMTPSender struct {
	addr   string
	from   string
	auth   smtp.Auth
	logger *slog.Logger

	// sendMail is swapped out in tests.
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPSender constructs a new SMTPSender.
func NewSMTPSender(opts SMTPSenderOptions) (*SMTPSender, error) {
	cfg := opts.Config
	if cfg.Host == "" || cfg.Port == 0 {
		return nil, fmt.Errorf("%w: SMTP host and port are required", ErrInvalidConfig)
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("%w: SMTP from address is required", ErrInvalidConfig)
	}

	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "smtp_sender")
	}

	return &SMTPSender{
		addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		from:     cfg.From,
		auth:     auth,
		logger:   logger,
		sendMail: smtp.SendMail,
	}, nil
}

// Send delivers the message and returns a generated message id. SMTP has no
// provider-assigned identifier, so the Message-ID header doubles as the result.
func (s *SMTPSender) Send(ctx context.Context, msg Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	messageID := uuid.NewString()
	payload := buildMIMEMessage(s.from, msg, messageID)

	if err := s.sendMail(s.addr, s.auth, s.from, []string{msg.To}, payload); err != nil {
		return "", fmt.Errorf("smtp send to %s: %w", s.addr, err)
	}

	if s.logger != nil {
		s.logger.DebugContext(ctx, "email sent via smtp", "to", msg.To, "message_id", messageID)
	}

	return messageID, nil
}

func buildMIMEMessage(from string, msg Message, messageID string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", encodeHeader(msg.Subject))
	fmt.Fprintf(&b, "Message-ID: <%s>\r\n", messageID)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.Body)
	b.WriteString("\r\n")
	return []byte(b.String())
}

// encodeHeader RFC 2047-encodes a header value when it contains non-ASCII characters.
func encodeHeader(v string) string {
	return mime.QEncoding.Encode("utf-8", v)
}
