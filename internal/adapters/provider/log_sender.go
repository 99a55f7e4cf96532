package provider

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// LogSender logs messages instead of delivering them. Used in development and
// for channels whose gateway is not configured.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender constructs a LogSender. A nil logger falls back to slog.Default.
func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger.With("component", "log_sender")}
}

// Send logs the message and returns a generated id.
func (s *LogSender) Send(ctx context.Context, msg Message) (string, error) {
	id := uuid.NewString()
	s.logger.InfoContext(ctx, "message delivered to log",
		"channel", msg.Channel,
		"to", msg.To,
		"subject", msg.Subject,
		"body_length", len(msg.Body),
		"message_id", id,
	)
	return id, nil
}
