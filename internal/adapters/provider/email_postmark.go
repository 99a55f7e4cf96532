package provider

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mrz1836/postmark"

	"github.com/courierd/courierd/config"
)

// postmarkAPI is the slice of the Postmark client used by the sender.
type postmarkAPI interface {
	SendEmail(ctx context.Context, email postmark.Email) (postmark.EmailResponse, error)
}

// PostmarkSenderOptions groups dependencies for PostmarkSender.
type PostmarkSenderOptions struct {
	Config config.PostmarkConfig // Required: Postmark tokens and sender address
	Logger *slog.Logger          // Optional: structured logger

	// Client overrides the Postmark API client (tests).
	Client postmarkAPI
}

// PostmarkSender delivers email through Postmark's transactional API.
type PostmarkSender struct {
	client postmarkAPI
	from   string
	logger *slog.Logger
}

// NewPostmarkSender constructs a new PostmarkSender.
func NewPostmarkSender(opts PostmarkSenderOptions) (*PostmarkSender, error) {
	cfg := opts.Config
	if cfg.ServerToken == "" {
		return nil, fmt.Errorf("%w: Postmark server token is required", ErrInvalidConfig)
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("%w: Postmark from address is required", ErrInvalidConfig)
	}

	client := opts.Client
	if client == nil {
		client = postmark.NewClient(cfg.ServerToken, cfg.AccountToken)
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "postmark_sender")
	}

	return &PostmarkSender{
		client: client,
		from:   cfg.From,
		logger: logger,
	}, nil
}

// Send delivers the message and returns Postmark's message id.
func (s *PostmarkSender) Send(ctx context.Context, msg Message) (string, error) {
	resp, err := s.client.SendEmail(ctx, postmark.Email{
		From:     s.from,
		To:       msg.To,
		Subject:  msg.Subject,
		HTMLBody: msg.Body,
	})
	if err != nil {
		return "", fmt.Errorf("postmark send: %w", err)
	}
	if resp.ErrorCode > 0 {
		return "", fmt.Errorf("postmark error %d: %s", resp.ErrorCode, resp.Message)
	}

	if s.logger != nil {
		s.logger.DebugContext(ctx, "email sent via postmark", "to", msg.To, "message_id", resp.MessageID)
	}

	return resp.MessageID, nil
}
