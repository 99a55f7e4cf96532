package provider

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/courierd/courierd/config"
)

// SMSGatewaySenderOptions groups dependencies for SMSGatewaySender.
type SMSGatewaySenderOptions struct {
	Config config.SMSGatewayConfig // Required: gateway endpoint and credentials
	Logger *slog.Logger            // Optional: structured logger
	Client *http.Client            // Optional: override HTTP client (tests)
}

// SMSGatewaySender delivers sms through a Twilio-style HTTP gateway:
// a form-encoded POST authenticated with account id / auth token, returning
// the message sid in the JSON response.
type SMSGatewaySender struct {
	cfg     config.SMSGatewayConfig
	gateway *gatewayClient
	logger  *slog.Logger
}

// NewSMSGatewaySender constructs a new SMSGatewaySender.
func NewSMSGatewaySender(opts SMSGatewaySenderOptions) (*SMSGatewaySender, error) {
	cfg := opts.Config
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: sms gateway URL is required", ErrInvalidConfig)
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("%w: sms gateway from number is required", ErrInvalidConfig)
	}

	gateway, err := newGatewayClient(opts.Client, "sid")
	if err != nil {
		return nil, err
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "sms_gateway_sender")
	}

	return &SMSGatewaySender{
		cfg:     cfg,
		gateway: gateway,
		logger:  logger,
	}, nil
}

// Send delivers the message and returns the gateway's message sid.
func (s *SMSGatewaySender) Send(ctx context.Context, msg Message) (string, error) {
	form := url.Values{}
	form.Set("To", msg.To)
	form.Set("From", s.cfg.From)
	form.Set("Body", msg.Body)

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		s.cfg.URL,
		strings.NewReader(form.Encode()),
	)
	if err != nil {
		return "", fmt.Errorf("build sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if s.cfg.AccountID != "" {
		req.SetBasicAuth(s.cfg.AccountID, s.cfg.AuthToken)
	}

	sid, err := s.gateway.do(ctx, req)
	if err != nil {
		return "", fmt.Errorf("sms gateway: %w", err)
	}

	if s.logger != nil {
		s.logger.DebugContext(ctx, "sms sent via gateway", "to", msg.To, "sid", sid)
	}

	return sid, nil
}
