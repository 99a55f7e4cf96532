package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/courierd/courierd/config"
)

// PushGatewaySenderOptions groups dependencies for PushGatewaySender.
type PushGatewaySenderOptions struct {
	Config config.PushGatewayConfig // Required: gateway endpoint and API key
	Logger *slog.Logger             // Optional: structured logger
	Client *http.Client             // Optional: override HTTP client (tests)
}

// PushGatewaySender delivers push notifications through an FCM-style HTTP
// gateway: a JSON POST authenticated with an API key, returning the message
// name in the JSON response.
type PushGatewaySender struct {
	cfg     config.PushGatewayConfig
	gateway *gatewayClient
	logger  *slog.Logger
}

type pushPayload struct {
	To           string `json:"to"`
	Notification struct {
		Title string `json:"title,omitempty"`
		Body  string `json:"body"`
	} `json:"notification"`
}

// NewPushGatewaySender constructs a new PushGatewaySender.
func NewPushGatewaySender(opts PushGatewaySenderOptions) (*PushGatewaySender, error) {
	cfg := opts.Config
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: push gateway URL is required", ErrInvalidConfig)
	}

	gateway, err := newGatewayClient(opts.Client, "name")
	if err != nil {
		return nil, err
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "push_gateway_sender")
	}

	return &PushGatewaySender{
		cfg:     cfg,
		gateway: gateway,
		logger:  logger,
	}, nil
}

// Send delivers the message and returns the gateway's message name.
func (s *PushGatewaySender) Send(ctx context.Context, msg Message) (string, error) {
	payload := pushPayload{To: msg.To}
	payload.Notification.Title = msg.Subject
	payload.Notification.Body = msg.Body

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal push payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.APIKey != "" {
		req.Header.Set("Authorization", "key="+s.cfg.APIKey)
	}

	name, err := s.gateway.do(ctx, req)
	if err != nil {
		return "", fmt.Errorf("push gateway: %w", err)
	}

	if s.logger != nil {
		s.logger.DebugContext(ctx, "push sent via gateway", "to", msg.To, "name", name)
	}

	return name, nil
}
