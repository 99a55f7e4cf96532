// Package provider contains the channel delivery senders. Each sender takes a
// fully rendered message and hands it to the upstream provider for its channel.
package provider

import (
	"context"
	"errors"

	"github.com/courierd/courierd/internal/domain/model"
)

// ErrInvalidConfig is returned when a sender is constructed with incomplete configuration.
var ErrInvalidConfig = errors.New("invalid provider configuration")

// Message is a rendered notification ready to hand to a provider.
// Subject is empty for channels without one (sms, push body-only providers).
type Message struct {
	Channel model.Channel
	To      string
	Subject string
	Body    string
}

// Sender delivers a rendered message through a concrete provider.
// The returned id is the provider's message identifier, recorded on the
// notification as the delivery result. Send errors are retryable from the
// queue's point of view.
type Sender interface {
	Send(ctx context.Context, msg Message) (string, error)
}
