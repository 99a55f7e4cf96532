// Package testutil provides testing utilities and helpers for the courierd delivery system.
package testutil

import (
	"time"

	"github.com/courierd/courierd/internal/domain/model"
)

// DispatchRequestBuilder provides a fluent interface for building DispatchRequest objects for testing.
type DispatchRequestBuilder struct {
	req *model.DispatchRequest
}

// NewDispatchRequest creates a new DispatchRequestBuilder with sensible defaults.
func NewDispatchRequest() *DispatchRequestBuilder {
	return &DispatchRequestBuilder{
		req: &model.DispatchRequest{
			Channel:   model.ChannelEmail,
			Recipient: "user@example.com",
			Template:  "welcome",
			Payload:   map[string]string{"name": "Test User"},
		},
	}
}

// WithChannel sets the delivery channel.
func (b *DispatchRequestBuilder) WithChannel(channel model.Channel) *DispatchRequestBuilder {
	b.req.Channel = channel
	return b
}

// WithRecipient sets the recipient address.
func (b *DispatchRequestBuilder) WithRecipient(to string) *DispatchRequestBuilder {
	b.req.Recipient = to
	return b
}

// WithTemplate sets the template name.
func (b *DispatchRequestBuilder) WithTemplate(name string) *DispatchRequestBuilder {
	b.req.Template = name
	return b
}

// WithPayload sets the template payload.
func (b *DispatchRequestBuilder) WithPayload(payload map[string]string) *DispatchRequestBuilder {
	b.req.Payload = payload
	return b
}

// WithPayloadValue sets a single payload key.
func (b *DispatchRequestBuilder) WithPayloadValue(key, value string) *DispatchRequestBuilder {
	if b.req.Payload == nil {
		b.req.Payload = map[string]string{}
	}
	b.req.Payload[key] = value
	return b
}

// WithPriority sets the queue priority.
func (b *DispatchRequestBuilder) WithPriority(priority int) *DispatchRequestBuilder {
	b.req.Priority = priority
	return b
}

// WithScheduledAt sets the scheduled time.
func (b *DispatchRequestBuilder) WithScheduledAt(scheduledAt time.Time) *DispatchRequestBuilder {
	b.req.ScheduledAt = &scheduledAt
	return b
}

// Build returns the constructed DispatchRequest.
func (b *DispatchRequestBuilder) Build() *model.DispatchRequest {
	return b.req
}

// EnqueueJobRequestBuilder provides a fluent interface for building EnqueueJobRequest objects for testing.
type EnqueueJobRequestBuilder struct {
	req *model.EnqueueJobRequest
}

// NewEnqueueJobRequest creates a new EnqueueJobRequestBuilder with sensible defaults.
func NewEnqueueJobRequest() *EnqueueJobRequestBuilder {
	return &EnqueueJobRequestBuilder{
		req: &model.EnqueueJobRequest{
			Channel:    model.ChannelEmail,
			Priority:   0,
			MaxRetries: 3,
		},
	}
}

// WithChannel sets the delivery channel.
func (b *EnqueueJobRequestBuilder) WithChannel(channel model.Channel) *EnqueueJobRequestBuilder {
	b.req.Channel = channel
	return b
}

// WithPriority sets the queue priority.
func (b *EnqueueJobRequestBuilder) WithPriority(priority int) *EnqueueJobRequestBuilder {
	b.req.Priority = priority
	return b
}

// WithScheduledAt sets the scheduled time.
func (b *EnqueueJobRequestBuilder) WithScheduledAt(scheduledAt time.Time) *EnqueueJobRequestBuilder {
	b.req.ScheduledAt = &scheduledAt
	return b
}

// WithMaxRetries sets the maximum number of retries.
func (b *EnqueueJobRequestBuilder) WithMaxRetries(maxRetries int) *EnqueueJobRequestBuilder {
	b.req.MaxRetries = maxRetries
	return b
}

// Build returns the constructed EnqueueJobRequest.
func (b *EnqueueJobRequestBuilder) Build() *model.EnqueueJobRequest {
	return b.req
}

// TemplateBuilder provides a fluent interface for building Template objects for testing.
type TemplateBuilder struct {
	tmpl *model.Template
}

// NewTemplateBuilder creates a new TemplateBuilder with sensible defaults.
func NewTemplateBuilder() *TemplateBuilder {
	return &TemplateBuilder{
		tmpl: &model.Template{
			Name:    "welcome",
			Channel: model.ChannelEmail,
			Subject: StringPtr("Welcome!"),
			Content: "Hello {{name}}!",
			Variables: []model.TemplateVariable{
				{Name: "name", Description: "recipient display name", Required: true},
			},
			IsActive: true,
		},
	}
}

// WithName sets the template name.
func (b *TemplateBuilder) WithName(name string) *TemplateBuilder {
	b.tmpl.Name = name
	return b
}

// WithChannel sets the template channel.
func (b *TemplateBuilder) WithChannel(channel model.Channel) *TemplateBuilder {
	b.tmpl.Channel = channel
	return b
}

// WithSubject sets the template subject.
func (b *TemplateBuilder) WithSubject(subject string) *TemplateBuilder {
	b.tmpl.Subject = &subject
	return b
}

// WithoutSubject clears the template subject (sms/push templates).
func (b *TemplateBuilder) WithoutSubject() *TemplateBuilder {
	b.tmpl.Subject = nil
	return b
}

// WithContent sets the template content.
func (b *TemplateBuilder) WithContent(content string) *TemplateBuilder {
	b.tmpl.Content = content
	return b
}

// WithVariables sets the template variables.
func (b *TemplateBuilder) WithVariables(vars ...model.TemplateVariable) *TemplateBuilder {
	b.tmpl.Variables = vars
	return b
}

// WithActive sets whether the template is active.
func (b *TemplateBuilder) WithActive(active bool) *TemplateBuilder {
	b.tmpl.IsActive = active
	return b
}

// Build returns the constructed Template.
func (b *TemplateBuilder) Build() *model.Template {
	return b.tmpl
}

// Common test request presets

// SMSDispatchRequest creates an sms dispatch request with default values.
func SMSDispatchRequest() *model.DispatchRequest {
	return NewDispatchRequest().
		WithChannel(model.ChannelSMS).
		WithRecipient("+15555550100").
		WithTemplate("verification").
		WithPayload(map[string]string{"code": "123456"}).
		Build()
}

// PushDispatchRequest creates a push dispatch request with default values.
func PushDispatchRequest() *model.DispatchRequest {
	return NewDispatchRequest().
		WithChannel(model.ChannelPush).
		WithRecipient("device-token-1").
		WithTemplate("alert").
		WithPayload(map[string]string{"title": "Heads up"}).
		Build()
}

// HighPriorityDispatchRequest creates a high priority dispatch request.
func HighPriorityDispatchRequest() *model.DispatchRequest {
	return NewDispatchRequest().
		WithPriority(100).
		Build()
}

// ScheduledDispatchRequest creates a dispatch request scheduled for the future.
func ScheduledDispatchRequest(scheduledAt time.Time) *model.DispatchRequest {
	return NewDispatchRequest().
		WithScheduledAt(scheduledAt).
		Build()
}
