package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchRequest_Validate(t *testing.T) {
	tests := []struct {
		name        string
		req         DispatchRequest
		expectError bool
		errorMsg    string
	}{
		{
			name: "valid email request",
			req: DispatchRequest{
				Channel:   ChannelEmail,
				Recipient: "user@example.com",
				Template:  "welcome",
				Payload:   map[string]string{"name": "Ada"},
			},
		},
		{
			name: "valid sms request without payload",
			req: DispatchRequest{
				Channel:   ChannelSMS,
				Recipient: "+15555550123",
				Template:  "verification",
			},
		},
		{
			name: "invalid channel",
			req: DispatchRequest{
				Channel:   Channel("fax"),
				Recipient: "user@example.com",
				Template:  "welcome",
			},
			expectError: true,
			errorMsg:    "type must be one of",
		},
		{
			name: "missing recipient",
			req: DispatchRequest{
				Channel:  ChannelEmail,
				Template: "welcome",
			},
			expectError: true,
			errorMsg:    "to is required",
		},
		{
			name: "whitespace recipient",
			req: DispatchRequest{
				Channel:   ChannelEmail,
				Recipient: "   ",
				Template:  "welcome",
			},
			expectError: true,
			errorMsg:    "to is required",
		},
		{
			name: "missing template",
			req: DispatchRequest{
				Channel:   ChannelPush,
				Recipient: "device-token",
			},
			expectError: true,
			errorMsg:    "template is required",
		},
		{
			name: "priority out of range",
			req: DispatchRequest{
				Channel:   ChannelEmail,
				Recipient: "user@example.com",
				Template:  "welcome",
				Priority:  200,
			},
			expectError: true,
			errorMsg:    "priority",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.expectError {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrValidation)
				assert.Contains(t, err.Error(), tt.errorMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTemplate_Validate(t *testing.T) {
	subject := "Welcome!"
	tmpl := Template{
		Name:    "welcome",
		Channel: ChannelEmail,
		Subject: &subject,
		Content: "Hello {{name}}",
	}
	assert.NoError(t, tmpl.Validate())

	tmpl.Name = " "
	assert.Error(t, tmpl.Validate())

	tmpl.Name = "welcome"
	tmpl.Channel = Channel("nope")
	assert.Error(t, tmpl.Validate())

	tmpl.Channel = ChannelEmail
	tmpl.Content = ""
	assert.Error(t, tmpl.Validate())
}

func TestAuditAction_Valid(t *testing.T) {
	for _, a := range []AuditAction{
		AuditActionCreated, AuditActionQueued, AuditActionProcessing,
		AuditActionSent, AuditActionFailed, AuditActionRetried,
	} {
		assert.True(t, a.Valid(), string(a))
	}
	assert.False(t, AuditAction("archived").Valid())
}
