// Package model defines the core data types and structures used throughout the courierd delivery system.
package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Channel represents the delivery channel for a notification.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type Channel string

// NotificationStatus represents the lifecycle state of a notification record.
type NotificationStatus string

// AuditAction represents a recorded transition in a notification's audit trail.
type AuditAction string

const (
	// ChannelEmail delivers through an email provider.
	ChannelEmail Channel = "email"
	// ChannelSMS delivers through an SMS gateway.
	ChannelSMS Channel = "sms"
	// ChannelPush delivers through a push gateway.
	ChannelPush Channel = "push"

	// NotificationStatusQueued indicates the record is waiting for a worker.
	NotificationStatusQueued NotificationStatus = "queued"
	// NotificationStatusProcessing indicates a worker is delivering the record.
	NotificationStatusProcessing NotificationStatus = "processing"
	// NotificationStatusSent indicates the provider accepted the delivery.
	NotificationStatusSent NotificationStatus = "sent"
	// NotificationStatusFailed indicates delivery failed terminally.
	NotificationStatusFailed NotificationStatus = "failed"

	// AuditActionCreated records the initial persistence of a notification.
	AuditActionCreated AuditAction = "created"
	// AuditActionQueued records the enqueue of the delivery job.
	AuditActionQueued AuditAction = "queued"
	// AuditActionProcessing records a worker picking the record up.
	AuditActionProcessing AuditAction = "processing"
	// AuditActionSent records a successful provider send.
	AuditActionSent AuditAction = "sent"
	// AuditActionFailed records a terminal delivery failure.
	AuditActionFailed AuditAction = "failed"
	// AuditActionRetried records a failed attempt that was rescheduled.
	AuditActionRetried AuditAction = "retried"
)

// UnmarshalText implements encoding.TextUnmarshaler for Channel to allow env parsing.
func (c *Channel) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	ch := Channel(v)
	if ch.Valid() {
		*c = ch
		return nil
	}
	return fmt.Errorf("invalid Channel: %q", v)
}

// Valid returns true if the Channel is valid.
func (c Channel) Valid() bool {
	return c == ChannelEmail || c == ChannelSMS || c == ChannelPush
}

// Channels returns all valid delivery channels.
func Channels() []Channel {
	return []Channel{ChannelEmail, ChannelSMS, ChannelPush}
}

// Valid returns true if the NotificationStatus is valid.
func (s NotificationStatus) Valid() bool {
	return s == NotificationStatusQueued || s == NotificationStatusProcessing ||
		s == NotificationStatusSent || s == NotificationStatusFailed
}

// Valid returns true if the AuditAction is valid.
func (a AuditAction) Valid() bool {
	switch a {
	case AuditActionCreated, AuditActionQueued, AuditActionProcessing,
		AuditActionSent, AuditActionFailed, AuditActionRetried:
		return true
	}
	return false
}

// NotificationRecord represents a persisted notification with its delivery state.
// Records are keyed by the delivery job ID so workers can correlate redeliveries.
type NotificationRecord struct {
	ID        string             `json:"id"                 db:"id"`
	JobID     string             `json:"job_id"             db:"job_id"`
	Channel   Channel            `json:"type"               db:"channel"`
	Recipient string             `json:"to"                 db:"recipient"`
	Template  string             `json:"template"           db:"template"`
	Payload   map[string]string  `json:"payload"            db:"payload"`
	Status    NotificationStatus `json:"status"             db:"status"`
	Result    *string            `json:"result,omitempty"   db:"result"`
	Error     *string            `json:"error,omitempty"    db:"error"`
	Attempts  int                `json:"attempts"           db:"attempts"`
	CreatedAt time.Time          `json:"created_at"         db:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"         db:"updated_at"`
}

// AuditLogEntry represents a single entry in a notification's audit trail.
type AuditLogEntry struct {
	ID             string      `json:"id"                db:"id"`
	NotificationID string      `json:"notification_id"   db:"notification_id"`
	Action         AuditAction `json:"action"            db:"action"`
	Details        *string     `json:"details,omitempty" db:"details"`
	CreatedAt      time.Time   `json:"timestamp"         db:"created_at"`
}

// NotificationWithLogs bundles a record with its audit trail for API responses.
type NotificationWithLogs struct {
	NotificationRecord
	Logs []*AuditLogEntry `json:"logs"`
}

// DispatchRequest represents a request to dispatch a notification.
type DispatchRequest struct {
	Channel   Channel           `json:"type"`
	Recipient string            `json:"to"`
	Template  string            `json:"template"`
	Payload   map[string]string `json:"payload,omitempty"`

	// Optional scheduling knobs, not exposed on the intake API by default.
	Priority    int        `json:"priority,omitempty"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
}

// ErrValidation wraps request validation failures so handlers can map them to 400s.
var ErrValidation = errors.New("validation failed")

// Validate validates the DispatchRequest fields.
func (r *DispatchRequest) Validate() error {
	if !r.Channel.Valid() {
		return fmt.Errorf("%w: type must be one of email, sms, push", ErrValidation)
	}
	if strings.TrimSpace(r.Recipient) == "" {
		return fmt.Errorf("%w: to is required", ErrValidation)
	}
	if strings.TrimSpace(r.Template) == "" {
		return fmt.Errorf("%w: template is required", ErrValidation)
	}
	if r.Priority < 0 || r.Priority > 100 {
		return fmt.Errorf("%w: priority must be between 0 and 100", ErrValidation)
	}
	return nil
}

// NotificationStats represents record counts grouped by status.
type NotificationStats struct {
	Queued     int `json:"queued"`
	Processing int `json:"processing"`
	Sent       int `json:"sent"`
	Failed     int `json:"failed"`
}

// NotificationListOptions holds filters for listing notification records.
type NotificationListOptions struct {
	Status  NotificationStatus
	Channel Channel
	Limit   int
	Offset  int
}
