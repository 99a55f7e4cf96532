package model

import (
	"errors"
	"strings"
	"time"
)

// TemplateVariable documents one placeholder a template expects in its
// payload. The list is ordered as authored.
type TemplateVariable struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required"`
}

// Template represents a stored message template for one delivery channel.
// Subject is only meaningful for email; other channels ignore it.
type Template struct {
	ID        string             `json:"id"                 db:"id"`
	Name      string             `json:"name"               db:"name"`
	Channel   Channel            `json:"type"               db:"channel"`
	Subject   *string            `json:"subject,omitempty"  db:"subject"`
	Content   string             `json:"content"            db:"content"`
	Variables []TemplateVariable `json:"variables"          db:"variables"`
	IsActive  bool               `json:"is_active"          db:"is_active"`
	CreatedAt time.Time          `json:"created_at"         db:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"         db:"updated_at"`
}

// Validate validates the Template fields.
func (t *Template) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return errors.New("name is required")
	}
	if !t.Channel.Valid() {
		return errors.New("invalid channel")
	}
	if strings.TrimSpace(t.Content) == "" {
		return errors.New("content is required")
	}
	return nil
}
