package data

import "errors"

// Shared sentinel errors for data-layer repositories.
var (
	// Notification repository sentinels.
	ErrNotificationNotFound = errors.New("notification not found")

	// Template repository sentinels.
	ErrTemplateNotFound = errors.New("template not found")
)
