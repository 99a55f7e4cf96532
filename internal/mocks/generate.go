// Package mocks provides mock implementations for testing the courierd delivery pipeline.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for our repository interfaces.
// The mocks are generated using go:generate directives and provide a fluent API for setting up test expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	defer ctrl.Finish()
//	mockRepo := mocks.NewMockJobRepository(ctrl)
//	mockRepo.EXPECT().Enqueue(gomock.Any(), gomock.Any()).Return(job, nil)
package mocks

// Generate mock for JobRepository interface from internal/core package.
// This creates MockJobRepository with methods for all JobRepository interface methods:
// Enqueue, GetByID, ReserveNext, WaitForNotification, Heartbeat, Complete, Fail, FailPermanently, Stats
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=job_repository_mock.go github.com/courierd/courierd/internal/core JobRepository

// Generate mock for NotificationRepository interface from internal/core package.
// This creates MockNotificationRepository with methods for all NotificationRepository interface methods:
// CreateInTx, GetByID, GetByJobID, GetWithLogs, List, Stats, MarkProcessing, MarkSent, MarkFailed,
// MarkFailedNoAttempt, MarkRetried
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=notification_repository_mock.go github.com/courierd/courierd/internal/core NotificationRepository

// Generate mock for TemplateRepository interface from internal/core package.
// This creates MockTemplateRepository with methods for all TemplateRepository interface methods:
// GetByNameAndChannel, List, Upsert
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=template_repository_mock.go github.com/courierd/courierd/internal/core TemplateRepository

// Generate mock for CacheRepository interface from internal/core package.
// This creates MockCacheRepository with methods for all CacheRepository interface methods:
// Get, Set, Delete
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=cache_repository_mock.go github.com/courierd/courierd/internal/core CacheRepository

// Generate mock for ReaperRepository interface from internal/core package.
// This creates MockReaperRepository with methods for all ReaperRepository interface methods:
// TrimJobs, DeleteOldAuditEntries
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=reaper_repository_mock.go github.com/courierd/courierd/internal/core ReaperRepository
