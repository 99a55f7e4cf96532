package service

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courierd/courierd/config"
	"github.com/courierd/courierd/internal/core"
	"github.com/courierd/courierd/internal/domain/model"
)

// mockReaperRepo is a simple mock implementation for testing.
type mockReaperRepo struct {
	trimJobsCalls  map[model.Channel]map[model.JobStatus]int
	trimJobsCounts map[model.Channel]map[model.JobStatus]int64
	trimJobsError  error
	trimJobsParams []core.TrimJobsParams

	deleteOldAuditCalled int
	deleteOldAuditCount  int64
	deleteOldAuditError  error
}

func (m *mockReaperRepo) TrimJobs(ctx context.Context, params core.TrimJobsParams) (int64, error) {
	if m.trimJobsCalls == nil {
		m.trimJobsCalls = make(map[model.Channel]map[model.JobStatus]int)
	}
	if m.trimJobsCalls[params.Channel] == nil {
		m.trimJobsCalls[params.Channel] = make(map[model.JobStatus]int)
	}

	m.trimJobsCalls[params.Channel][params.Status]++
	m.trimJobsParams = append(m.trimJobsParams, params)

	if m.trimJobsError != nil {
		return 0, m.trimJobsError
	}

	// Return count on first call per channel+status, then 0 to simulate batch exhaustion
	if m.trimJobsCalls[params.Channel][params.Status] == 1 {
		return m.trimJobsCounts[params.Channel][params.Status], nil
	}
	return 0, nil
}

func (m *mockReaperRepo) DeleteOldAuditEntries(
	ctx context.Context,
	params core.DeleteOldAuditEntriesParams,
) (int64, error) {
	m.deleteOldAuditCalled++
	if m.deleteOldAuditError != nil {
		return 0, m.deleteOldAuditError
	}
	if m.deleteOldAuditCalled == 1 {
		return m.deleteOldAuditCount, nil
	}
	return 0, nil
}

func testReaperConfig() config.ReaperConfig {
	return config.ReaperConfig{
		Interval:      5 * time.Minute,
		CompletedKeep: 100,
		FailedKeep:    50,
		AuditMaxAge:   90 * 24 * time.Hour,
		BatchSize:     1000,
	}
}

func TestNewReaperService(t *testing.T) {
	t.Run("creates service with valid options", func(t *testing.T) {
		repo := &mockReaperRepo{}

		svc, err := NewReaperService(ReaperServiceOptions{
			Repo:   repo,
			Config: testReaperConfig(),
			Logger: slog.Default(),
		})

		require.NoError(t, err)
		assert.NotNil(t, svc)
	})

	t.Run("returns error when repo is nil", func(t *testing.T) {
		_, err := NewReaperService(ReaperServiceOptions{
			Repo:   nil,
			Config: testReaperConfig(),
		})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "ReaperRepository is required")
	})
}

func TestReaperService_runCleanup(t *testing.T) {
	t.Run("runs all cleanup operations successfully", func(t *testing.T) {
		repo := &mockReaperRepo{
			trimJobsCounts: map[model.Channel]map[model.JobStatus]int64{
				model.ChannelEmail: {model.JobStatusCompleted: 12, model.JobStatusFailed: 3},
				model.ChannelSMS:   {model.JobStatusCompleted: 4},
			},
			deleteOldAuditCount: 7,
		}

		svc, _ := MustNewReaperService(ReaperServiceOptions{
			Repo:   repo,
			Config: testReaperConfig(),
		})

		ctx := context.Background()
		err := svc.runCleanup(ctx)

		require.NoError(t, err)
		// Every channel is trimmed for both terminal statuses. Channels with
		// deletions get a second call returning 0 to drain the batch loop.
		assert.Equal(t, 2, repo.trimJobsCalls[model.ChannelEmail][model.JobStatusCompleted])
		assert.Equal(t, 2, repo.trimJobsCalls[model.ChannelEmail][model.JobStatusFailed])
		assert.Equal(t, 2, repo.trimJobsCalls[model.ChannelSMS][model.JobStatusCompleted])
		assert.Equal(t, 1, repo.trimJobsCalls[model.ChannelSMS][model.JobStatusFailed])
		assert.Equal(t, 1, repo.trimJobsCalls[model.ChannelPush][model.JobStatusCompleted])
		assert.Equal(t, 1, repo.trimJobsCalls[model.ChannelPush][model.JobStatusFailed])
		assert.Equal(t, 2, repo.deleteOldAuditCalled)
	})

	t.Run("passes configured keep counts and batch size", func(t *testing.T) {
		repo := &mockReaperRepo{}
		cfg := testReaperConfig()
		cfg.CompletedKeep = 25
		cfg.FailedKeep = 10
		cfg.BatchSize = 500

		svc, _ := MustNewReaperService(ReaperServiceOptions{
			Repo:   repo,
			Config: cfg,
		})

		require.NoError(t, svc.runCleanup(context.Background()))

		require.NotEmpty(t, repo.trimJobsParams)
		for _, params := range repo.trimJobsParams {
			assert.Equal(t, 500, params.BatchSize)
			switch params.Status {
			case model.JobStatusCompleted:
				assert.Equal(t, 25, params.Keep)
			case model.JobStatusFailed:
				assert.Equal(t, 10, params.Keep)
			default:
				t.Fatalf("unexpected trim status %q", params.Status)
			}
		}
	})

	t.Run("continues on partial errors", func(t *testing.T) {
		repo := &mockReaperRepo{
			trimJobsError:       errors.New("trim error"),
			deleteOldAuditCount: 7,
		}

		svc, _ := MustNewReaperService(ReaperServiceOptions{
			Repo:   repo,
			Config: testReaperConfig(),
		})

		ctx := context.Background()
		err := svc.runCleanup(ctx)

		// Should return error but still run the audit cleanup
		require.Error(t, err)
		assert.Equal(t, 2, repo.deleteOldAuditCalled)
	})
}

func TestReaperService_Run(t *testing.T) {
	t.Run("stops on context cancellation", func(t *testing.T) {
		repo := &mockReaperRepo{}
		cfg := testReaperConfig()
		cfg.Interval = 100 * time.Millisecond

		svc, _ := MustNewReaperService(ReaperServiceOptions{
			Repo:   repo,
			Config: cfg,
		})

		ctx, cancel := context.WithCancel(context.Background())

		// Run in goroutine
		done := make(chan error, 1)
		go func() {
			done <- svc.Run(ctx)
		}()

		// Wait a bit to ensure at least one cleanup runs
		time.Sleep(150 * time.Millisecond)

		// Cancel context
		cancel()

		// Wait for Run to return
		select {
		case err := <-done:
			// Should return nil on graceful shutdown
			require.NoError(t, err)
		case <-time.After(1 * time.Second):
			t.Fatal("Run did not stop after context cancellation")
		}

		// Verify cleanup was called at least once (initial + maybe one tick)
		assert.GreaterOrEqual(t, repo.trimJobsCalls[model.ChannelEmail][model.JobStatusCompleted], 1)
	})

	t.Run("continues running despite cleanup errors", func(t *testing.T) {
		repo := &mockReaperRepo{
			trimJobsError: errors.New("test error"),
		}
		cfg := testReaperConfig()
		cfg.Interval = 50 * time.Millisecond

		svc, _ := MustNewReaperService(ReaperServiceOptions{
			Repo:   repo,
			Config: cfg,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()

		err := svc.Run(ctx)

		// Should return context deadline exceeded, not the cleanup error
		require.Error(t, err)
		require.ErrorIs(t, err, context.DeadlineExceeded)

		// Verify cleanup was called multiple times despite errors
		assert.GreaterOrEqual(t, repo.trimJobsCalls[model.ChannelEmail][model.JobStatusCompleted], 2)
	})
}

func TestReaperService_trimTerminalJobs(t *testing.T) {
	t.Run("sums trimmed counts across channels", func(t *testing.T) {
		repo := &mockReaperRepo{
			trimJobsCounts: map[model.Channel]map[model.JobStatus]int64{
				model.ChannelEmail: {model.JobStatusCompleted: 5},
				model.ChannelSMS:   {model.JobStatusCompleted: 2},
				model.ChannelPush:  {model.JobStatusCompleted: 1},
			},
		}

		svc, _ := MustNewReaperService(ReaperServiceOptions{
			Repo:   repo,
			Config: testReaperConfig(),
		})

		count, err := svc.trimCompletedJobs(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(8), count)
	})

	t.Run("stops on repository error", func(t *testing.T) {
		repo := &mockReaperRepo{trimJobsError: errors.New("boom")}

		svc, _ := MustNewReaperService(ReaperServiceOptions{
			Repo:   repo,
			Config: testReaperConfig(),
		})

		_, err := svc.trimFailedJobs(context.Background())
		require.Error(t, err)
	})
}

func TestReaperService_deleteOldAuditEntries(t *testing.T) {
	t.Run("drains batches until empty", func(t *testing.T) {
		repo := &mockReaperRepo{deleteOldAuditCount: 42}

		svc, _ := MustNewReaperService(ReaperServiceOptions{
			Repo:   repo,
			Config: testReaperConfig(),
		})

		count, err := svc.deleteOldAuditEntries(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(42), count)
		// Called twice: once returning count, once returning 0
		assert.Equal(t, 2, repo.deleteOldAuditCalled)
	})
}
