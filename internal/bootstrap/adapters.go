package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/courierd/courierd/config"
	"github.com/courierd/courierd/internal/adapters/deliveryrunner"
	"github.com/courierd/courierd/internal/adapters/provider"
	"github.com/courierd/courierd/internal/adapters/reaper"
	"github.com/courierd/courierd/internal/data"
	"github.com/courierd/courierd/internal/domain/model"
	"github.com/courierd/courierd/internal/observability/statsd"
)

// DeliveryWorkerConfig contains configuration for a per-channel delivery worker.
type DeliveryWorkerConfig struct {
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
	Channel     model.Channel
	Worker      config.WorkerConfig
	Queue       config.QueueConfig
	Providers   config.ProvidersConfig
	CacheTTL    time.Duration
	IsDev       bool
	Metrics     statsd.Sink
}

// RunDeliveryWorker starts a delivery worker pool for one channel.
func RunDeliveryWorker(ctx context.Context, cfg DeliveryWorkerConfig) error {
	sender, err := buildSender(cfg.Channel, cfg.Providers, cfg.IsDev, cfg.Logger)
	if err != nil {
		return fmt.Errorf("build %s sender: %w", cfg.Channel, err)
	}

	opts := deliveryrunner.RunnerOptions{
		DB:               cfg.DB,
		Logger:           cfg.Logger,
		Channel:          cfg.Channel,
		Lease:            cfg.Worker.JobLease,
		Concurrency:      cfg.Worker.Concurrency,
		SendTimeout:      cfg.Worker.SendTimeout,
		DrainTimeout:     cfg.Worker.DrainTimeout,
		MaxRetries:       cfg.Queue.MaxRetries,
		RetryBackoffBase: cfg.Queue.RetryBackoffBase,
		Sender:           sender,
		CacheTTL:         cfg.CacheTTL,
		Metrics:          cfg.Metrics,
	}

	// Wire the template cache when Redis is available
	if cfg.RedisClient != nil {
		opts.Cache = data.NewRedisCacheRepo(cfg.RedisClient)
	}

	runner, err := deliveryrunner.NewRunner(opts)
	if err != nil {
		return fmt.Errorf("create %s delivery runner: %w", cfg.Channel, err)
	}

	if runErr := runner.Run(ctx); runErr != nil && !errors.Is(runErr, context.Canceled) {
		return fmt.Errorf("run %s delivery runner: %w", cfg.Channel, runErr)
	}
	return nil
}

// buildSender selects the provider implementation for the channel.
//
//nolint:ireturn // Returning the Sender interface is required for runner injection.
func buildSender(channel model.Channel, providers config.ProvidersConfig, isDev bool, logger *slog.Logger) (provider.Sender, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch channel {
	case model.ChannelEmail:
		return buildEmailSender(providers, isDev, logger)
	case model.ChannelSMS:
		return buildSMSSender(providers.SMSGateway, logger)
	case model.ChannelPush:
		return buildPushSender(providers.PushGateway, logger)
	}
	return nil, fmt.Errorf("no sender for channel %q", channel)
}

//nolint:ireturn // Sender selection is config-driven.
func buildEmailSender(providers config.ProvidersConfig, isDev bool, logger *slog.Logger) (provider.Sender, error) {
	switch providers.EmailProvider {
	case config.ProviderLog:
		return provider.NewLogSender(logger), nil
	case config.EmailProviderPostmark:
		sender, err := provider.NewPostmarkSender(provider.PostmarkSenderOptions{
			Config: providers.Postmark,
			Logger: logger,
		})
		if err != nil {
			return fallbackToLogSender(isDev, "postmark", err, logger)
		}
		return sender, nil
	default:
		sender, err := provider.NewSMTPSender(provider.SMTPSenderOptions{
			Config: providers.SMTP,
			Logger: logger,
		})
		if err != nil {
			return fallbackToLogSender(isDev, "smtp", err, logger)
		}
		return sender, nil
	}
}

//nolint:ireturn // Sender selection is config-driven.
func buildSMSSender(cfg config.SMSGatewayConfig, logger *slog.Logger) (provider.Sender, error) {
	if cfg.URL == "" {
		logger.Warn("sms gateway URL not configured; using log sender")
		return provider.NewLogSender(logger), nil
	}
	return provider.NewSMSGatewaySender(provider.SMSGatewaySenderOptions{
		Config: cfg,
		Logger: logger,
	})
}

//nolint:ireturn // Sender selection is config-driven.
func buildPushSender(cfg config.PushGatewayConfig, logger *slog.Logger) (provider.Sender, error) {
	if cfg.URL == "" {
		logger.Warn("push gateway URL not configured; using log sender")
		return provider.NewLogSender(logger), nil
	}
	return provider.NewPushGatewaySender(provider.PushGatewaySenderOptions{
		Config: cfg,
		Logger: logger,
	})
}

// fallbackToLogSender substitutes the log sender in dev mode when a real
// provider cannot be constructed. Production keeps the error.
//
//nolint:ireturn // Sender selection is config-driven.
func fallbackToLogSender(isDev bool, name string, err error, logger *slog.Logger) (provider.Sender, error) {
	if !isDev {
		return nil, err
	}
	logger.Warn("email provider unavailable in dev mode; using log sender", "provider", name, "error", err)
	return provider.NewLogSender(logger), nil
}

// ReaperConfig contains configuration for reaper.
type ReaperConfig struct {
	DB      *sql.DB
	Logger  *slog.Logger
	Config  config.ReaperConfig
	Metrics statsd.Sink
}

// RunReaper starts the reaper service.
func RunReaper(ctx context.Context, cfg ReaperConfig) error {
	runner, err := reaper.NewRunner(reaper.RunnerOptions{
		DB:      cfg.DB,
		Config:  cfg.Config,
		Logger:  cfg.Logger,
		Metrics: cfg.Metrics,
	})
	if err != nil {
		return fmt.Errorf("create reaper runner: %w", err)
	}

	return runner.Run(ctx)
}
