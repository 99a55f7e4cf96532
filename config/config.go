package config

import (
	"os"
	"strings"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - database.go: Database and cache configuration
//   - http.go: HTTP server configuration
//   - services.go: Service mode, queue, worker, and reaper configuration
//   - providers.go: Delivery provider configuration
type AppConfig struct {
	// IsDev controls development mode behavior (verbose logging, log sender, etc.)
	// Set DEV=true or APP_ENV=development for development mode.
	IsDev bool `env:"DEV" envDefault:"false"`

	// Database configuration
	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`
	Cache    CacheConfig

	// HTTP server configuration
	HTTP HTTPConfig

	// Service mode configuration
	Services string `env:"SERVICES" envDefault:"http"`

	// Delivery queue configuration
	Queue QueueConfig

	// Per-channel worker configuration
	EmailWorker WorkerConfig `envPrefix:"EMAIL_WORKER_"`
	SMSWorker   WorkerConfig `envPrefix:"SMS_WORKER_"`
	PushWorker  WorkerConfig `envPrefix:"PUSH_WORKER_"`

	// Reaper configuration
	Reaper ReaperConfig

	// Delivery provider configuration
	Providers ProvidersConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.HTTP.Sanitize()
	c.Queue.Sanitize()

	c.EmailWorker.Sanitize(defaultEmailConcurrency)
	c.SMSWorker.Sanitize(defaultSMSConcurrency)
	c.PushWorker.Sanitize(defaultPushConcurrency)

	c.Reaper.Sanitize()
	c.Providers.Sanitize()
	c.Observability.Sanitize()

	c.detectDevMode()
}

// detectDevMode checks both DEV and APP_ENV environment variables.
// This is called by Sanitize() to ensure IsDev is set correctly.
func (c *AppConfig) detectDevMode() {
	if !c.IsDev {
		appEnv := strings.ToLower(os.Getenv("APP_ENV"))
		c.IsDev = appEnv == "development" || appEnv == "dev"
	}
}

// GetEnabledServices returns the enabled services based on the Services field.
func (c *AppConfig) GetEnabledServices() (map[ServiceMode]bool, error) {
	return ParseServices(c.Services)
}

// IsHTTPServerEnabled returns true if the HTTP server service is enabled.
func (c *AppConfig) IsHTTPServerEnabled() bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[ServiceModeHTTP]
}

// IsEmailWorkerEnabled returns true if the email delivery worker is enabled.
func (c *AppConfig) IsEmailWorkerEnabled() bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[ServiceModeEmailWorker]
}

// IsSMSWorkerEnabled returns true if the sms delivery worker is enabled.
func (c *AppConfig) IsSMSWorkerEnabled() bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[ServiceModeSMSWorker]
}

// IsPushWorkerEnabled returns true if the push delivery worker is enabled.
func (c *AppConfig) IsPushWorkerEnabled() bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[ServiceModePushWorker]
}

// IsReaperEnabled returns true if the reaper service is enabled.
func (c *AppConfig) IsReaperEnabled() bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[ServiceModeReaper]
}
