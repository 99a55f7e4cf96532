package config

import "strings"

// Provider names accepted by ProvidersConfig.
const (
	EmailProviderSMTP     = "smtp"
	EmailProviderPostmark = "postmark"
	ProviderLog           = "log"
)

// ProvidersConfig groups delivery provider configuration for all channels.
type ProvidersConfig struct {
	// EmailProvider selects the email sender implementation: smtp, postmark, or log.
	EmailProvider string `env:"EMAIL_PROVIDER" envDefault:"smtp"`

	SMTP        SMTPConfig        `envPrefix:"SMTP_"`
	Postmark    PostmarkConfig    `envPrefix:"POSTMARK_"`
	SMSGateway  SMSGatewayConfig  `envPrefix:"SMS_GATEWAY_"`
	PushGateway PushGatewayConfig `envPrefix:"PUSH_GATEWAY_"`
}

// Sanitize normalises provider configuration values.
func (p *ProvidersConfig) Sanitize() {
	p.EmailProvider = strings.ToLower(strings.TrimSpace(p.EmailProvider))
	switch p.EmailProvider {
	case EmailProviderSMTP, EmailProviderPostmark, ProviderLog:
	default:
		p.EmailProvider = EmailProviderSMTP
	}
}

// SMTPConfig contains SMTP email provider configuration.
type SMTPConfig struct {
	Host     string `env:"HOST"     envDefault:"localhost"`
	Port     int    `env:"PORT"     envDefault:"587"`
	Username string `env:"USERNAME" envDefault:""`
	Password string `env:"PASSWORD" envDefault:""`
	From     string `env:"FROM"     envDefault:"no-reply@localhost"`
}

// PostmarkConfig contains Postmark email provider configuration.
type PostmarkConfig struct {
	ServerToken  string `env:"SERVER_TOKEN"  envDefault:""`
	AccountToken string `env:"ACCOUNT_TOKEN" envDefault:""`
	From         string `env:"FROM"          envDefault:""`
}

// SMSGatewayConfig contains the HTTP sms gateway configuration.
type SMSGatewayConfig struct {
	// URL is the gateway message endpoint. Empty disables real sends (log sender).
	URL       string `env:"URL"        envDefault:""`
	AccountID string `env:"ACCOUNT_ID" envDefault:""`
	AuthToken string `env:"AUTH_TOKEN" envDefault:""`
	From      string `env:"FROM"       envDefault:""`
}

// PushGatewayConfig contains the HTTP push gateway configuration.
type PushGatewayConfig struct {
	// URL is the gateway send endpoint. Empty disables real sends (log sender).
	URL    string `env:"URL"     envDefault:""`
	APIKey string `env:"API_KEY" envDefault:""`
}
