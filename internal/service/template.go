package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/courierd/courierd/internal/core"
	"github.com/courierd/courierd/internal/domain/model"
)

const defaultTemplateCacheTTL = 5 * time.Minute

// TemplateServiceOptions groups dependencies for TemplateService.
type TemplateServiceOptions struct {
	Repo     core.TemplateRepository // Required: template repository
	Cache    core.CacheRepository    // Optional: read-through cache in front of the repository
	CacheTTL time.Duration           // Optional: cache entry TTL (default 5m)
	Logger   *slog.Logger            // Optional: structured logger
}

// TemplateService provides template lookups for delivery workers and the read
// API. Lookups go through the cache when one is configured; templates are
// rendered on every job, so the hot path avoids the database.
type TemplateService struct {
	repo     core.TemplateRepository
	cache    core.CacheRepository
	cacheTTL time.Duration
	logger   *slog.Logger
}

var _ core.TemplateSource = (*TemplateService)(nil)

// NewTemplateService constructs a new TemplateService.
func NewTemplateService(opts TemplateServiceOptions) (*TemplateService, error) {
	if opts.Repo == nil {
		return nil, errors.New("TemplateRepository is required")
	}

	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = defaultTemplateCacheTTL
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "template_service")
	}

	return &TemplateService{
		repo:     opts.Repo,
		cache:    opts.Cache,
		cacheTTL: ttl,
		logger:   logger,
	}, nil
}

// MustNewTemplateService constructs a new TemplateService and panics on error.
func MustNewTemplateService(opts TemplateServiceOptions) *TemplateService {
	svc, err := NewTemplateService(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create TemplateService: %v", err))
	}
	return svc
}

func templateCacheKey(name string, channel model.Channel) string {
	return "template:" + string(channel) + ":" + name
}

// Lookup resolves an active template by name and channel, consulting the
// cache first. Cache failures fall back to the repository.
func (s *TemplateService) Lookup(
	ctx context.Context,
	name string,
	channel model.Channel,
) (*model.Template, error) {
	key := templateCacheKey(name, channel)

	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, key); err != nil {
			if s.logger != nil {
				s.logger.WarnContext(ctx, "template cache get failed", "key", key, "error", err)
			}
		} else if cached != nil {
			var tmpl model.Template
			if err := json.Unmarshal(cached, &tmpl); err == nil {
				return &tmpl, nil
			}
			if s.logger != nil {
				s.logger.WarnContext(ctx, "template cache entry corrupt, falling back", "key", key)
			}
		}
	}

	tmpl, err := s.repo.GetByNameAndChannel(ctx, name, channel)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if encoded, err := json.Marshal(tmpl); err == nil {
			if err := s.cache.Set(ctx, key, encoded, s.cacheTTL); err != nil && s.logger != nil {
				s.logger.WarnContext(ctx, "template cache set failed", "key", key, "error", err)
			}
		}
	}

	return tmpl, nil
}

// List returns active templates, optionally filtered by channel.
func (s *TemplateService) List(ctx context.Context, channel model.Channel) ([]*model.Template, error) {
	templates, err := s.repo.List(ctx, channel)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	return templates, nil
}

// Upsert stores a template and invalidates its cache entry.
func (s *TemplateService) Upsert(ctx context.Context, tmpl *model.Template) (*model.Template, error) {
	out, err := s.repo.Upsert(ctx, tmpl)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		key := templateCacheKey(out.Name, out.Channel)
		if _, err := s.cache.Delete(ctx, key); err != nil && s.logger != nil {
			s.logger.WarnContext(ctx, "template cache invalidation failed", "key", key, "error", err)
		}
	}

	return out, nil
}

// SeedDefaults upserts the stock templates shipped with the service. Safe to
// call repeatedly.
func (s *TemplateService) SeedDefaults(ctx context.Context) (int, error) {
	seeded := 0
	for _, tmpl := range defaultTemplates() {
		if _, err := s.Upsert(ctx, tmpl); err != nil {
			return seeded, fmt.Errorf("seed template %s/%s: %w", tmpl.Channel, tmpl.Name, err)
		}
		seeded++
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "default templates seeded", "count", seeded)
	}
	return seeded, nil
}

func defaultTemplates() []*model.Template {
	welcomeSubject := "Welcome to {{appName}}!"
	verificationSubject := "Verify your email address"
	reminderSubject := "Reminder"

	usernameVar := model.TemplateVariable{Name: "username", Description: "recipient display name", Required: true}
	appNameVar := model.TemplateVariable{Name: "appName", Description: "product name"}
	codeVar := model.TemplateVariable{Name: "code", Description: "one-time verification code", Required: true}
	messageVar := model.TemplateVariable{Name: "message", Description: "free-form message body", Required: true}

	return []*model.Template{
		{
			Name:      "welcome",
			Channel:   model.ChannelEmail,
			Subject:   &welcomeSubject,
			Content:   "<h1>Welcome {{username}}!</h1><p>Thank you for joining {{appName}}.</p>",
			Variables: []model.TemplateVariable{usernameVar, appNameVar},
			IsActive:  true,
		},
		{
			Name:      "verification",
			Channel:   model.ChannelEmail,
			Subject:   &verificationSubject,
			Content:   "<h1>Email Verification</h1><p>Your verification code is: <strong>{{code}}</strong></p>",
			Variables: []model.TemplateVariable{codeVar},
			IsActive:  true,
		},
		{
			Name:      "reminder",
			Channel:   model.ChannelEmail,
			Subject:   &reminderSubject,
			Content:   "<h1>Don't forget!</h1><p>{{message}}</p>",
			Variables: []model.TemplateVariable{messageVar},
			IsActive:  true,
		},
		{
			Name:      "welcome",
			Channel:   model.ChannelSMS,
			Content:   "Welcome {{username}}! Thanks for joining {{appName}}.",
			Variables: []model.TemplateVariable{usernameVar, appNameVar},
			IsActive:  true,
		},
		{
			Name:      "verification",
			Channel:   model.ChannelSMS,
			Content:   "Your verification code is: {{code}}",
			Variables: []model.TemplateVariable{codeVar},
			IsActive:  true,
		},
		{
			Name:      "reminder",
			Channel:   model.ChannelSMS,
			Content:   "Reminder: {{message}}",
			Variables: []model.TemplateVariable{messageVar},
			IsActive:  true,
		},
		{
			Name:      "alert",
			Channel:   model.ChannelSMS,
			Content:   "Alert: {{message}}",
			Variables: []model.TemplateVariable{messageVar},
			IsActive:  true,
		},
		{
			Name:    "alert",
			Channel: model.ChannelPush,
			Content: "{{title}}: {{message}}",
			Variables: []model.TemplateVariable{
				{Name: "title", Description: "alert title", Required: true},
				messageVar,
			},
			IsActive: true,
		},
	}
}
