package data

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courierd/courierd/internal/domain/model"
	"github.com/courierd/courierd/internal/testutil"
)

// TestTemplateRepo_UpsertAndGet verifies insert, conflict update and retrieval.
func TestTemplateRepo_UpsertAndGet(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewTemplateRepo(db)
		ctx := context.Background()

		variables := []model.TemplateVariable{
			{Name: "name", Description: "recipient display name", Required: true},
			{Name: "plan", Description: "subscription plan"},
		}
		created, err := repo.Upsert(ctx, &model.Template{
			Name:      "welcome",
			Channel:   model.ChannelEmail,
			Subject:   testutil.StringPtr("Welcome, {{name}}!"),
			Content:   "Hello {{name}}, thanks for signing up.",
			Variables: variables,
			IsActive:  true,
		})
		require.NoError(t, err)
		assert.NotEmpty(t, created.ID)
		assert.Equal(t, "welcome", created.Name)

		fetched, err := repo.GetByNameAndChannel(ctx, "welcome", model.ChannelEmail)
		require.NoError(t, err)
		assert.Equal(t, created.ID, fetched.ID)
		require.NotNil(t, fetched.Subject)
		assert.Equal(t, "Welcome, {{name}}!", *fetched.Subject)
		assert.Equal(t, variables, fetched.Variables)

		// Upserting the same name+channel updates in place
		updated, err := repo.Upsert(ctx, &model.Template{
			Name:     "welcome",
			Channel:  model.ChannelEmail,
			Content:  "Hi {{name}}!",
			IsActive: true,
		})
		require.NoError(t, err)
		assert.Equal(t, created.ID, updated.ID)
		assert.Equal(t, "Hi {{name}}!", updated.Content)
		assert.Nil(t, updated.Subject)
	})
}

// TestTemplateRepo_UpsertSetsUpdatedAt verifies the time provider drives updated_at.
func TestTemplateRepo_UpsertSetsUpdatedAt(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		timeProvider := NewFixedTimeProvider(testutil.TestTime())
		repo := NewTemplateRepoWithTimeProvider(db, timeProvider)
		ctx := context.Background()

		tmpl := &model.Template{
			Name:     "otp",
			Channel:  model.ChannelSMS,
			Content:  "Your code is {{code}}",
			IsActive: true,
		}
		_, err := repo.Upsert(ctx, tmpl)
		require.NoError(t, err)

		timeProvider.AddTime(time.Hour)
		updated, err := repo.Upsert(ctx, tmpl)
		require.NoError(t, err)
		assert.Equal(t, testutil.TestTime().Add(time.Hour), updated.UpdatedAt.UTC())
	})
}

// TestTemplateRepo_SameNameAcrossChannels verifies name+channel uniqueness scope.
func TestTemplateRepo_SameNameAcrossChannels(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewTemplateRepo(db)
		ctx := context.Background()

		emailTmpl, err := repo.Upsert(ctx, &model.Template{
			Name:     "reminder",
			Channel:  model.ChannelEmail,
			Content:  "Don't forget: {{event}}",
			IsActive: true,
		})
		require.NoError(t, err)

		pushTmpl, err := repo.Upsert(ctx, &model.Template{
			Name:     "reminder",
			Channel:  model.ChannelPush,
			Content:  "{{event}} starts soon",
			IsActive: true,
		})
		require.NoError(t, err)
		assert.NotEqual(t, emailTmpl.ID, pushTmpl.ID)

		fetched, err := repo.GetByNameAndChannel(ctx, "reminder", model.ChannelPush)
		require.NoError(t, err)
		assert.Equal(t, pushTmpl.ID, fetched.ID)
	})
}

// TestTemplateRepo_GetByNameAndChannelNotFound covers missing and inactive templates.
func TestTemplateRepo_GetByNameAndChannelNotFound(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewTemplateRepo(db)
		ctx := context.Background()

		_, err := repo.GetByNameAndChannel(ctx, "missing", model.ChannelEmail)
		require.ErrorIs(t, err, ErrTemplateNotFound)

		// Deactivated templates are invisible to lookups
		_, err = repo.Upsert(ctx, &model.Template{
			Name:     "retired",
			Channel:  model.ChannelEmail,
			Content:  "old content",
			IsActive: false,
		})
		require.NoError(t, err)

		_, err = repo.GetByNameAndChannel(ctx, "retired", model.ChannelEmail)
		require.ErrorIs(t, err, ErrTemplateNotFound)

		_, err = repo.GetByNameAndChannel(ctx, "missing", "fax")
		require.Error(t, err)
		require.NotErrorIs(t, err, ErrTemplateNotFound)
	})
}

// TestTemplateRepo_List covers ordering, the channel filter and the active-only rule.
func TestTemplateRepo_List(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewTemplateRepo(db)
		ctx := context.Background()

		seed := []*model.Template{
			{Name: "welcome", Channel: model.ChannelEmail, Content: "hi", IsActive: true},
			{Name: "alert", Channel: model.ChannelPush, Content: "ping", IsActive: true},
			{Name: "alert", Channel: model.ChannelEmail, Content: "ping", IsActive: true},
			{Name: "retired", Channel: model.ChannelEmail, Content: "old", IsActive: false},
		}
		for _, tmpl := range seed {
			_, err := repo.Upsert(ctx, tmpl)
			require.NoError(t, err)
		}

		all, err := repo.List(ctx, "")
		require.NoError(t, err)
		require.Len(t, all, 3)
		// Ordered by name, then channel
		assert.Equal(t, "alert", all[0].Name)
		assert.Equal(t, model.ChannelEmail, all[0].Channel)
		assert.Equal(t, "alert", all[1].Name)
		assert.Equal(t, model.ChannelPush, all[1].Channel)
		assert.Equal(t, "welcome", all[2].Name)

		emailOnly, err := repo.List(ctx, model.ChannelEmail)
		require.NoError(t, err)
		require.Len(t, emailOnly, 2)
		for _, tmpl := range emailOnly {
			assert.Equal(t, model.ChannelEmail, tmpl.Channel)
		}

		_, err = repo.List(ctx, "fax")
		require.Error(t, err)
	})
}

// TestTemplateRepo_UpsertValidation covers template validation at the repository boundary.
func TestTemplateRepo_UpsertValidation(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewTemplateRepo(db)
		ctx := context.Background()

		tests := []struct {
			name string
			tmpl *model.Template
		}{
			{name: "nil template", tmpl: nil},
			{name: "missing name", tmpl: &model.Template{Channel: model.ChannelEmail, Content: "x"}},
			{name: "invalid channel", tmpl: &model.Template{Name: "x", Channel: "fax", Content: "x"}},
			{name: "missing content", tmpl: &model.Template{Name: "x", Channel: model.ChannelEmail}},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := repo.Upsert(ctx, tt.tmpl)
				require.Error(t, err)
			})
		}
	})
}
