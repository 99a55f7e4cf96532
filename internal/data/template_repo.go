package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/courierd/courierd/internal/data/pgxutil"
	"github.com/courierd/courierd/internal/domain/model"
	apperrors "github.com/courierd/courierd/internal/errors"
	"github.com/jackc/pgx/v5"
)

const templateColumns = `
  id, name, channel, subject, content, variables, is_active, created_at, updated_at
`

// TemplateRepo provides database operations for stored message templates.
type TemplateRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewTemplateRepo creates a new TemplateRepo with real time provider.
func NewTemplateRepo(db *sql.DB) *TemplateRepo {
	return &TemplateRepo{DB: db, timeProvider: &RealTimeProvider{}}
}

// NewTemplateRepoWithTimeProvider creates a new TemplateRepo with a custom time provider (useful for tests).
func NewTemplateRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *TemplateRepo {
	return &TemplateRepo{DB: db, timeProvider: tp}
}

// GetByNameAndChannel retrieves an active template by its name and channel.
func (r *TemplateRepo) GetByNameAndChannel(
	ctx context.Context,
	name string,
	channel model.Channel,
) (*model.Template, error) {
	if !channel.Valid() {
		return nil, fmt.Errorf("invalid channel: %s", channel)
	}

	var out model.Template
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			SELECT `+templateColumns+`
			FROM templates
			WHERE name = $1 AND channel = $2 AND is_active = TRUE
		`, strings.TrimSpace(name), channel)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Template])
		return err
	})

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTemplateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get template: %w", apperrors.MapDBError(err))
	}
	return &out, nil
}

// List retrieves active templates, optionally filtered by channel.
func (r *TemplateRepo) List(ctx context.Context, channel model.Channel) ([]*model.Template, error) {
	query := `SELECT ` + templateColumns + ` FROM templates WHERE is_active = TRUE`
	args := []any{}
	if channel != "" {
		if !channel.Valid() {
			return nil, fmt.Errorf("invalid channel filter: %s", channel)
		}
		query += " AND channel = $1"
		args = append(args, channel)
	}
	query += " ORDER BY name ASC, channel ASC"

	var rowsOut []model.Template
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		rowsOut, err = pgx.CollectRows(rows, pgx.RowToStructByName[model.Template])
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}

	templates := make([]*model.Template, len(rowsOut))
	for i := range rowsOut {
		templates[i] = &rowsOut[i]
	}
	return templates, nil
}

// Upsert inserts a template or updates the existing one with the same name and
// channel. Used by the admin seeding command.
func (r *TemplateRepo) Upsert(ctx context.Context, tmpl *model.Template) (*model.Template, error) {
	if tmpl == nil {
		return nil, errors.New("template is required")
	}
	if err := tmpl.Validate(); err != nil {
		return nil, err
	}

	variables := tmpl.Variables
	if variables == nil {
		variables = []model.TemplateVariable{}
	}

	var out model.Template
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			INSERT INTO templates (name, channel, subject, content, variables, is_active)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (name, channel) DO UPDATE
			SET subject = EXCLUDED.subject,
			    content = EXCLUDED.content,
			    variables = EXCLUDED.variables,
			    is_active = EXCLUDED.is_active,
			    updated_at = $7
			RETURNING `+templateColumns,
			strings.TrimSpace(tmpl.Name),
			tmpl.Channel,
			tmpl.Subject,
			tmpl.Content,
			variables,
			tmpl.IsActive,
			r.timeProvider.Now().UTC(),
		)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Template])
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("upsert template: %w", apperrors.MapDBError(err))
	}
	return &out, nil
}
