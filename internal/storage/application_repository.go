package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/app-directory-tracker/internal/models"
	"github.com/app-directory-tracker/internal/types"
	"github.com/jackc/pgx/v5"
)

// ErrDuplicateApplication is returned by Insert when the id or the bot id is already stored
var ErrDuplicateApplication = errors.New("application already exists")

const applicationColumns = `
	id, name, icon, description, is_verified,
	bot_id, bot_username, bot_global_name, bot_avatar, bot_banner, bot_banner_color, bot_accent_color,
	guild_count, detailed_description, created_at, updated_at`

// ApplicationRepository handles application persistence
type ApplicationRepository struct {
	db *PostgresDB
}

// NewApplicationRepository creates a new application repository
func NewApplicationRepository(db *PostgresDB) *ApplicationRepository {
	return &ApplicationRepository{db: db}
}

// Insert creates a new application row. Existing rows are never updated.
func (r *ApplicationRepository) Insert(ctx context.Context, app *models.Application) error {
	query := `
		INSERT INTO applications (
			id, name, icon, description, is_verified,
			bot_id, bot_username, bot_global_name, bot_avatar, bot_banner, bot_banner_color, bot_accent_color,
			guild_count, detailed_description
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at, updated_at
	`

	err := r.db.Pool().QueryRow(ctx, query,
		app.ID,
		app.Name,
		app.Icon,
		app.Description,
		app.IsVerified,
		app.BotID,
		app.BotUsername,
		app.BotGlobalName,
		app.BotAvatar,
		app.BotBanner,
		app.BotBannerColor,
		app.BotAccentColor,
		app.GuildCount,
		app.DetailedDescription,
	).Scan(&app.CreatedAt, &app.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateApplication, app.ID)
		}
		return fmt.Errorf("failed to insert application: %w", err)
	}
	return nil
}

// GetByID returns the full application, or nil when it does not exist
func (r *ApplicationRepository) GetByID(ctx context.Context, id string) (*models.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE id = $1`

	app, err := scanApplication(r.db.Pool().QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Not found, return nil without error
		}
		return nil, fmt.Errorf("failed to get application: %w", err)
	}
	return app, nil
}

// GetFirst returns the application with the lowest id, or nil when the table is empty
func (r *ApplicationRepository) GetFirst(ctx context.Context) (*models.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications ORDER BY id LIMIT 1`

	app, err := scanApplication(r.db.Pool().QueryRow(ctx, query))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get first application: %w", err)
	}
	return app, nil
}

// ListSummaries returns every application in insertion order
func (r *ApplicationRepository) ListSummaries(ctx context.Context) ([]*models.ApplicationSummary, error) {
	query := `
		SELECT id, name, icon, description
		FROM applications
		ORDER BY created_at, id
	`
	return r.querySummaries(ctx, "list applications", query)
}

// ListAfter returns up to limit applications with id > cursor, ordered by id.
// An empty cursor starts from the beginning.
func (r *ApplicationRepository) ListAfter(ctx context.Context, cursor string, limit int) ([]*models.ApplicationSummary, error) {
	if cursor == "" {
		query := `
			SELECT id, name, icon, description
			FROM applications
			ORDER BY id
			LIMIT $1
		`
		return r.querySummaries(ctx, "list application page", query, limit)
	}

	query := `
		SELECT id, name, icon, description
		FROM applications
		WHERE id > $1
		ORDER BY id
		LIMIT $2
	`
	return r.querySummaries(ctx, "list application page", query, cursor, limit)
}

// Search returns applications whose id (filter id) or name/description (filter text)
// contain the query, case-insensitively.
func (r *ApplicationRepository) Search(ctx context.Context, q string, filter types.SearchFilter) ([]*models.ApplicationSummary, error) {
	pattern := "%" + escapeLike(q) + "%"

	var query string
	switch filter {
	case types.SearchFilterID:
		query = `
			SELECT id, name, icon, description
			FROM applications
			WHERE id ILIKE $1 ESCAPE '\'
			ORDER BY id
		`
	case types.SearchFilterText:
		query = `
			SELECT id, name, icon, description
			FROM applications
			WHERE name ILIKE $1 ESCAPE '\' OR description ILIKE $1 ESCAPE '\'
			ORDER BY id
		`
	default:
		return nil, fmt.Errorf("unsupported search filter %q", filter)
	}

	return r.querySummaries(ctx, "search applications", query, pattern)
}

// ListRefs returns the id and bot id of every application, for the refresh job
func (r *ApplicationRepository) ListRefs(ctx context.Context) ([]models.ApplicationRef, error) {
	rows, err := r.db.Pool().Query(ctx, `SELECT id, bot_id FROM applications ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list application refs: %w", err)
	}
	defer rows.Close()

	var refs []models.ApplicationRef
	for rows.Next() {
		var ref models.ApplicationRef
		if err := rows.Scan(&ref.ID, &ref.BotID); err != nil {
			return nil, fmt.Errorf("failed to scan application ref: %w", err)
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

func (r *ApplicationRepository) querySummaries(ctx context.Context, op string, query string, args ...any) ([]*models.ApplicationSummary, error) {
	rows, err := r.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to %s: %w", op, err)
	}
	defer rows.Close()

	summaries := make([]*models.ApplicationSummary, 0)
	for rows.Next() {
		var s models.ApplicationSummary
		if err := rows.Scan(&s.ID, &s.Name, &s.Icon, &s.Description); err != nil {
			return nil, fmt.Errorf("failed to scan application: %w", err)
		}
		summaries = append(summaries, &s)
	}
	return summaries, rows.Err()
}

func scanApplication(row pgx.Row) (*models.Application, error) {
	var app models.Application
	err := row.Scan(
		&app.ID,
		&app.Name,
		&app.Icon,
		&app.Description,
		&app.IsVerified,
		&app.BotID,
		&app.BotUsername,
		&app.BotGlobalName,
		&app.BotAvatar,
		&app.BotBanner,
		&app.BotBannerColor,
		&app.BotAccentColor,
		&app.GuildCount,
		&app.DetailedDescription,
		&app.CreatedAt,
		&app.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &app, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes s match literally inside a LIKE pattern
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
