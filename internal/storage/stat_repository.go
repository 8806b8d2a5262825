package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/app-directory-tracker/internal/models"
	"github.com/jackc/pgx/v5"
)

// StatRepository handles guild count samples. Samples are only ever appended.
type StatRepository struct {
	db *PostgresDB
}

// NewStatRepository creates a new stat repository
func NewStatRepository(db *PostgresDB) *StatRepository {
	return &StatRepository{db: db}
}

// Insert appends a sample for botID recorded at the database's current time
func (r *StatRepository) Insert(ctx context.Context, botID string, guildCount int64) (*models.StatEntry, error) {
	query := `
		INSERT INTO stat_entries (bot_id, guild_count)
		VALUES ($1, $2)
		RETURNING id, bot_id, guild_count, recorded_at
	`

	var entry models.StatEntry
	err := r.db.Pool().QueryRow(ctx, query, botID, guildCount).Scan(
		&entry.ID,
		&entry.BotID,
		&entry.GuildCount,
		&entry.RecordedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert stat entry: %w", err)
	}
	return &entry, nil
}

// ListRecent returns the limit most recent samples for botID, newest first
func (r *StatRepository) ListRecent(ctx context.Context, botID string, limit int) ([]*models.StatEntry, error) {
	query := `
		SELECT id, bot_id, guild_count, recorded_at
		FROM stat_entries
		WHERE bot_id = $1
		ORDER BY recorded_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.db.Pool().Query(ctx, query, botID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list stat entries: %w", err)
	}
	defer rows.Close()

	entries := make([]*models.StatEntry, 0, limit)
	for rows.Next() {
		var entry models.StatEntry
		if err := rows.Scan(&entry.ID, &entry.BotID, &entry.GuildCount, &entry.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan stat entry: %w", err)
		}
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}

// Latest returns the most recent sample for botID, or nil when there is none
func (r *StatRepository) Latest(ctx context.Context, botID string) (*models.StatEntry, error) {
	query := `
		SELECT id, bot_id, guild_count, recorded_at
		FROM stat_entries
		WHERE bot_id = $1
		ORDER BY recorded_at DESC, id DESC
		LIMIT 1
	`

	var entry models.StatEntry
	err := r.db.Pool().QueryRow(ctx, query, botID).Scan(&entry.ID, &entry.BotID, &entry.GuildCount, &entry.RecordedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest stat entry: %w", err)
	}
	return &entry, nil
}
