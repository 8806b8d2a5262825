package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ScanLogRepository stores the per-bot scan watermark
type ScanLogRepository struct {
	db *PostgresDB
}

// NewScanLogRepository creates a new scan log repository
func NewScanLogRepository(db *PostgresDB) *ScanLogRepository {
	return &ScanLogRepository{db: db}
}

// GetLastScannedAt returns the watermark for botID, or nil if the bot was never scanned
func (r *ScanLogRepository) GetLastScannedAt(ctx context.Context, botID string) (*time.Time, error) {
	var last time.Time
	err := r.db.Pool().QueryRow(ctx,
		`SELECT last_scanned_at FROM scan_logs WHERE bot_id = $1`, botID,
	).Scan(&last)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get scan log: %w", err)
	}
	return &last, nil
}

// Upsert sets the watermark for botID to scannedAt
func (r *ScanLogRepository) Upsert(ctx context.Context, botID string, scannedAt time.Time) error {
	query := `
		INSERT INTO scan_logs (bot_id, last_scanned_at)
		VALUES ($1, $2)
		ON CONFLICT (bot_id) DO UPDATE SET last_scanned_at = EXCLUDED.last_scanned_at
	`
	if _, err := r.db.Pool().Exec(ctx, query, botID, scannedAt); err != nil {
		return fmt.Errorf("failed to upsert scan log: %w", err)
	}
	return nil
}
