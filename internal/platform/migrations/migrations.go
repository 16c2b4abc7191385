package migrations

import (
	"context"
	"database/sql"
	"fmt"
)

// statements are applied in order on startup. Each statement is idempotent so
// Apply can run on every boot.
var statements = []string{
	`CREATE TABLE IF NOT EXISTS tracks (
		id UUID PRIMARY KEY,
		runner_id BIGINT NOT NULL,
		distance_km DOUBLE PRECISION NOT NULL,
		duration_seconds INTEGER NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS track_points (
		track_id UUID NOT NULL REFERENCES tracks(id),
		seq INTEGER NOT NULL,
		latitude DOUBLE PRECISION NOT NULL,
		longitude DOUBLE PRECISION NOT NULL,
		captured_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (track_id, seq)
	)`,
	`CREATE TABLE IF NOT EXISTS zone_ownership (
		cell_key TEXT PRIMARY KEY,
		runner_id BIGINT NOT NULL,
		team_id BIGINT,
		captured_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS capture_events (
		id UUID PRIMARY KEY,
		track_id UUID NOT NULL,
		cell_key TEXT NOT NULL,
		runner_id BIGINT NOT NULL,
		transition TEXT NOT NULL,
		points INTEGER NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_capture_events_runner ON capture_events (runner_id)`,
	`CREATE INDEX IF NOT EXISTS idx_capture_events_cell ON capture_events (cell_key, created_at)`,
	`CREATE TABLE IF NOT EXISTS runner_achievements (
		runner_id BIGINT NOT NULL,
		achievement_id BIGINT NOT NULL,
		earned_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (runner_id, achievement_id)
	)`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id UUID PRIMARY KEY,
		runner_id BIGINT NOT NULL,
		kind TEXT NOT NULL,
		title TEXT NOT NULL,
		message TEXT NOT NULL,
		is_read BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL
	)`,
}

// Apply executes all schema migrations against the database.
func Apply(ctx context.Context, db *sql.DB) error {
	for i, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}
	return nil
}
