package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/zonerun/backend/internal/app/domain/achievement"
	"github.com/zonerun/backend/internal/app/domain/territory"
	"github.com/zonerun/backend/internal/app/domain/track"
	"github.com/zonerun/backend/internal/app/storage"
)

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ storage.TerritoryStore = (*Store)(nil)
var _ storage.AchievementStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Conquer runs fn inside a single database transaction. Row locks taken by
// LockOwnership are released when the transaction commits or rolls back.
func (s *Store) Conquer(ctx context.Context, fn func(tx storage.ConquestTx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(fmt.Errorf("begin conquest tx: %w", err))
	}

	if err := fn(&conquestTx{tx: tx}); err != nil {
		_ = tx.Rollback()
		return classify(err)
	}
	if err := tx.Commit(); err != nil {
		return classify(fmt.Errorf("commit conquest tx: %w", err))
	}
	return nil
}

// classify wraps transient pq failures so callers can map them to a
// retry-after response without importing this package.
func classify(err error) error {
	if Retryable(err) {
		return &storage.RetryableError{Err: err}
	}
	return err
}

// Retryable reports whether an error is a transient storage condition the
// caller may retry: serialization failures, deadlocks and lock timeouts.
func Retryable(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	switch pqErr.Code {
	case "40001", "40P01", "55P03":
		return true
	}
	return pqErr.Code.Class() == "08"
}

type conquestTx struct {
	tx *sql.Tx
}

func (c *conquestTx) InsertTrack(ctx context.Context, trk track.Track) (track.Track, error) {
	if trk.ID == "" {
		trk.ID = uuid.NewString()
	}
	if trk.CreatedAt.IsZero() {
		trk.CreatedAt = time.Now().UTC()
	}

	_, err := c.tx.ExecContext(ctx, `
		INSERT INTO tracks (id, runner_id, distance_km, duration_seconds, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, trk.ID, trk.RunnerID, trk.DistanceKm, trk.DurationSeconds, trk.CreatedAt)
	if err != nil {
		return track.Track{}, err
	}

	for _, p := range trk.Points {
		_, err := c.tx.ExecContext(ctx, `
			INSERT INTO track_points (track_id, seq, latitude, longitude, captured_at)
			VALUES ($1, $2, $3, $4, $5)
		`, trk.ID, p.Sequence, p.Lat, p.Lon, p.Timestamp)
		if err != nil {
			return track.Track{}, err
		}
	}
	return trk, nil
}

func (c *conquestTx) LockOwnership(ctx context.Context, cell territory.Cell) (*territory.Ownership, error) {
	// FOR UPDATE on a missing row locks nothing, so two first claims on the
	// same unclaimed cell could both read nil and both classify as fresh.
	// The advisory lock serializes claims per cell whether or not its row
	// exists yet; it is released when the transaction ends.
	if _, err := c.tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, cell.Key()); err != nil {
		return nil, err
	}

	row := c.tx.QueryRowContext(ctx, `
		SELECT runner_id, team_id, captured_at
		FROM zone_ownership
		WHERE cell_key = $1
		FOR UPDATE
	`, cell.Key())

	var (
		own    territory.Ownership
		teamID sql.NullInt64
	)
	if err := row.Scan(&own.RunnerID, &teamID, &own.CapturedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	own.Cell = cell
	if teamID.Valid {
		own.TeamID = &teamID.Int64
	}
	return &own, nil
}

func (c *conquestTx) UpsertOwnership(ctx context.Context, own territory.Ownership) error {
	_, err := c.tx.ExecContext(ctx, `
		INSERT INTO zone_ownership (cell_key, runner_id, team_id, captured_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (cell_key) DO UPDATE
		SET runner_id = EXCLUDED.runner_id,
		    team_id = EXCLUDED.team_id,
		    captured_at = EXCLUDED.captured_at
	`, own.Cell.Key(), own.RunnerID, toNullInt64(own.TeamID), own.CapturedAt)
	return err
}

func (c *conquestTx) AppendCaptureEvent(ctx context.Context, evt territory.CaptureEvent) (territory.CaptureEvent, error) {
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = time.Now().UTC()
	}

	_, err := c.tx.ExecContext(ctx, `
		INSERT INTO capture_events (id, track_id, cell_key, runner_id, transition, points, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, evt.ID, evt.TrackID, evt.Cell.Key(), evt.RunnerID, string(evt.Transition), evt.Points, evt.CreatedAt)
	if err != nil {
		return territory.CaptureEvent{}, err
	}
	return evt, nil
}

// TerritoryStore reads ----------------------------------------------------

func (s *Store) GetOwnership(ctx context.Context, cell territory.Cell) (*territory.Ownership, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT runner_id, team_id, captured_at
		FROM zone_ownership
		WHERE cell_key = $1
	`, cell.Key())

	var (
		own    territory.Ownership
		teamID sql.NullInt64
	)
	if err := row.Scan(&own.RunnerID, &teamID, &own.CapturedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	own.Cell = cell
	if teamID.Valid {
		own.TeamID = &teamID.Int64
	}
	return &own, nil
}

func (s *Store) ListOwnerships(ctx context.Context) ([]territory.Ownership, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT cell_key, runner_id, team_id, captured_at
		FROM zone_ownership
		ORDER BY cell_key
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []territory.Ownership
	for rows.Next() {
		var (
			own     territory.Ownership
			cellKey string
			teamID  sql.NullInt64
		)
		if err := rows.Scan(&cellKey, &own.RunnerID, &teamID, &own.CapturedAt); err != nil {
			return nil, err
		}
		cell, err := territory.ParseCellKey(cellKey)
		if err != nil {
			return nil, err
		}
		own.Cell = cell
		if teamID.Valid {
			own.TeamID = &teamID.Int64
		}
		result = append(result, own)
	}
	return result, rows.Err()
}

func (s *Store) ListCaptureEvents(ctx context.Context, cell territory.Cell) ([]territory.CaptureEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, track_id, cell_key, runner_id, transition, points, created_at
		FROM capture_events
		WHERE cell_key = $1
		ORDER BY created_at
	`, cell.Key())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanCaptureEvents(rows)
}

func (s *Store) CountCaptureEvents(ctx context.Context, runnerID int64) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM capture_events WHERE runner_id = $1
	`, runnerID).Scan(&count)
	return count, err
}

func (s *Store) ListTracks(ctx context.Context, runnerID int64) ([]track.Track, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, runner_id, distance_km, duration_seconds, created_at
		FROM tracks
		WHERE runner_id = $1
		ORDER BY created_at DESC
	`, runnerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []track.Track
	for rows.Next() {
		var trk track.Track
		if err := rows.Scan(&trk.ID, &trk.RunnerID, &trk.DistanceKm, &trk.DurationSeconds, &trk.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, trk)
	}
	return result, rows.Err()
}

// AchievementStore ---------------------------------------------------------

func (s *Store) HasAward(ctx context.Context, runnerID, achievementID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM runner_achievements
			WHERE runner_id = $1 AND achievement_id = $2
		)
	`, runnerID, achievementID).Scan(&exists)
	return exists, err
}

func (s *Store) GrantAward(ctx context.Context, award achievement.Award) error {
	if award.EarnedAt.IsZero() {
		award.EarnedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runner_achievements (runner_id, achievement_id, earned_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (runner_id, achievement_id) DO NOTHING
	`, award.RunnerID, award.AchievementID, award.EarnedAt)
	return err
}

func (s *Store) ListAwards(ctx context.Context, runnerID int64) ([]achievement.Award, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT runner_id, achievement_id, earned_at
		FROM runner_achievements
		WHERE runner_id = $1
		ORDER BY earned_at
	`, runnerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []achievement.Award
	for rows.Next() {
		var award achievement.Award
		if err := rows.Scan(&award.RunnerID, &award.AchievementID, &award.EarnedAt); err != nil {
			return nil, err
		}
		result = append(result, award)
	}
	return result, rows.Err()
}

func (s *Store) InsertNotification(ctx context.Context, n achievement.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, runner_id, kind, title, message, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, n.ID, n.RunnerID, n.Kind, n.Title, n.Message, n.Read, n.CreatedAt)
	return err
}

func scanCaptureEvents(rows *sql.Rows) ([]territory.CaptureEvent, error) {
	var result []territory.CaptureEvent
	for rows.Next() {
		var (
			evt        territory.CaptureEvent
			cellKey    string
			transition string
		)
		if err := rows.Scan(&evt.ID, &evt.TrackID, &cellKey, &evt.RunnerID, &transition, &evt.Points, &evt.CreatedAt); err != nil {
			return nil, err
		}
		cell, err := territory.ParseCellKey(cellKey)
		if err != nil {
			return nil, err
		}
		evt.Cell = cell
		evt.Transition = territory.Transition(transition)
		result = append(result, evt)
	}
	return result, rows.Err()
}

func toNullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
