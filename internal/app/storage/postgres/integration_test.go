package postgres

import (
	"context"
	"database/sql"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/zonerun/backend/internal/app/domain/achievement"
	"github.com/zonerun/backend/internal/app/domain/territory"
	"github.com/zonerun/backend/internal/app/domain/track"
	"github.com/zonerun/backend/internal/app/storage"
	"github.com/zonerun/backend/internal/platform/migrations"
)

// openIntegrationStore connects to the database named by TEST_POSTGRES_DSN,
// applies migrations and truncates all engine tables. Tests are skipped when
// the variable is unset.
func openIntegrationStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if err := migrations.Apply(ctx, db); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	_, err = db.ExecContext(ctx, `
		TRUNCATE capture_events, zone_ownership, track_points, tracks,
		         runner_achievements, notifications
	`)
	if err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return New(db)
}

func TestIntegrationConquestRoundTrip(t *testing.T) {
	store := openIntegrationStore(t)
	ctx := context.Background()
	cell := territory.Cell{X: 0, Y: 1}
	now := time.Now().UTC().Truncate(time.Microsecond)

	var trackID string
	err := store.Conquer(ctx, func(tx storage.ConquestTx) error {
		saved, err := tx.InsertTrack(ctx, track.Track{
			RunnerID:        42,
			DistanceKm:      0.3,
			DurationSeconds: 300,
			Points: []track.GeoPoint{
				{Lat: 0.0015, Lon: 0.0005, Sequence: 1, Timestamp: now},
			},
		})
		if err != nil {
			return err
		}
		trackID = saved.ID

		current, err := tx.LockOwnership(ctx, cell)
		if err != nil {
			return err
		}
		if current != nil {
			t.Fatalf("expected an unclaimed cell, got %+v", current)
		}
		if err := tx.UpsertOwnership(ctx, territory.Ownership{Cell: cell, RunnerID: 42, CapturedAt: now}); err != nil {
			return err
		}
		_, err = tx.AppendCaptureEvent(ctx, territory.CaptureEvent{
			TrackID: trackID, Cell: cell, RunnerID: 42,
			Transition: territory.TransitionNew, Points: 10, CreatedAt: now,
		})
		return err
	})
	if err != nil {
		t.Fatalf("conquer: %v", err)
	}

	own, err := store.GetOwnership(ctx, cell)
	if err != nil {
		t.Fatalf("get ownership: %v", err)
	}
	if own == nil || own.RunnerID != 42 {
		t.Fatalf("ownership not committed: %+v", own)
	}

	events, err := store.ListCaptureEvents(ctx, cell)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 1 || events[0].TrackID != trackID || events[0].Transition != territory.TransitionNew {
		t.Fatalf("unexpected ledger %+v", events)
	}

	count, err := store.CountCaptureEvents(ctx, 42)
	if err != nil {
		t.Fatalf("count events: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one ledger row, got %d", count)
	}

	tracks, err := store.ListTracks(ctx, 42)
	if err != nil {
		t.Fatalf("list tracks: %v", err)
	}
	if len(tracks) != 1 || tracks[0].ID != trackID {
		t.Fatalf("unexpected tracks %+v", tracks)
	}
}

func TestIntegrationConcurrentFirstClaimsSerialize(t *testing.T) {
	store := openIntegrationStore(t)
	ctx := context.Background()
	cell := territory.Cell{X: 7, Y: 7}

	claim := func(runnerID int64) error {
		return store.Conquer(ctx, func(tx storage.ConquestTx) error {
			now := time.Now().UTC()
			current, err := tx.LockOwnership(ctx, cell)
			if err != nil {
				return err
			}
			transition, next := territory.Resolve(cell, runnerID, nil, current, now)
			if err := tx.UpsertOwnership(ctx, next); err != nil {
				return err
			}
			_, err = tx.AppendCaptureEvent(ctx, territory.CaptureEvent{
				ID:         uuid.NewString(),
				TrackID:    uuid.NewString(),
				Cell:       cell,
				RunnerID:   runnerID,
				Transition: transition,
				Points:     10,
				CreatedAt:  now,
			})
			return err
		})
	}

	// Both transactions race to claim the same unclaimed cell. The second
	// one to acquire the cell lock must observe the first's commit.
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, runner := range []int64{1, 2} {
		wg.Add(1)
		go func(i int, runner int64) {
			defer wg.Done()
			errs[i] = claim(runner)
		}(i, runner)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("claim %d: %v", i, err)
		}
	}

	events, err := store.ListCaptureEvents(ctx, cell)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected two ledger rows, got %d", len(events))
	}

	var news, robberies int
	var robber int64
	for _, evt := range events {
		switch evt.Transition {
		case territory.TransitionNew:
			news++
		case territory.TransitionRobbery:
			robberies++
			robber = evt.RunnerID
		}
	}
	if news != 1 || robberies != 1 {
		t.Fatalf("ledger must read one fresh claim and one takeover, got %+v", events)
	}

	own, err := store.GetOwnership(ctx, cell)
	if err != nil {
		t.Fatalf("get ownership: %v", err)
	}
	if own == nil || own.RunnerID != robber {
		t.Fatalf("final owner must match the takeover, got %+v", own)
	}
}

func TestIntegrationAwardLifecycle(t *testing.T) {
	store := openIntegrationStore(t)
	ctx := context.Background()

	has, err := store.HasAward(ctx, 42, 1)
	if err != nil {
		t.Fatalf("has award: %v", err)
	}
	if has {
		t.Fatalf("fresh runner must not have awards")
	}

	award := achievement.Award{RunnerID: 42, AchievementID: 1}
	if err := store.GrantAward(ctx, award); err != nil {
		t.Fatalf("grant: %v", err)
	}
	// Granting again is a no-op, not an error.
	if err := store.GrantAward(ctx, award); err != nil {
		t.Fatalf("re-grant: %v", err)
	}

	awards, err := store.ListAwards(ctx, 42)
	if err != nil {
		t.Fatalf("list awards: %v", err)
	}
	if len(awards) != 1 || awards[0].AchievementID != 1 {
		t.Fatalf("unexpected awards %+v", awards)
	}

	if err := store.InsertNotification(ctx, achievement.Notification{
		RunnerID: 42,
		Kind:     "ACHIEVEMENT",
		Title:    "New medal!",
		Message:  `You unlocked "First Steps".`,
	}); err != nil {
		t.Fatalf("insert notification: %v", err)
	}
}
